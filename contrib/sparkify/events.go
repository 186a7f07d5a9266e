package sparkify

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"regexp"

	"github.com/jszwec/csvutil"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/ingestor"
)

// EventHeader is the header of the consolidated event file.
var EventHeader = []string{
	"artist", "firstName", "gender", "itemInSession", "lastName", "length",
	"level", "location", "sessionId", "song", "userId",
}

// EventColumns are the positions of EventHeader in the raw event CSVs.
var EventColumns = []int{0, 2, 3, 4, 5, 6, 7, 8, 12, 13, 16}

// EventFilePattern matches the raw daily event CSVs.
var EventFilePattern = regexp.MustCompile(`\.csv$`)

// ConsolidateEvents merges the event CSVs under root into target and
// returns the number of rows written. Nothing is left at target on failure.
func ConsolidateEvents(ctx context.Context, src ingestor.Source, root, target string) (int, error) {
	l := log.Ctx(ctx)

	files, err := src.Discover(ctx, root, func(f ingestor.SourceFile) bool {
		return f.Format == ingestor.FormatCSV && EventFilePattern.MatchString(f.Path)
	})
	if err != nil {
		return 0, xerrors.Errorf("failed to discover event files: %w", err)
	}
	l.Info().Msgf("%d files found in %s", len(files), root)

	tmp := target + ".tmp"
	w, err := os.Create(tmp)
	if err != nil {
		return 0, xerrors.Errorf("failed to create %s: %w", tmp, err)
	}

	n, err := ingestor.Consolidate(ctx, src, files, w, ingestor.ConsolidateSpec{
		Header:  EventHeader,
		Columns: EventColumns,
	})
	if cerr := w.Close(); err == nil && cerr != nil {
		err = xerrors.Errorf("failed to close %s: %w", tmp, cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return 0, xerrors.Errorf("failed to move combined file to %s: %w", target, err)
	}

	l.Info().Msgf("input data files filtered successfully to %s", target)

	return n, nil
}

// Event is one row of the consolidated event file.
type Event struct {
	Artist        string   `csv:"artist"`
	FirstName     string   `csv:"firstName"`
	Gender        string   `csv:"gender"`
	ItemInSession *int64   `csv:"itemInSession"`
	LastName      string   `csv:"lastName"`
	Length        *float64 `csv:"length"`
	Level         string   `csv:"level"`
	Location      string   `csv:"location"`
	SessionID     *int64   `csv:"sessionId"`
	Song          string   `csv:"song"`
	UserID        *int64   `csv:"userId"`
}

var eventHeader = ingestor.NewHeader(EventHeader...)

func (e *Event) values() []interface{} {
	return []interface{}{
		e.Artist, e.FirstName, e.Gender,
		ingestor.Null(e.ItemInSession), e.LastName, ingestor.Null(e.Length),
		e.Level, e.Location, ingestor.Null(e.SessionID), e.Song, ingestor.Null(e.UserID),
	}
}

// EventParser decodes the consolidated event file into typed rows. Files
// missing any EventHeader column fail with *ingestor.MissingColumnError.
type EventParser struct{}

// Parse implements ingestor.Parser.
func (EventParser) Parse(ctx context.Context, f ingestor.SourceFile, r io.Reader, emit func(ingestor.RawRecord) error) error {
	cr := csv.NewReader(r)
	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return xerrors.Errorf("failed to read header of %s: %w", f.Path, err)
	}
	dec.DisallowMissingColumns = true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var e Event
		err := dec.Decode(&e)
		if err == io.EOF {
			return nil
		}
		var mce *csvutil.MissingColumnsError
		if errors.As(err, &mce) {
			return &ingestor.MissingColumnError{Path: f.Path, Columns: mce.Columns}
		}
		line, _ := cr.FieldPos(0)
		if err != nil {
			return xerrors.Errorf("failed to decode %s:%d: %w", f.Path, line, err)
		}

		origin := ingestor.Origin{Path: f.Path, Line: line}
		if err := emit(ingestor.NewRawRecord(origin, eventHeader, e.values())); err != nil {
			return err
		}
	}
}

// EventTransformer turns an event into one row of each query table. Rows
// whose primary key would be incomplete are left out.
type EventTransformer struct{}

// Transform implements ingestor.Transformer.
func (EventTransformer) Transform(_ context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
	sessionID := r.Int("sessionId")
	item := r.Int("itemInSession")
	userID := r.Int("userId")
	artist := ingestor.Null(r.Text("artist"))
	song := r.Text("song")
	first := ingestor.Null(r.Text("firstName"))
	last := ingestor.Null(r.Text("lastName"))

	out := []ingestor.TargetRecord{}

	if sessionID != nil && item != nil {
		out = append(out, SongInSession.Record(r.Origin,
			*sessionID, *item, artist, ingestor.Null(song), ingestor.Null(r.Float("length"))))
	}

	if userID != nil && sessionID != nil && item != nil {
		out = append(out, ArtistInSession.Record(r.Origin,
			*userID, *sessionID, artist, ingestor.Null(song), *item, first, last))
	}

	if song != nil && userID != nil {
		out = append(out, UserAndSong.Record(r.Origin, *song, *userID, first, last))
	}

	return out, nil
}
