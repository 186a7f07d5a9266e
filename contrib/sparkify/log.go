package sparkify

import (
	"context"

	"github.com/rs/zerolog/log"

	"go.nownabe.dev/ingestor"
)

// NextSongPage is the page of events that are song plays.
const NextSongPage = "NextSong"

// LogRequired lists the fields every log record carries.
var LogRequired = []string{"page", "ts", "userId", "level", "sessionId"}

// LogTransformer turns NextSong events into users, time and songplays rows.
// A timestamp produces one time row per file however many events share it.
// Songs the Resolver cannot find leave song_id and artist_id NULL.
type LogTransformer struct {
	Resolver SongResolver
}

// ForFile implements ingestor.FileScoped.
func (t *LogTransformer) ForFile(ingestor.SourceFile) ingestor.Transformer {
	return &logFileTransformer{resolver: t.Resolver, seen: map[int64]struct{}{}}
}

// Transform handles records outside a run, without time row deduplication.
func (t *LogTransformer) Transform(ctx context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
	return (&logFileTransformer{resolver: t.Resolver, seen: map[int64]struct{}{}}).Transform(ctx, r)
}

type logFileTransformer struct {
	resolver SongResolver
	seen     map[int64]struct{}
}

func (t *logFileTransformer) Transform(ctx context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
	page := r.Text("page")
	if page == nil || *page != NextSongPage {
		return nil, nil
	}

	out := []ingestor.TargetRecord{}

	var start interface{}
	if ts := r.Int("ts"); ts != nil {
		p := ingestor.ExpandMillis(*ts)
		start = p.Start

		if _, ok := t.seen[*ts]; !ok {
			t.seen[*ts] = struct{}{}
			out = append(out, Time.Record(r.Origin,
				p.Start,
				int64(p.Hour),
				int64(p.Day),
				int64(p.Week),
				int64(p.Month),
				int64(p.Year),
				int64(p.Weekday),
			))
		}
	}

	userID := r.Int("userId")
	if userID != nil {
		out = append(out, Users.Record(r.Origin,
			*userID,
			ingestor.Null(r.Text("firstName")),
			ingestor.Null(r.Text("lastName")),
			ingestor.Null(r.Text("gender")),
			ingestor.Null(r.Text("level")),
		))
	}

	songID, artistID, err := t.resolve(ctx, r)
	if err != nil {
		return nil, err
	}

	out = append(out, Songplays.Record(r.Origin,
		start,
		ingestor.Null(userID),
		ingestor.Null(r.Text("level")),
		songID,
		artistID,
		ingestor.Null(r.Int("sessionId")),
		ingestor.Null(r.Text("location")),
		ingestor.Null(r.Text("userAgent")),
	))

	return out, nil
}

func (t *logFileTransformer) resolve(ctx context.Context, r ingestor.RawRecord) (interface{}, interface{}, error) {
	if t.resolver == nil {
		return nil, nil, nil
	}

	song, artist, length := r.Text("song"), r.Text("artist"), r.Float("length")
	if song == nil || artist == nil || length == nil {
		return nil, nil, nil
	}

	songID, artistID, ok, err := t.resolver.Resolve(ctx, *song, *artist, *length)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		log.Ctx(ctx).Debug().Str("song", *song).Str("artist", *artist).Msg("song not found")
		return nil, nil, nil
	}

	var a interface{}
	if artistID != "" {
		a = artistID
	}
	return songID, a, nil
}
