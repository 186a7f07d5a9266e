package sparkify

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"

	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"

	"go.nownabe.dev/ingestor"
)

// SongRequired lists the fields every song record carries.
var SongRequired = []string{"song_id", "title", "artist_id", "artist_name", "duration"}

// SongTransformer turns a song record into one songs row and one artists
// row. When Index is set every song is also added to it once its file
// commits.
type SongTransformer struct {
	Index *SongIndex
}

// ForFile implements ingestor.FileScoped.
func (t *SongTransformer) ForFile(ingestor.SourceFile) ingestor.Transformer {
	return &songFile{index: t.Index}
}

// Transform handles records outside a run and indexes them at once.
func (t *SongTransformer) Transform(ctx context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
	f := &songFile{index: t.Index}
	out, err := f.Transform(ctx, r)
	if err != nil {
		return nil, err
	}
	f.Publish()
	return out, nil
}

type indexedSong struct {
	title, artist string
	duration      float64
	songID        string
	artistID      interface{}
}

// songFile stages the index entries of one file.
type songFile struct {
	index  *SongIndex
	staged []indexedSong
}

func (t *songFile) Transform(_ context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
	songID := r.Text("song_id")
	artistID := r.Text("artist_id")

	out := []ingestor.TargetRecord{}
	if songID != nil {
		out = append(out, Songs.Record(r.Origin,
			*songID,
			ingestor.Null(r.Text("title")),
			ingestor.Null(artistID),
			ingestor.Null(r.Int("year")),
			ingestor.Null(r.Float("duration")),
		))
	}
	if artistID != nil {
		out = append(out, Artists.Record(r.Origin,
			*artistID,
			ingestor.Null(r.Text("artist_name")),
			ingestor.Null(r.Text("artist_location")),
			ingestor.Null(r.Float("artist_latitude")),
			ingestor.Null(r.Float("artist_longitude")),
		))
	}

	if t.index != nil && songID != nil {
		title, name, duration := r.Text("title"), r.Text("artist_name"), r.Float("duration")
		if title != nil && name != nil && duration != nil {
			t.staged = append(t.staged, indexedSong{
				title:    *title,
				artist:   *name,
				duration: *duration,
				songID:   *songID,
				artistID: ingestor.Null(artistID),
			})
		}
	}

	return out, nil
}

// Publish implements ingestor.Publisher.
func (t *songFile) Publish() {
	for _, s := range t.staged {
		t.index.Add(s.title, s.artist, s.duration, s.songID, s.artistID)
	}
	t.staged = nil
}

// SongResolver finds the song and artist ids of a played song by its title,
// artist name and duration.
type SongResolver interface {
	Resolve(ctx context.Context, title, artist string, duration float64) (songID, artistID string, ok bool, err error)
}

// SongIndex is an in memory SongResolver.
type SongIndex struct {
	mu    sync.RWMutex
	songs map[string][2]string
}

// NewSongIndex builds an empty SongIndex.
func NewSongIndex() *SongIndex {
	return &SongIndex{songs: map[string][2]string{}}
}

func songKey(title, artist string, duration float64) string {
	return title + "\x00" + artist + "\x00" + strconv.FormatFloat(duration, 'f', -1, 64)
}

// Add registers a song. artistID may be nil.
func (x *SongIndex) Add(title, artist string, duration float64, songID string, artistID interface{}) {
	a, _ := artistID.(string)

	x.mu.Lock()
	defer x.mu.Unlock()
	x.songs[songKey(title, artist, duration)] = [2]string{songID, a}
}

// Len returns the number of songs.
func (x *SongIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.songs)
}

// Resolve implements SongResolver.
func (x *SongIndex) Resolve(_ context.Context, title, artist string, duration float64) (string, string, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids, ok := x.songs[songKey(title, artist, duration)]
	return ids[0], ids[1], ok, nil
}

const songLookupQuery = `SELECT s.song_id, s.artist_id
FROM songs s JOIN artists a ON s.artist_id = a.artist_id
WHERE s.title = ? AND a.name = ? AND s.duration = ?`

// SQLSongResolver looks songs up in the songs and artists tables.
type SQLSongResolver struct {
	db    *sqlx.DB
	query string
}

// NewSQLSongResolver builds a resolver querying db.
func NewSQLSongResolver(db *sqlx.DB) *SQLSongResolver {
	return &SQLSongResolver{db: db, query: db.Rebind(songLookupQuery)}
}

// Resolve implements SongResolver.
func (s *SQLSongResolver) Resolve(ctx context.Context, title, artist string, duration float64) (string, string, bool, error) {
	var row struct {
		SongID   string         `db:"song_id"`
		ArtistID sql.NullString `db:"artist_id"`
	}

	err := s.db.GetContext(ctx, &row, s.query, title, artist, duration)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, xerrors.Errorf("failed to look up song %q by %q: %w", title, artist, err)
	}

	return row.SongID, row.ArtistID.String, true, nil
}
