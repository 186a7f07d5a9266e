package ingestor_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"go.nownabe.dev/ingestor"
)

var playTimes = &ingestor.Table{
	Name: "time",
	Columns: []ingestor.Column{
		{Name: "start_time", Type: ingestor.TypeString},
		{Name: "hour", Type: ingestor.TypeInt64},
		{Name: "weekday", Type: ingestor.TypeString},
	},
}

// playTimeTransformer emits one time row per distinct play timestamp of a
// log file.
type playTimeTransformer struct {
	seen map[int64]bool
}

func (t *playTimeTransformer) ForFile(ingestor.SourceFile) ingestor.Transformer {
	return &playTimeTransformer{seen: map[int64]bool{}}
}

func (t *playTimeTransformer) Transform(_ context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
	page := r.Text("page")
	ts := r.Int("ts")
	if page == nil || *page != "NextSong" || ts == nil || t.seen[*ts] {
		return nil, nil
	}
	t.seen[*ts] = true

	start := time.UnixMilli(*ts).UTC()
	return []ingestor.TargetRecord{
		playTimes.Record(r.Origin, start.Format(time.RFC3339), int64(start.Hour()), start.Weekday().String()),
	}, nil
}

// Play timestamps are deduplicated within each log file, not across files.
func Example_fileScopedTransformer() {
	dir, err := os.MkdirTemp("", "log_data")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	logs := map[string]string{
		"2018-11-15-events.json": `{"ts":1542241826796,"page":"NextSong","userId":"26"}
{"ts":1542241826796,"page":"NextSong","userId":"26"}
{"ts":1542242112796,"page":"Home","userId":"26"}
`,
		"2018-11-16-events.json": `{"ts":1542241826796,"page":"NextSong","userId":"8"}
{"ts":1542242481796,"page":"NextSong","userId":"8"}
`,
	}
	for name, body := range logs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			panic(err)
		}
	}

	in, err := ingestor.New(ingestor.WithLogger(zerolog.Nop()))
	if err != nil {
		panic(err)
	}

	sink := ingestor.NewMemorySink()
	s, err := in.Run(context.Background(), &ingestor.Job{
		Name:        "time",
		Formats:     []ingestor.Format{ingestor.FormatJSONLines},
		Transformer: &playTimeTransformer{},
		Sink:        sink,
	}, dir)
	if err != nil {
		panic(err)
	}

	for _, r := range sink.Records("time") {
		fmt.Println(r.Values...)
	}
	fmt.Printf("written=%d dropped=%d\n", s.RecordsWritten, s.RecordsDropped)

	// Output:
	// 2018-11-15T00:30:26Z 0 Thursday
	// 2018-11-15T00:30:26Z 0 Thursday
	// 2018-11-15T00:41:21Z 0 Thursday
	// written=3 dropped=2
}
