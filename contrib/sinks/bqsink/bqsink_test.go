package bqsink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.nownabe.dev/ingestor"
)

type testLoader struct {
	mu     sync.Mutex
	result map[string][][]string
	fail   string
}

func newTestLoader() *testLoader {
	return &testLoader{result: map[string][][]string{}}
}

func (l *testLoader) load(_ context.Context, table string, rs [][]string) error {
	if table == l.fail {
		return errors.New("load failed")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.result[table] = rs
	return nil
}

var timeTable = &ingestor.Table{
	Name: "time",
	Columns: []ingestor.Column{
		{Name: "start_time", Type: ingestor.TypeTimestamp},
		{Name: "hour", Type: ingestor.TypeInt64},
		{Name: "weekday", Type: ingestor.TypeInt64},
	},
}

var users = &ingestor.Table{
	Name:    "users",
	Columns: []ingestor.Column{{Name: "user_id"}, {Name: "level"}},
}

func TestSink(t *testing.T) {
	tl := newTestLoader()
	s := &Sink{loader: tl}
	ctx := context.Background()

	b, err := s.Begin(ctx, ingestor.SourceFile{Path: "log.json"})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2017, 1, 12, 2, 26, 49, 0, time.UTC)
	if err := b.Insert(ctx, timeTable.Record(ingestor.Origin{}, start, int64(2), int64(3))); err != nil {
		t.Fatal(err)
	}
	if err := b.Insert(ctx, users.Record(ingestor.Origin{}, int64(39), nil)); err != nil {
		t.Fatal(err)
	}

	if len(tl.result) != 0 {
		t.Fatalf("nothing should be loaded before commit, but %d tables", len(tl.result))
	}

	if err := b.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	rs := tl.result["time"]
	if len(rs) != 1 {
		t.Fatalf("Size of time records should be 1, but %d", len(rs))
	}
	if rs[0][0] != "2017-01-12 02:26:49" {
		t.Errorf(`start_time should be "2017-01-12 02:26:49", but "%s"`, rs[0][0])
	}
	if rs[0][2] != "3" {
		t.Errorf(`weekday should be "3", but "%s"`, rs[0][2])
	}
	if u := tl.result["users"]; len(u) != 1 || u[0][1] != "" {
		t.Errorf("NULL level should be an empty field, but %v", u)
	}
}

func TestSink_loadError(t *testing.T) {
	tl := newTestLoader()
	tl.fail = "users"
	s := &Sink{loader: tl}
	ctx := context.Background()

	b, _ := s.Begin(ctx, ingestor.SourceFile{Path: "log.json"})
	_ = b.Insert(ctx, users.Record(ingestor.Origin{}, int64(39), "free"))

	if err := b.Commit(ctx); err == nil {
		t.Error("expected error but no error occurred")
	}
}
