package sparkify_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.nownabe.dev/ingestor"
	"go.nownabe.dev/ingestor/contrib/sinks/cqlsink"
	"go.nownabe.dev/ingestor/contrib/sparkify"
)

const eventHeader = "artist,auth,firstName,gender,itemInSession,lastName,length,level,location,method,page,registration,sessionId,song,status,ts,userId\n"

const eventDay1 = eventHeader +
	`Harmonia,Logged In,Ryan,M,0,Smith,655.77751,free,"San Jose-Sunnyvale-Santa Clara, CA",PUT,NextSong,1.54102E+12,583,Sehr kosmisch,200,1.54224E+12,26` + "\n" +
	`,Logged In,Ryan,M,1,Smith,,free,"San Jose-Sunnyvale-Santa Clara, CA",GET,Home,1.54102E+12,583,,200,1.54224E+12,26` + "\n"

const eventDay2 = eventHeader +
	`The Prodigy,Logged In,Ryan,M,2,Smith,260.07465,free,"San Jose-Sunnyvale-Santa Clara, CA",PUT,NextSong,1.54102E+12,583,The Big Gundown,200,1.54224E+12,26` + "\n"

type testSession struct {
	execs      []string
	statements []cqlsink.Statement
}

func (s *testSession) Exec(_ context.Context, cql string, _ ...interface{}) error {
	s.execs = append(s.execs, cql)
	return nil
}

func (s *testSession) ExecBatch(_ context.Context, stmts []cqlsink.Statement) error {
	s.statements = append(s.statements, stmts...)
	return nil
}

func (s *testSession) Count(_ context.Context, table string) (int64, error) {
	var n int64
	for _, st := range s.statements {
		if strings.HasPrefix(st.CQL, "INSERT INTO "+table+" ") {
			n++
		}
	}
	return n, nil
}

func TestEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"event_data/2018-11-01-events.csv": eventDay1,
		"event_data/2018-11-02-events.csv": eventDay2,
	})

	target := filepath.Join(root, "event_datafile_new.csv")
	n, err := sparkify.ConsolidateEvents(ctx, ingestor.LocalSource{}, filepath.Join(root, "event_data"), target)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(b), "\r\n"), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"artist","firstName","gender","itemInSession","lastName","length","level","location","sessionId","song","userId"`, lines[0])
	assert.Equal(t, `"Harmonia","Ryan","M","0","Smith","655.77751","free","San Jose-Sunnyvale-Santa Clara, CA","583","Sehr kosmisch","26"`, lines[1])

	ts := &testSession{}
	sink := cqlsink.New(ts)
	job := &ingestor.Job{
		Name:        "events",
		Pattern:     nil,
		Parser:      sparkify.EventParser{},
		Transformer: sparkify.EventTransformer{},
		Sink:        sink,
	}

	in := newIngestor(t)
	s, err := in.Run(ctx, job, target)
	require.NoError(t, err)
	assert.Equal(t, 1, s.FilesProcessed)
	assert.Equal(t, 6, s.RecordsWritten)

	require.NoError(t, ingestor.CheckQuality(ctx, sink, sparkify.EventTables...))

	first := ts.statements[0]
	assert.Equal(t, []interface{}{int64(583), int64(0), "Harmonia", "Sehr kosmisch", 655.77751}, first.Args)
}

func TestEventParser_missingColumns(t *testing.T) {
	t.Parallel()

	f := ingestor.SourceFile{Path: "event_datafile_new.csv", Format: ingestor.FormatCSV}
	err := sparkify.EventParser{}.Parse(context.Background(), f, strings.NewReader("artist,song\nA,B\n"), func(ingestor.RawRecord) error { return nil })

	var mce *ingestor.MissingColumnError
	require.True(t, errors.As(err, &mce), "error should be MissingColumnError, but %v", err)
	assert.Contains(t, mce.Columns, "userId")
}

func TestCreateEventTables(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := &testSession{}

	require.NoError(t, sparkify.CreateKeyspace(ctx, ts, "sparkifydb", 1))
	require.NoError(t, sparkify.CreateEventTables(ctx, ts))

	require.Len(t, ts.execs, 8)
	assert.Equal(t, "DROP KEYSPACE IF EXISTS sparkifydb", ts.execs[0])
	assert.Contains(t, ts.execs[1], "'replication_factor': 1")
	assert.Contains(t, ts.execs[5], "PRIMARY KEY (session_id, item_in_session)")

	assert.Error(t, sparkify.CreateKeyspace(ctx, ts, "sparkify; DROP", 1))
	assert.Error(t, sparkify.CreateKeyspace(ctx, ts, "sparkifydb", 0))
}
