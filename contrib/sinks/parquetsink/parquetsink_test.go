package parquetsink_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.nownabe.dev/ingestor"
	"go.nownabe.dev/ingestor/contrib/sinks/parquetsink"
)

var temperature = &ingestor.Table{
	Name: "temperature",
	Columns: []ingestor.Column{
		{Name: "AverageTemperature", Type: ingestor.TypeFloat64},
		{Name: "City", Type: ingestor.TypeString},
		{Name: "i94port", Type: ingestor.TypeString},
	},
	PartitionBy: "i94port",
}

func TestSink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := parquetsink.New(dir)

	b, err := s.Begin(ctx, ingestor.SourceFile{Path: "temp.csv"})
	require.NoError(t, err)

	require.NoError(t, b.Insert(ctx, temperature.Record(ingestor.Origin{}, 6.068, "Anchorage", "ANC")))
	require.NoError(t, b.Insert(ctx, temperature.Record(ingestor.Origin{}, 12.5, "Anchorage", "ANC")))
	require.NoError(t, b.Insert(ctx, temperature.Record(ingestor.Origin{}, nil, "Alcan", "ALC")))
	require.NoError(t, b.Commit(ctx))

	n, err := s.Count(ctx, "temperature")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	anc, err := filepath.Glob(filepath.Join(dir, "temperature.parquet", "i94port=ANC", "part-*.parquet"))
	require.NoError(t, err)
	assert.Len(t, anc, 1)

	alc, err := filepath.Glob(filepath.Join(dir, "temperature.parquet", "i94port=ALC", "part-*.parquet"))
	require.NoError(t, err)
	assert.Len(t, alc, 1)

	b, err = s.Begin(ctx, ingestor.SourceFile{Path: "temp2.csv"})
	require.NoError(t, err)
	require.NoError(t, b.Insert(ctx, temperature.Record(ingestor.Origin{}, 1.0, "Anchorage", "ANC")))
	require.NoError(t, b.Commit(ctx))

	n, err = s.Count(ctx, "temperature")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "commits should append")
}

func TestSink_rollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := parquetsink.New(dir)

	b, err := s.Begin(ctx, ingestor.SourceFile{Path: "temp.csv"})
	require.NoError(t, err)
	require.NoError(t, b.Insert(ctx, temperature.Record(ingestor.Origin{}, 6.068, "Anchorage", "ANC")))
	require.NoError(t, b.Rollback(ctx))

	_, err = os.Stat(s.TableDir("temperature"))
	assert.True(t, os.IsNotExist(err))

	n, err := s.Count(ctx, "temperature")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSink_nullPartition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := parquetsink.New(dir)

	b, err := s.Begin(ctx, ingestor.SourceFile{Path: "temp.csv"})
	require.NoError(t, err)
	require.NoError(t, b.Insert(ctx, temperature.Record(ingestor.Origin{}, 1.5, "Nowhere", nil)))
	require.NoError(t, b.Commit(ctx))

	files, err := filepath.Glob(filepath.Join(dir, "temperature.parquet", "i94port="+parquetsink.DefaultPartition, "*.parquet"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSink_columnTypes(t *testing.T) {
	t.Parallel()

	table := &ingestor.Table{
		Name: "immigration",
		Columns: []ingestor.Column{
			{Name: "cicid", Type: ingestor.TypeInt64},
			{Name: "visa", Type: ingestor.TypeString},
			{Name: "returned", Type: ingestor.TypeBool},
			{Name: "arrdate", Type: ingestor.TypeTimestamp},
			{Name: "i94port", Type: ingestor.TypeString},
		},
		PartitionBy: "i94port",
	}

	ctx := context.Background()
	s := parquetsink.New(t.TempDir())

	b, err := s.Begin(ctx, ingestor.SourceFile{Path: "i94.csv"})
	require.NoError(t, err)
	arrival := time.Date(2016, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.Insert(ctx, table.Record(ingestor.Origin{}, int64(6), "student", true, arrival, "NYC")))
	require.NoError(t, b.Insert(ctx, table.Record(ingestor.Origin{}, int64(7), nil, nil, nil, "NYC")))
	require.NoError(t, b.Commit(ctx), "every column type should be accepted by the writer")

	n, err := s.Count(ctx, "immigration")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
