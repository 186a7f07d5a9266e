package immigration_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.nownabe.dev/ingestor"
	"go.nownabe.dev/ingestor/contrib/immigration"
	"go.nownabe.dev/ingestor/contrib/sinks/parquetsink"
)

const ports = `	'ANC'	=	'ANCHORAGE, AK'
	'NYC'	=	'NEW YORK, NY'
	'CHI'	=	'CHICAGO, IL'
`

const temperatures = `dt,AverageTemperature,AverageTemperatureUncertainty,City,Country,Latitude,Longitude
1743-11-01,,,Anchorage,United States,61.88N,151.13W
1743-12-01,-8.5,2.1,Anchorage,United States,61.88N,151.13W
1744-01-01,-9.1,2.0,Anchorage,United States,61.88N,151.13W
1744-01-01,11.2,0.4,New York,United States,40.99N,74.56W
1744-01-01,7.0,0.4,Aarhus,Denmark,57.05N,10.33E
`

const arrivals = `cicid,i94yr,i94mon,i94cit,i94res,i94port,arrdate,i94mode,depdate,i94visa
6.0,2016.0,4.0,692.0,692.0,ANC,20573.0,1.0,20582.0,2.0
7.0,2016.0,4.0,254.0,276.0,XXX,20551.0,1.0,,3.0
15.0,2016.0,4.0,101.0,101.0,NYC,20545.0,1.0,20691.0,2.0
16.0,2016.0,4.0,101.0,101.0,CHI,20545.0,1.0,20567.0,2.0
`

func newPorts(t *testing.T) *ingestor.PortMap {
	t.Helper()

	m, err := ingestor.ParsePortMap(strings.NewReader(ports))
	require.NoError(t, err)
	return m
}

func TestPipeline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "temperature"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "i94"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "temperature", "GlobalLandTemperaturesByCity.csv"), []byte(temperatures), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "i94", "i94_apr16_sub.csv"), []byte(arrivals), 0o644))

	sink := parquetsink.New(filepath.Join(root, "etl_results"))
	tempJob, immJob := immigration.Jobs(newPorts(t), sink, true)

	in, err := ingestor.New(ingestor.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	s, err := in.Run(ctx, tempJob, filepath.Join(root, "temperature"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.FilesProcessed)
	assert.Equal(t, 2, s.RecordsWritten, "one reading for Anchorage and one for New York")

	s, err = in.Run(ctx, immJob, filepath.Join(root, "i94"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.FilesProcessed)

	want := map[string]int64{"temperature": 2, "immigration": 3, "fact": 2}
	for table, n := range want {
		got, err := sink.Count(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, n, got, table)
	}

	_, err = os.Stat(filepath.Join(root, "etl_results", "fact.parquet", "i94port=ANC"))
	assert.NoError(t, err)

	require.NoError(t, ingestor.CheckQuality(ctx, sink, immigration.TableNames...))
}

func TestImmigrationTransformer(t *testing.T) {
	t.Parallel()

	index := immigration.NewTemperatureIndex()
	index.Add("ANC", immigration.Reading{Temperature: -8.5, Latitude: "61.88N", Longitude: "151.13W"})

	tr := &immigration.ImmigrationTransformer{Ports: newPorts(t), Index: index}

	h := ingestor.NewHeader(immigration.ImmigrationRequired...)
	r := ingestor.NewRawRecord(ingestor.Origin{Path: "i94.sas7bdat", Line: 1}, h,
		[]interface{}{2016.0, 4.0, 692.0, "ANC", 20573.0, 1.0, nil, 2.0})

	out, err := tr.Transform(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, out, 2)

	fact := out[1]
	assert.Equal(t, "fact", fact.Table.Name)
	assert.Equal(t, time.Date(2016, 4, 29, 0, 0, 0, 0, time.UTC), fact.Value("arrival_date"))
	assert.Nil(t, fact.Value("departure_date"))
	assert.Equal(t, -8.5, fact.Value("temperature"))
	assert.Equal(t, int64(692), fact.Value("city"))
}

func TestSASDate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC), immigration.SASDate(0))
	assert.Equal(t, time.Date(2016, 4, 1, 0, 0, 0, 0, time.UTC), immigration.SASDate(20545))
}

func TestPipeline_rolledBackTemperatures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	header := "dt,AverageTemperature,AverageTemperatureUncertainty,City,Country,Latitude,Longitude\n"
	bad := filepath.Join(root, "temperature", "a.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(bad), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "i94"), 0o755))
	require.NoError(t, os.WriteFile(bad, []byte(header+"1743-12-01,-8.5,2.1,Anchorage,United States,61.88N,151.13W\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "temperature", "b.csv"), []byte(header+"1744-01-01,-9.1,2.0,Anchorage,United States,61.88N,151.13W\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "i94", "i94_apr16_sub.csv"), []byte(arrivals), 0o644))

	temperatures := ingestor.NewMemorySink()
	temperatures.FailOn = bad
	sink := ingestor.NewMemorySink()

	tempJob, immJob := immigration.Jobs(newPorts(t), temperatures, false)
	immJob.Sink = sink

	in, err := ingestor.New(ingestor.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	s, err := in.Run(ctx, tempJob, filepath.Join(root, "temperature"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.FilesFailed)
	assert.Equal(t, 1, s.FilesProcessed)
	require.Len(t, temperatures.Records("temperature"), 1, "a city of a failed file should still load from a later file")

	_, err = in.Run(ctx, immJob, filepath.Join(root, "i94"))
	require.NoError(t, err)

	facts := sink.Records("fact")
	require.Len(t, facts, 1, "fact rows should only join committed readings")
	assert.Equal(t, -9.1, facts[0].Value("temperature"))
}
