// Package immigration joins the I94 immigration extracts with city
// temperatures on the i94 port and writes both dimensions and the fact
// table as parquet partitioned by port.
package immigration

import (
	"context"
	"sync"
	"time"

	"go.nownabe.dev/ingestor"
)

// PartitionColumn is the column every table is partitioned by.
const PartitionColumn = "i94port"

// Tables.
var (
	Immigration = &ingestor.Table{
		Name: "immigration",
		Columns: []ingestor.Column{
			{Name: "i94yr", Type: ingestor.TypeInt64},
			{Name: "i94mon", Type: ingestor.TypeInt64},
			{Name: "i94cit", Type: ingestor.TypeInt64},
			{Name: "i94port", Type: ingestor.TypeString},
			{Name: "arrdate", Type: ingestor.TypeInt64},
			{Name: "i94mode", Type: ingestor.TypeInt64},
			{Name: "depdate", Type: ingestor.TypeInt64},
			{Name: "i94visa", Type: ingestor.TypeInt64},
		},
		PartitionBy: PartitionColumn,
	}

	Temperature = &ingestor.Table{
		Name: "temperature",
		Columns: []ingestor.Column{
			{Name: "AverageTemperature", Type: ingestor.TypeFloat64},
			{Name: "City", Type: ingestor.TypeString},
			{Name: "Country", Type: ingestor.TypeString},
			{Name: "Latitude", Type: ingestor.TypeString},
			{Name: "Longitude", Type: ingestor.TypeString},
			{Name: "i94port", Type: ingestor.TypeString},
		},
		PartitionBy: PartitionColumn,
	}

	Fact = &ingestor.Table{
		Name: "fact",
		Columns: []ingestor.Column{
			{Name: "year", Type: ingestor.TypeInt64},
			{Name: "month", Type: ingestor.TypeInt64},
			{Name: "city", Type: ingestor.TypeInt64},
			{Name: "i94port", Type: ingestor.TypeString},
			{Name: "arrival_date", Type: ingestor.TypeTimestamp},
			{Name: "departure_date", Type: ingestor.TypeTimestamp},
			{Name: "reason", Type: ingestor.TypeInt64},
			{Name: "temperature", Type: ingestor.TypeFloat64},
			{Name: "latitude", Type: ingestor.TypeString},
			{Name: "longitude", Type: ingestor.TypeString},
		},
		PartitionBy: PartitionColumn,
	}
)

// TableNames lists the tables written by a run.
var TableNames = []string{"immigration", "temperature", "fact"}

var sasEpoch = time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)

// SASDate converts a SAS date, days since 1960-01-01, to a time.
func SASDate(days int64) time.Time {
	return sasEpoch.AddDate(0, 0, int(days))
}

// Reading is the temperature of a city matched to a port.
type Reading struct {
	Temperature float64
	Latitude    interface{}
	Longitude   interface{}
}

// TemperatureIndex keeps the readings of each port.
type TemperatureIndex struct {
	mu    sync.RWMutex
	ports map[string][]Reading
}

// NewTemperatureIndex builds an empty index.
func NewTemperatureIndex() *TemperatureIndex {
	return &TemperatureIndex{ports: map[string][]Reading{}}
}

// Add registers a reading.
func (x *TemperatureIndex) Add(port string, r Reading) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ports[port] = append(x.ports[port], r)
}

// Readings returns the readings of a port.
func (x *TemperatureIndex) Readings(port string) []Reading {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ports[port]
}

// Len returns the number of ports with readings.
func (x *TemperatureIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ports)
}

// TemperatureRequired lists the columns of the temperature CSV.
var TemperatureRequired = []string{"AverageTemperature", "City", "Country", "Latitude", "Longitude"}

// TemperatureTransformer keeps the first reading of every city and country
// with a temperature, and matches the city to a port by name. Cities no
// port name contains are dropped. Within a run, readings reach Index and
// count as seen only once their file commits.
type TemperatureTransformer struct {
	Ports *ingestor.PortMap
	Index *TemperatureIndex

	mu   sync.Mutex
	seen map[string]struct{}
}

// ForFile implements ingestor.FileScoped.
func (t *TemperatureTransformer) ForFile(ingestor.SourceFile) ingestor.Transformer {
	return t.newFile()
}

// Transform handles records outside a run and publishes them at once.
func (t *TemperatureTransformer) Transform(ctx context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
	f := t.newFile()
	out, err := f.Transform(ctx, r)
	if err != nil {
		return nil, err
	}
	f.Publish()
	return out, nil
}

func (t *TemperatureTransformer) newFile() *temperatureFile {
	return &temperatureFile{parent: t, seen: map[string]struct{}{}}
}

func (t *TemperatureTransformer) wasSeen(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.seen[key]
	return ok
}

type portReading struct {
	port    string
	reading Reading
}

// temperatureFile stages the cities and readings of one file.
type temperatureFile struct {
	parent   *TemperatureTransformer
	seen     map[string]struct{}
	readings []portReading
}

func (f *temperatureFile) Transform(_ context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
	temp := r.Float("AverageTemperature")
	city := r.Text("City")
	if temp == nil || city == nil {
		return nil, nil
	}

	country := r.Text("Country")
	key := *city + "\x00"
	if country != nil {
		key += *country
	}
	if _, ok := f.seen[key]; ok || f.parent.wasSeen(key) {
		return nil, nil
	}
	f.seen[key] = struct{}{}

	port, ok := f.parent.Ports.Lookup(*city)
	if !ok {
		return nil, nil
	}

	lat, lon := ingestor.Null(r.Text("Latitude")), ingestor.Null(r.Text("Longitude"))
	f.readings = append(f.readings, portReading{
		port:    port,
		reading: Reading{Temperature: *temp, Latitude: lat, Longitude: lon},
	})

	return []ingestor.TargetRecord{
		Temperature.Record(r.Origin, *temp, *city, ingestor.Null(country), lat, lon, port),
	}, nil
}

// Publish implements ingestor.Publisher.
func (f *temperatureFile) Publish() {
	t := f.parent

	t.mu.Lock()
	if t.seen == nil {
		t.seen = map[string]struct{}{}
	}
	for k := range f.seen {
		t.seen[k] = struct{}{}
	}
	t.mu.Unlock()

	if t.Index != nil {
		for _, pr := range f.readings {
			t.Index.Add(pr.port, pr.reading)
		}
	}

	f.seen, f.readings = map[string]struct{}{}, nil
}

// ImmigrationRequired lists the columns read from the I94 extracts.
var ImmigrationRequired = []string{"i94yr", "i94mon", "i94cit", "i94port", "arrdate", "i94mode", "depdate", "i94visa"}

// ImmigrationTransformer keeps arrivals through a valid port. Each arrival
// yields an immigration row and one fact row per temperature reading of its
// port.
type ImmigrationTransformer struct {
	Ports *ingestor.PortMap
	Index *TemperatureIndex
}

// Transform implements ingestor.Transformer.
func (t *ImmigrationTransformer) Transform(_ context.Context, r ingestor.RawRecord) ([]ingestor.TargetRecord, error) {
	port := r.Text("i94port")
	if port == nil || !t.Ports.Valid(*port) {
		return nil, nil
	}

	year, month, cit := r.Int("i94yr"), r.Int("i94mon"), r.Int("i94cit")
	arr, dep, visa := r.Int("arrdate"), r.Int("depdate"), r.Int("i94visa")

	out := []ingestor.TargetRecord{
		Immigration.Record(r.Origin,
			ingestor.Null(year),
			ingestor.Null(month),
			ingestor.Null(cit),
			*port,
			ingestor.Null(arr),
			ingestor.Null(r.Int("i94mode")),
			ingestor.Null(dep),
			ingestor.Null(visa),
		),
	}

	if t.Index == nil {
		return out, nil
	}

	arrival, departure := sasDate(arr), sasDate(dep)
	for _, rd := range t.Index.Readings(*port) {
		out = append(out, Fact.Record(r.Origin,
			ingestor.Null(year),
			ingestor.Null(month),
			ingestor.Null(cit),
			*port,
			arrival,
			departure,
			ingestor.Null(visa),
			rd.Temperature,
			rd.Latitude,
			rd.Longitude,
		))
	}

	return out, nil
}

func sasDate(days *int64) interface{} {
	if days == nil {
		return nil
	}
	return SASDate(*days)
}
