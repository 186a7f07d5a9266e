// Package parquetsink appends target records to parquet files partitioned
// by a column, laid out as <dir>/<table>.parquet/<column>=<value>/part-*.parquet.
package parquetsink

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"go.nownabe.dev/ingestor"
)

// DefaultPartition names the partition of NULL values.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

const (
	defaultParallelism = 4
	tmpSuffix          = ".tmp"
)

// Sink is an ingestor.Sink writing parquet files under a directory.
type Sink struct {
	dir         string
	parallelism int
	seq         int64

	mu     sync.Mutex
	schema map[string]string
}

// New builds a Sink writing under dir.
func New(dir string) *Sink {
	return &Sink{dir: dir, parallelism: defaultParallelism, schema: map[string]string{}}
}

// TableDir returns the directory of a table.
func (s *Sink) TableDir(table string) string {
	return filepath.Join(s.dir, table+".parquet")
}

// Begin starts buffering one file.
func (s *Sink) Begin(ctx context.Context, f ingestor.SourceFile) (ingestor.Batch, error) {
	runID, ok := ingestor.RunIDFrom(ctx)
	if !ok {
		runID = fmt.Sprintf("%d", time.Now().UnixNano())
	}

	return &batch{sink: s, runID: runID, groups: map[groupKey]*group{}}, nil
}

// Count returns the number of rows in every part file of a table.
func (s *Sink) Count(_ context.Context, table string) (int64, error) {
	root := s.TableDir(table)

	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".parquet") {
			return nil
		}

		n, err := countRows(path)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		return 0, xerrors.Errorf("failed to count %s: %w", table, err)
	}

	return total, nil
}

func countRows(path string) (int64, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return 0, xerrors.Errorf("failed to open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return 0, xerrors.Errorf("failed to read footer of %s: %w", path, err)
	}
	defer pr.ReadStop()

	return pr.GetNumRows(), nil
}

// schemaOf builds the JSON schema of a table without its partition column.
func (s *Sink) schemaOf(t *ingestor.Table) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc, ok := s.schema[t.Name]; ok {
		return sc
	}

	type field struct {
		Tag string `json:"Tag"`
	}
	type schema struct {
		Tag    string  `json:"Tag"`
		Fields []field `json:"Fields"`
	}

	sc := schema{Tag: "name=" + t.Name + ", repetitiontype=REQUIRED"}
	for _, c := range t.Columns {
		if c.Name == t.PartitionBy {
			continue
		}

		tag := "name=" + c.Name + ", repetitiontype=OPTIONAL, type="
		switch c.Type {
		case ingestor.TypeInt64:
			tag += "INT64"
		case ingestor.TypeFloat64:
			tag += "DOUBLE"
		case ingestor.TypeBool:
			tag += "BOOLEAN"
		default:
			tag += "UTF8"
		}
		sc.Fields = append(sc.Fields, field{Tag: tag})
	}

	b, _ := json.Marshal(sc)
	s.schema[t.Name] = string(b)

	return s.schema[t.Name]
}

type groupKey struct {
	table     string
	partition string
}

type group struct {
	table *ingestor.Table
	rows  []string
}

type batch struct {
	sink   *Sink
	runID  string
	groups map[groupKey]*group
	done   bool
}

func (b *batch) Insert(_ context.Context, r ingestor.TargetRecord) error {
	if b.done {
		return xerrors.New("batch already finished")
	}

	t := r.Table
	partition := ""
	if t.PartitionBy != "" {
		partition = partitionValue(r.Value(t.PartitionBy))
	}

	row := map[string]interface{}{}
	for i, c := range t.Columns {
		if c.Name == t.PartitionBy || i >= len(r.Values) || r.Values[i] == nil {
			continue
		}

		v, err := jsonValue(c, r.Values[i])
		if err != nil {
			return xerrors.Errorf("column %s of %s: %w", c.Name, t.Name, err)
		}
		if v != nil {
			row[c.Name] = v
		}
	}

	line, err := json.Marshal(row)
	if err != nil {
		return xerrors.Errorf("failed to marshal row of %s: %w", t.Name, err)
	}

	k := groupKey{table: t.Name, partition: partition}
	g, ok := b.groups[k]
	if !ok {
		g = &group{table: t}
		b.groups[k] = g
	}
	g.rows = append(g.rows, string(line))

	return nil
}

func jsonValue(c ingestor.Column, v interface{}) (interface{}, error) {
	switch c.Type {
	case ingestor.TypeInt64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64:
			if math.IsNaN(n) {
				return nil, nil
			}
			return int64(n), nil
		}
	case ingestor.TypeFloat64:
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) {
				return nil, nil
			}
			return n, nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case ingestor.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ingestor.TypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
	default:
		return fmt.Sprint(v), nil
	}
	return nil, xerrors.Errorf("unexpected value %v (%T)", v, v)
}

func partitionValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return DefaultPartition
	case string:
		if t == "" {
			return DefaultPartition
		}
		return url.PathEscape(t)
	default:
		return url.PathEscape(fmt.Sprint(t))
	}
}

func (b *batch) Commit(ctx context.Context) error {
	if b.done {
		return xerrors.New("batch already finished")
	}
	b.done = true

	keys := make([]groupKey, 0, len(b.groups))
	for k := range b.groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].table != keys[j].table {
			return keys[i].table < keys[j].table
		}
		return keys[i].partition < keys[j].partition
	})

	paths := make([]string, len(keys))
	for i, k := range keys {
		g := b.groups[k]
		dir := b.sink.TableDir(k.table)
		if g.table.PartitionBy != "" {
			dir = filepath.Join(dir, g.table.PartitionBy+"="+k.partition)
		}
		seq := atomic.AddInt64(&b.sink.seq, 1)
		paths[i] = filepath.Join(dir, fmt.Sprintf("part-%s-%05d.parquet", b.runID, seq))
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(b.sink.parallelism)
	for i, k := range keys {
		i, g := i, b.groups[k]
		eg.Go(func() error {
			return b.sink.writeFile(ectx, paths[i]+tmpSuffix, g)
		})
	}

	if err := eg.Wait(); err != nil {
		removeAll(paths, tmpSuffix)
		return xerrors.Errorf("failed to write parquet files: %w", err)
	}

	for i, p := range paths {
		if err := os.Rename(p+tmpSuffix, p); err != nil {
			removeAll(paths[i:], tmpSuffix)
			removeAll(paths[:i], "")
			return xerrors.Errorf("failed to publish %s: %w", p, err)
		}
	}

	log.Ctx(ctx).Debug().Int("files", len(paths)).Msg("parquet files written")
	b.groups = nil

	return nil
}

func (b *batch) Rollback(_ context.Context) error {
	b.groups = nil
	b.done = true
	return nil
}

func (s *Sink) writeFile(ctx context.Context, path string, g *group) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewJSONWriter(s.schemaOf(g.table), fw, 1)
	if err != nil {
		return xerrors.Errorf("failed to init parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range g.rows {
		if err := pw.Write(row); err != nil {
			return xerrors.Errorf("failed to write row to %s: %w", path, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return xerrors.Errorf("failed to finish %s: %w", path, err)
	}

	return nil
}

func removeAll(paths []string, suffix string) {
	for _, p := range paths {
		os.Remove(p + suffix)
	}
}
