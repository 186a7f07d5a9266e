// Package bqsink loads target records into BigQuery with one CSV load job
// per table per source file.
package bqsink

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"go.nownabe.dev/ingestor"
)

// loader loads CSV records into a destination table.
type loader interface {
	load(ctx context.Context, table string, records [][]string) error
}

type bigqueryLoader struct {
	dataset *bigquery.Dataset
}

func (l *bigqueryLoader) load(ctx context.Context, table string, records [][]string) error {
	buf := &bytes.Buffer{}
	if err := csv.NewWriter(buf).WriteAll(records); err != nil {
		return xerrors.Errorf("failed to write csv: %w", err)
	}

	rs := bigquery.NewReaderSource(buf)
	rs.SourceFormat = bigquery.CSV

	ld := l.dataset.Table(table).LoaderFrom(rs)
	ld.WriteDisposition = bigquery.WriteAppend
	ld.CreateDisposition = bigquery.CreateNever

	job, err := ld.Run(ctx)
	if err != nil {
		return xerrors.Errorf("failed to run bigquery load job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return xerrors.Errorf("failed to wait job: %w", err)
	}

	if status.Err() != nil {
		return xerrors.Errorf("failed to load csv: %w (%v)", status.Err(), status.Errors)
	}

	return nil
}

// Sink is an ingestor.Sink backed by a BigQuery dataset.
type Sink struct {
	client *bigquery.Client
	loader loader
}

// New connects to BigQuery.
func New(ctx context.Context, project, dataset string) (*Sink, error) {
	bq, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, xerrors.Errorf("failed to build bigquery client: %w", err)
	}

	return &Sink{client: bq, loader: &bigqueryLoader{dataset: bq.Dataset(dataset)}}, nil
}

// Close closes the client.
func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Begin starts buffering one file.
func (s *Sink) Begin(_ context.Context, _ ingestor.SourceFile) (ingestor.Batch, error) {
	return &batch{loader: s.loader, tables: map[string][][]string{}}, nil
}

type batch struct {
	loader loader
	tables map[string][][]string
	done   bool
}

func (b *batch) Insert(_ context.Context, r ingestor.TargetRecord) error {
	if b.done {
		return xerrors.New("batch already finished")
	}

	row := make([]string, len(r.Table.Columns))
	for i := range row {
		if i < len(r.Values) {
			row[i] = csvValue(r.Values[i])
		}
	}
	b.tables[r.Table.Name] = append(b.tables[r.Table.Name], row)

	return nil
}

func csvValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05.999999")
	default:
		return fmt.Sprint(t)
	}
}

// Commit runs the load jobs concurrently. Jobs already finished when
// another fails are not undone.
func (b *batch) Commit(ctx context.Context) error {
	if b.done {
		return xerrors.New("batch already finished")
	}
	b.done = true

	names := make([]string, 0, len(b.tables))
	for n := range b.tables {
		names = append(names, n)
	}
	sort.Strings(names)

	eg, ectx := errgroup.WithContext(ctx)
	for _, n := range names {
		n := n
		records := b.tables[n]
		eg.Go(func() error {
			if err := b.loader.load(ectx, n, records); err != nil {
				return xerrors.Errorf("failed to load %s: %w", n, err)
			}
			log.Ctx(ctx).Debug().Str("table", n).Int("rows", len(records)).Msg("loaded")
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	b.tables = nil
	return nil
}

func (b *batch) Rollback(_ context.Context) error {
	b.tables = nil
	b.done = true
	return nil
}
