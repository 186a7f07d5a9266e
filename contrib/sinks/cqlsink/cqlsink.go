// Package cqlsink writes target records to Cassandra. Each table has its
// own INSERT, so one record may be written to several query tables.
package cqlsink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/ingestor"
)

const defaultBatchSize = 100

// Statement is one CQL statement with positional arguments.
type Statement struct {
	CQL  string
	Args []interface{}
}

// Session is the part of a Cassandra session the sink needs.
type Session interface {
	Exec(ctx context.Context, cql string, args ...interface{}) error
	ExecBatch(ctx context.Context, stmts []Statement) error
	Count(ctx context.Context, table string) (int64, error)
}

// Config describes how to reach a cluster.
type Config struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

// Connect opens a session. An empty keyspace connects without one, which is
// needed to create the keyspace.
func Connect(cfg Config) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}

	s, err := cluster.CreateSession()
	if err != nil {
		return nil, xerrors.Errorf("failed to connect to %s: %w", strings.Join(cfg.Hosts, ","), err)
	}
	return s, nil
}

// NewSession wraps a gocql session.
func NewSession(s *gocql.Session) Session {
	return &gocqlSession{s: s}
}

type gocqlSession struct {
	s *gocql.Session
}

func (g *gocqlSession) Exec(ctx context.Context, cql string, args ...interface{}) error {
	return g.s.Query(cql, args...).WithContext(ctx).Exec()
}

func (g *gocqlSession) ExecBatch(ctx context.Context, stmts []Statement) error {
	b := g.s.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, st := range stmts {
		b.Query(st.CQL, st.Args...)
	}
	return g.s.ExecuteBatch(b)
}

func (g *gocqlSession) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := g.s.Query("SELECT COUNT(*) FROM "+table).WithContext(ctx).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// InsertStatement builds an INSERT of every column of t with positional
// markers.
func InsertStatement(t *ingestor.Table) string {
	cols := t.ColumnNames()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(cols, ", "), marks)
}

// Sink is an ingestor.Sink backed by Cassandra. Records are buffered and
// written in unlogged batches on Commit. Cassandra has no transactions: a
// failure in the middle of Commit leaves earlier batches written, which
// rerunning the file overwrites since inserts are upserts.
type Sink struct {
	session   Session
	batchSize int
}

// Option configures a Sink.
type Option func(*Sink)

// WithBatchSize sets the number of statements per batch.
func WithBatchSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New builds a Sink.
func New(session Session, opts ...Option) *Sink {
	s := &Sink{session: session, batchSize: defaultBatchSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Begin starts buffering one file.
func (s *Sink) Begin(_ context.Context, _ ingestor.SourceFile) (ingestor.Batch, error) {
	return &batch{sink: s, stmts: map[string]string{}}, nil
}

// Count returns the number of rows of a table.
func (s *Sink) Count(ctx context.Context, table string) (int64, error) {
	n, err := s.session.Count(ctx, table)
	if err != nil {
		return 0, xerrors.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

type batch struct {
	sink    *Sink
	stmts   map[string]string
	pending []Statement
	done    bool
}

func (b *batch) Insert(_ context.Context, r ingestor.TargetRecord) error {
	if b.done {
		return xerrors.New("batch already finished")
	}

	cql, ok := b.stmts[r.Table.Name]
	if !ok {
		cql = InsertStatement(r.Table)
		b.stmts[r.Table.Name] = cql
	}

	b.pending = append(b.pending, Statement{CQL: cql, Args: r.Values})
	return nil
}

func (b *batch) Commit(ctx context.Context) error {
	if b.done {
		return xerrors.New("batch already finished")
	}
	b.done = true

	size := b.sink.batchSize
	for i := 0; i < len(b.pending); i += size {
		end := i + size
		if end > len(b.pending) {
			end = len(b.pending)
		}

		if err := b.sink.session.ExecBatch(ctx, b.pending[i:end]); err != nil {
			return xerrors.Errorf("failed to execute batch of statements %d-%d: %w", i, end, err)
		}
	}

	log.Ctx(ctx).Debug().Int("statements", len(b.pending)).Msg("batches executed")
	b.pending = nil

	return nil
}

func (b *batch) Rollback(_ context.Context) error {
	b.pending = nil
	b.done = true
	return nil
}
