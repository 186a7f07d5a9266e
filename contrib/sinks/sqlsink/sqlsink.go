// Package sqlsink writes target records to a relational database through
// sqlx, one transaction per source file.
package sqlsink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	// Drivers selectable by name in Open.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"go.nownabe.dev/ingestor"
)

// Statements maps table names to named INSERT statements such as
// "INSERT INTO users (user_id, level) VALUES (:user_id, :level)".
// Parameters are column names of the table.
type Statements map[string]string

// Open connects to a database. driver is one of postgres, mysql or sqlite3.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s database: %w", driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to connect to %s database: %w", driver, err)
	}

	return db, nil
}

// InsertStatement builds a plain named INSERT of every column of t.
func InsertStatement(t *ingestor.Table) string {
	cols := t.ColumnNames()
	params := make([]string, len(cols))
	for i, c := range cols {
		params[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(cols, ", "), strings.Join(params, ", "))
}

// Sink is an ingestor.Sink backed by a database.
type Sink struct {
	db    *sqlx.DB
	stmts Statements
}

// New builds a Sink. Tables without a statement are inserted with
// InsertStatement.
func New(db *sqlx.DB, stmts Statements) *Sink {
	if stmts == nil {
		stmts = Statements{}
	}
	return &Sink{db: db, stmts: stmts}
}

// DB returns the underlying database.
func (s *Sink) DB() *sqlx.DB {
	return s.db
}

// Begin starts the transaction of one file.
func (s *Sink) Begin(ctx context.Context, f ingestor.SourceFile) (ingestor.Batch, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to begin transaction for %s: %w", f.Path, err)
	}

	return &batch{sink: s, tx: tx, prepared: map[string]*sqlx.NamedStmt{}}, nil
}

// Count returns the number of rows of a table.
func (s *Sink) Count(ctx context.Context, table string) (int64, error) {
	if !validIdentifier(table) {
		return 0, xerrors.Errorf("invalid table name %q", table)
	}

	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, xerrors.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r == '.' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

type batch struct {
	sink     *Sink
	tx       *sqlx.Tx
	prepared map[string]*sqlx.NamedStmt
	inserted int
}

func (b *batch) statement(ctx context.Context, t *ingestor.Table) (*sqlx.NamedStmt, error) {
	if st, ok := b.prepared[t.Name]; ok {
		return st, nil
	}

	q, ok := b.sink.stmts[t.Name]
	if !ok {
		q = InsertStatement(t)
	}

	st, err := b.tx.PrepareNamedContext(ctx, q)
	if err != nil {
		return nil, xerrors.Errorf("failed to prepare insert into %s: %w", t.Name, err)
	}
	b.prepared[t.Name] = st

	return st, nil
}

func (b *batch) Insert(ctx context.Context, r ingestor.TargetRecord) error {
	st, err := b.statement(ctx, r.Table)
	if err != nil {
		return err
	}

	if _, err := st.ExecContext(ctx, r.Map()); err != nil {
		return xerrors.Errorf("failed to insert into %s: %w", r.Table.Name, err)
	}
	b.inserted++

	return nil
}

func (b *batch) Commit(ctx context.Context) error {
	b.close()
	if err := b.tx.Commit(); err != nil {
		return xerrors.Errorf("failed to commit: %w", err)
	}

	log.Ctx(ctx).Debug().Int("rows", b.inserted).Msg("transaction committed")

	return nil
}

func (b *batch) Rollback(_ context.Context) error {
	b.close()
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return xerrors.Errorf("failed to roll back: %w", err)
	}
	return nil
}

func (b *batch) close() {
	for name, st := range b.prepared {
		st.Close()
		delete(b.prepared, name)
	}
}
