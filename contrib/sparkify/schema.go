package sparkify

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

//go:embed migrations
var migrations embed.FS

var gooseDialects = map[string]goose.Dialect{
	Postgres: goose.DialectPostgres,
	MySQL:    goose.DialectMySQL,
	SQLite:   goose.DialectSQLite3,
}

func provider(db *sql.DB, dialect string) (*goose.Provider, error) {
	d, ok := gooseDialects[dialect]
	if !ok {
		return nil, xerrors.Errorf("unsupported dialect %q", dialect)
	}

	fsys, err := fs.Sub(migrations, "migrations/"+dialect)
	if err != nil {
		return nil, xerrors.Errorf("failed to open migrations of %s: %w", dialect, err)
	}

	p, err := goose.NewProvider(d, db, fsys)
	if err != nil {
		return nil, xerrors.Errorf("failed to build migration provider: %w", err)
	}
	return p, nil
}

// CreateTables drops the star schema if a previous run created it and
// creates it again.
func CreateTables(ctx context.Context, db *sql.DB, dialect string) error {
	l := log.Ctx(ctx)

	p, err := provider(db, dialect)
	if err != nil {
		return err
	}

	dropped, err := p.DownTo(ctx, 0)
	if err != nil {
		return xerrors.Errorf("failed to drop tables: %w", err)
	}
	l.Info().Int("migrations", len(dropped)).Msg("tables dropped")

	created, err := p.Up(ctx)
	if err != nil {
		return xerrors.Errorf("failed to create tables: %w", err)
	}
	l.Info().Int("migrations", len(created)).Msg("tables created")

	return nil
}

// MigrateTables creates the star schema when missing and keeps existing rows.
func MigrateTables(ctx context.Context, db *sql.DB, dialect string) error {
	p, err := provider(db, dialect)
	if err != nil {
		return err
	}

	if _, err := p.Up(ctx); err != nil {
		return xerrors.Errorf("failed to create tables: %w", err)
	}
	return nil
}
