package ingestor

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// ErrEmptyTable is reported by CheckQuality for tables without rows.
var ErrEmptyTable = errors.New("table has no rows")

// Counter counts the rows of a destination table. Sinks implement it.
type Counter interface {
	Count(ctx context.Context, table string) (int64, error)
}

// QualityError lists the tables that failed a quality check.
type QualityError struct {
	Tables []string
	Errs   []error
}

func (e *QualityError) Error() string {
	return "data quality check failed for " + strings.Join(e.Tables, ", ")
}

// Unwrap returns the failures of each table.
func (e *QualityError) Unwrap() []error {
	return e.Errs
}

// CheckQuality fails when any of tables holds no rows.
func CheckQuality(ctx context.Context, c Counter, tables ...string) error {
	l := log.Ctx(ctx)
	qe := &QualityError{}

	for _, t := range tables {
		n, err := c.Count(ctx, t)
		switch {
		case err != nil:
			err = xerrors.Errorf("failed to count %s: %w", t, err)
		case n == 0:
			err = xerrors.Errorf("%s: %w", t, ErrEmptyTable)
		}

		if err != nil {
			l.Error().Err(err).Str("table", t).Msg("data quality check failed")
			qe.Tables = append(qe.Tables, t)
			qe.Errs = append(qe.Errs, err)
			continue
		}

		l.Info().Str("table", t).Int64("records", n).Msgf("data quality check passed for %s with %d records", t, n)
	}

	if len(qe.Tables) > 0 {
		return qe
	}
	return nil
}
