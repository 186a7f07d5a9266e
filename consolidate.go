package ingestor

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// ConsolidateSpec describes the combined file written by Consolidate.
type ConsolidateSpec struct {
	// Header is written as the first row.
	Header []string

	// Columns are the input positions projected into the output, in order.
	Columns []int
}

// Consolidate merges many small CSV files into w. The header row of every
// input is skipped, rows whose first field is empty are dropped, and the
// remaining rows are projected to spec.Columns. Every output field is quoted.
// It returns the number of data rows written.
func Consolidate(ctx context.Context, src Source, files []SourceFile, w io.Writer, spec ConsolidateSpec) (int, error) {
	l := log.Ctx(ctx)

	if len(spec.Header) != len(spec.Columns) {
		return 0, xerrors.Errorf("header has %d names but %d columns are projected", len(spec.Header), len(spec.Columns))
	}

	qw := newQuoteAllWriter(w)
	if err := qw.Write(spec.Header); err != nil {
		return 0, xerrors.Errorf("failed to write header: %w", err)
	}

	written := 0
	out := make([]string, len(spec.Columns))

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, err := consolidateFile(ctx, src, f, spec, out, qw)
		if err != nil {
			return written, err
		}
		written += n
		l.Debug().Str("file", f.Path).Int("rows", n).Msg("consolidated")
	}

	if err := qw.Flush(); err != nil {
		return written, xerrors.Errorf("failed to flush combined file: %w", err)
	}

	l.Info().Msgf("%d rows from %d files consolidated", written, len(files))

	return written, nil
}

func consolidateFile(ctx context.Context, src Source, f SourceFile, spec ConsolidateSpec, out []string, qw *quoteAllWriter) (int, error) {
	r, closer, err := src.Extract(ctx, f)
	if err != nil {
		return 0, xerrors.Errorf("failed to read %s: %w", f.Path, err)
	}
	defer closer()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, xerrors.Errorf("failed to read header of %s: %w", f.Path, err)
	}

	n := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, xerrors.Errorf("failed to read %s: %w", f.Path, err)
		}

		if len(row) == 0 || row[0] == "" {
			continue
		}

		for i, c := range spec.Columns {
			if c >= len(row) {
				line, _ := cr.FieldPos(0)
				return n, xerrors.Errorf("%s:%d has %d fields, column %d projected", f.Path, line, len(row), c)
			}
			out[i] = row[c]
		}

		if err := qw.Write(out); err != nil {
			return n, xerrors.Errorf("failed to write combined row: %w", err)
		}
		n++
	}

	return n, nil
}

// quoteAllWriter writes CSV rows quoting every field.
type quoteAllWriter struct {
	w *bufio.Writer
}

func newQuoteAllWriter(w io.Writer) *quoteAllWriter {
	return &quoteAllWriter{w: bufio.NewWriter(w)}
}

func (q *quoteAllWriter) Write(fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := q.w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := q.w.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	_, err := q.w.WriteString("\r\n")
	return err
}

func (q *quoteAllWriter) Flush() error {
	return q.w.Flush()
}
