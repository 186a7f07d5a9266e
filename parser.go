package ingestor

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Parser parses a source file into raw records, handing each to emit.
type Parser interface {
	Parse(ctx context.Context, f SourceFile, r io.Reader, emit func(RawRecord) error) error
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(context.Context, SourceFile, io.Reader, func(RawRecord) error) error

// Parse calls f.
func (f ParserFunc) Parse(ctx context.Context, sf SourceFile, r io.Reader, emit func(RawRecord) error) error {
	return f(ctx, sf, r, emit)
}

// MissingColumnError reports required columns absent from a file.
type MissingColumnError struct {
	Path    string
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required columns %s", e.Path, strings.Join(e.Columns, ", "))
}

// ParserFor returns the default parser of a format.
func ParserFor(f Format) (Parser, error) {
	switch f {
	case FormatJSONLines:
		return &JSONLinesParser{}, nil
	case FormatCSV:
		return &CSVParser{}, nil
	case FormatSAS7BDAT:
		return &SAS7BDATParser{}, nil
	case FormatXLS:
		return &XLSParser{}, nil
	default:
		return nil, xerrors.Errorf("no parser for format %s", f)
	}
}

// JSONLinesParser parses files holding one JSON object per line.
type JSONLinesParser struct {
	// Required lists fields every object must carry when Strict is set.
	Required []string
	Strict   bool
}

// Parse decodes objects until EOF. Numbers are kept as json.Number so large
// integer ids survive.
func (p *JSONLinesParser) Parse(ctx context.Context, f SourceFile, r io.Reader, emit func(RawRecord) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var m map[string]interface{}
		if err := dec.Decode(&m); err != nil {
			if err == io.EOF {
				return nil
			}
			return xerrors.Errorf("failed to decode object %d of %s: %w", n, f.Path, err)
		}

		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		h := NewHeader(keys...)
		if p.Strict {
			if missing := h.Missing(p.Required...); len(missing) > 0 {
				return &MissingColumnError{Path: f.Path, Columns: missing}
			}
		}

		values := make([]interface{}, len(keys))
		for i, k := range keys {
			values[i] = m[k]
		}

		if err := emit(NewRawRecord(Origin{Path: f.Path, Line: n}, h, values)); err != nil {
			return err
		}
	}
}

// CSVParser parses delimited text files.
type CSVParser struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// NoHeader treats the first row as data and names columns col_0, col_1...
	NoHeader bool

	// TrimLeadingSpace ignores leading white space in a field.
	TrimLeadingSpace bool

	// Required lists columns the header must contain when Strict is set.
	Required []string
	Strict   bool
}

// Parse reads the header and emits every following row. Rows shorter than
// the header leave the trailing columns absent.
func (p *CSVParser) Parse(ctx context.Context, f SourceFile, r io.Reader, emit func(RawRecord) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = p.TrimLeadingSpace
	if p.Comma != 0 {
		cr.Comma = p.Comma
	}

	var h *Header
	if !p.NoHeader {
		names, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("failed to read header of %s: %w", f.Path, err)
		}

		names = append([]string(nil), names...)
		if len(names) > 0 {
			names[0] = strings.TrimPrefix(names[0], "\ufeff")
		}
		h = NewHeader(names...)

		if p.Strict {
			if missing := h.Missing(p.Required...); len(missing) > 0 {
				return &MissingColumnError{Path: f.Path, Columns: missing}
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("failed to read %s: %w", f.Path, err)
		}

		if h == nil {
			names := make([]string, len(row))
			for i := range names {
				names[i] = "col_" + strconv.Itoa(i)
			}
			h = NewHeader(names...)
		}

		line, _ := cr.FieldPos(0)
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}

		if err := emit(NewRawRecord(Origin{Path: f.Path, Line: line}, h, values)); err != nil {
			return err
		}
	}
}
