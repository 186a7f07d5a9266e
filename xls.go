package ingestor

import (
	"context"
	"errors"
	"io"

	"github.com/extrame/xls"
	"gitlab.com/osaki-lab/iowrapper"
	"golang.org/x/xerrors"
)

var errXLSNoSheet = errors.New("no sheet found")

// XLSParser parses the first sheet of an Excel 97-2003 workbook. The first
// non-empty row is the header.
type XLSParser struct {
	// Charset is passed to the workbook reader. Empty means utf-8.
	Charset string

	Required []string
	Strict   bool
}

// Parse reads every row of the first sheet.
func (p *XLSParser) Parse(ctx context.Context, f SourceFile, r io.Reader, emit func(RawRecord) error) error {
	charset := p.Charset
	if charset == "" {
		charset = "utf-8"
	}

	wb, err := xls.OpenReader(iowrapper.NewSeeker(r), charset)
	if err != nil {
		return xerrors.Errorf("failed to open xls file %s: %w", f.Path, err)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return xerrors.Errorf("%s: %w", f.Path, errXLSNoSheet)
	}

	var h *Header
	for i := 0; i <= int(sheet.MaxRow); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, ok := xlsRow(sheet, i)
		if !ok || row == nil {
			continue
		}

		cells := []string{}
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}

		if h == nil {
			h = NewHeader(cells...)
			if p.Strict {
				if missing := h.Missing(p.Required...); len(missing) > 0 {
					return &MissingColumnError{Path: f.Path, Columns: missing}
				}
			}
			continue
		}

		values := make([]interface{}, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		if err := emit(NewRawRecord(Origin{Path: f.Path, Line: i + 1}, h, values)); err != nil {
			return err
		}
	}

	return nil
}

// xlsRow guards against the reader panicking on sparse rows.
func xlsRow(sheet *xls.WorkSheet, i int) (r *xls.Row, ok bool) {
	defer func() {
		if recover() != nil {
			r, ok = nil, false
		}
	}()

	return sheet.Row(i), true
}
