package ingestor

import (
	"context"
	"io"
	"time"

	"github.com/kshedden/datareader"
	"gitlab.com/osaki-lab/iowrapper"
	"golang.org/x/text/encoding"
	"golang.org/x/xerrors"
)

const defaultSASChunkRows = 10000

// SAS7BDATParser parses SAS7BDAT tables. Numeric columns become float64,
// character columns string and date columns time.Time.
type SAS7BDATParser struct {
	// Encoding decodes character columns. The I94 extracts are ISO-8859-1.
	Encoding encoding.Encoding

	// ChunkRows is the number of rows read at once. Zero means 10000.
	ChunkRows int

	Required []string
	Strict   bool
}

// Parse reads the table chunk by chunk.
func (p *SAS7BDATParser) Parse(ctx context.Context, f SourceFile, r io.Reader, emit func(RawRecord) error) error {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		rs = iowrapper.NewSeeker(r)
	}

	sas, err := datareader.NewSAS7BDATReader(rs)
	if err != nil {
		return xerrors.Errorf("failed to open sas7bdat %s: %w", f.Path, err)
	}
	sas.ConvertDates = true
	sas.TrimStrings = true

	h := NewHeader(sas.ColumnNames()...)
	if p.Strict {
		if missing := h.Missing(p.Required...); len(missing) > 0 {
			return &MissingColumnError{Path: f.Path, Columns: missing}
		}
	}

	var dec *encoding.Decoder
	if p.Encoding != nil {
		dec = p.Encoding.NewDecoder()
	}

	chunk := p.ChunkRows
	if chunk <= 0 {
		chunk = defaultSASChunkRows
	}

	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		series, err := sas.Read(chunk)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("failed to read rows %d.. of %s: %w", line, f.Path, err)
		}
		if len(series) == 0 || series[0].Length() == 0 {
			return nil
		}

		n := series[0].Length()
		for i := 0; i < n; i++ {
			line++
			values := make([]interface{}, len(series))
			for j, s := range series {
				v, err := seriesValue(s, i, dec)
				if err != nil {
					return xerrors.Errorf("failed to decode %s row %d: %w", f.Path, line, err)
				}
				values[j] = v
			}

			if err := emit(NewRawRecord(Origin{Path: f.Path, Line: line}, h, values)); err != nil {
				return err
			}
		}
	}
}

func seriesValue(s *datareader.Series, i int, dec *encoding.Decoder) (interface{}, error) {
	if miss := s.Missing(); miss != nil && miss[i] {
		return nil, nil
	}

	switch data := s.Data().(type) {
	case []float64:
		return data[i], nil
	case []string:
		if dec == nil {
			return data[i], nil
		}
		return dec.String(data[i])
	case []time.Time:
		return data[i].UTC(), nil
	default:
		return nil, xerrors.Errorf("unsupported series type %T", data)
	}
}
