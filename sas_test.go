package ingestor

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/charmap"
)

func parseFile(t *testing.T, p Parser, path string, format Format) ([]RawRecord, error) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	recs := []RawRecord{}
	err = p.Parse(context.Background(), SourceFile{Path: path, Format: format}, f, func(r RawRecord) error {
		recs = append(recs, r)
		return nil
	})
	return recs, err
}

func TestSAS7BDATParser(t *testing.T) {
	t.Parallel()

	p := &SAS7BDATParser{Encoding: charmap.ISO8859_1, ChunkRows: 3}
	recs, err := parseFile(t, p, "testdata/sample.sas7bdat", FormatSAS7BDAT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recs) != 10 {
		t.Fatalf("Size of records should be 10, but %d", len(recs))
	}
	if n := len(recs[0].Header().Names()); n != 100 {
		t.Errorf("Size of columns should be 100, but %d", n)
	}

	first := recs[0]
	if v := first.Float("Column1"); v == nil || math.Abs(*v-0.636) > 1e-9 {
		t.Errorf("Column1 should be 0.636, but %v", v)
	}
	if v := first.Text("Column2"); v == nil || *v != "pear" {
		t.Errorf(`Column2 should be "pear", but %v`, v)
	}
	if v := first.Int("Column3"); v == nil || *v != 84 {
		t.Errorf("Column3 should be 84, but %v", v)
	}
	if v, _ := first.Get("Column4"); !cmp.Equal(v, time.Date(1965, 12, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Column4 should be 1965-12-10, but %v", v)
	}

	tests := map[string]struct {
		row    int
		column string
	}{
		"numeric":   {row: 0, column: "Column8"},
		"leading":   {row: 8, column: "Column1"},
		"character": {row: 4, column: "Column2"},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if v := recs[tt.row].Text(tt.column); v != nil {
				t.Errorf("%s of row %d should be absent, but %q", tt.column, tt.row+1, *v)
			}
		})
	}

	if recs[9].Origin.Line != 10 {
		t.Errorf("line should be 10, but %d", recs[9].Origin.Line)
	}
}

func TestSAS7BDATParser_strict(t *testing.T) {
	t.Parallel()

	p := &SAS7BDATParser{Required: []string{"Column1", "cicid"}, Strict: true}
	_, err := parseFile(t, p, "testdata/sample.sas7bdat", FormatSAS7BDAT)

	var mce *MissingColumnError
	if !errors.As(err, &mce) {
		t.Fatalf("error should be MissingColumnError, but %v", err)
	}
	if diff := cmp.Diff([]string{"cicid"}, mce.Columns); diff != "" {
		t.Errorf("missing columns mismatch (-want +got):\n%s", diff)
	}
}
