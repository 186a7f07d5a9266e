package ingestor

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestXLSParser(t *testing.T) {
	t.Parallel()

	recs, err := parseFile(t, &XLSParser{}, "testdata/table.xls", FormatXLS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recs) != 11 {
		t.Fatalf("Size of records should be 11, but %d", len(recs))
	}

	if diff := cmp.Diff([]string{"Code", "Name", "Description"}, recs[0].Header().Names()); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	if v := recs[0].Text("Code"); v == nil || *v != "code1" {
		t.Errorf(`Code should be "code1", but %v`, v)
	}
	if v := recs[10].Text("Description"); v == nil || *v != "description11" {
		t.Errorf(`Description should be "description11", but %v`, v)
	}
	if recs[0].Origin.Line != 2 {
		t.Errorf("line should be 2, but %d", recs[0].Origin.Line)
	}

	blank := recs[4]
	if v := blank.Text("Name"); v == nil || *v != "name5" {
		t.Errorf(`Name should be "name5", but %v`, v)
	}
	if v := blank.Text("Description"); v != nil {
		t.Errorf("Description of a blank cell should be absent, but %q", *v)
	}
}

func TestXLSParser_strict(t *testing.T) {
	t.Parallel()

	p := &XLSParser{Required: []string{"Code", "Price"}, Strict: true}
	_, err := parseFile(t, p, "testdata/table.xls", FormatXLS)

	var mce *MissingColumnError
	if !errors.As(err, &mce) {
		t.Fatalf("error should be MissingColumnError, but %v", err)
	}
	if diff := cmp.Diff([]string{"Price"}, mce.Columns); diff != "" {
		t.Errorf("missing columns mismatch (-want +got):\n%s", diff)
	}
}
