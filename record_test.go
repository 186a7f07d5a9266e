package ingestor

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRawRecord(t *testing.T) {
	t.Parallel()

	h := NewHeader("name", "count", "ratio", "empty", "nan")
	r := NewRawRecord(Origin{Path: "a.csv", Line: 2}, h, []interface{}{"x", "12", 0.5, "", math.NaN()})

	if v := r.Text("name"); v == nil || *v != "x" {
		t.Errorf(`name should be "x", but %v`, v)
	}
	if v := r.Int("count"); v == nil || *v != 12 {
		t.Errorf("count should be 12, but %v", v)
	}
	if v := r.Int("ratio"); v != nil {
		t.Errorf("ratio is not whole, but %d", *v)
	}
	if v := r.Text("empty"); v != nil {
		t.Errorf("empty should be absent, but %q", *v)
	}
	if v := r.Float("nan"); v != nil {
		t.Errorf("NaN should be absent, but %v", *v)
	}
	if v := r.Text("missing"); v != nil {
		t.Errorf("missing should be absent, but %q", *v)
	}
	if _, ok := r.At(10); ok {
		t.Error("out of range position should be absent")
	}
	if r.Origin.String() != "a.csv:2" {
		t.Errorf(`origin should be "a.csv:2", but %q`, r.Origin)
	}
	if diff := cmp.Diff([]string{"missing"}, h.Missing("name", "missing")); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestTargetRecord_Map(t *testing.T) {
	t.Parallel()

	tbl := &Table{Name: "users", Columns: []Column{{Name: "user_id"}, {Name: "level"}}}
	r := tbl.Record(Origin{}, int64(1))

	want := map[string]interface{}{"user_id": int64(1), "level": nil}
	if diff := cmp.Diff(want, r.Map()); diff != "" {
		t.Errorf("map mismatch (-want +got):\n%s", diff)
	}
}
