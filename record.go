package ingestor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Header maps column names to positions. Records parsed from the same file
// share one Header.
type Header struct {
	names []string
	index map[string]int
}

// NewHeader builds a Header. On duplicate names the first position wins.
func NewHeader(names ...string) *Header {
	h := &Header{names: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		if _, ok := h.index[n]; !ok {
			h.index[n] = i
		}
	}
	return h
}

// Names returns the column names in order.
func (h *Header) Names() []string {
	return h.names
}

// Position returns the index of a column.
func (h *Header) Position(name string) (int, bool) {
	i, ok := h.index[name]
	return i, ok
}

// Missing returns the names the header does not contain.
func (h *Header) Missing(names ...string) []string {
	missing := []string{}
	for _, n := range names {
		if _, ok := h.index[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Origin identifies where a record came from.
type Origin struct {
	Path string
	Line int
}

func (o Origin) String() string {
	return fmt.Sprintf("%s:%d", o.Path, o.Line)
}

// RawRecord is one parsed unit of a source file, such as a JSON line or a
// CSV row. Values are untyped and accessed by name or position.
type RawRecord struct {
	Origin Origin

	header *Header
	values []interface{}
}

// NewRawRecord builds a RawRecord.
func NewRawRecord(origin Origin, header *Header, values []interface{}) RawRecord {
	return RawRecord{Origin: origin, header: header, values: values}
}

// Header returns the record's header.
func (r RawRecord) Header() *Header {
	return r.header
}

// Len returns the number of values.
func (r RawRecord) Len() int {
	return len(r.values)
}

// At returns the value at position i.
func (r RawRecord) At(i int) (interface{}, bool) {
	if i < 0 || i >= len(r.values) {
		return nil, false
	}
	return r.values[i], r.values[i] != nil
}

// Get returns the value of the named field.
func (r RawRecord) Get(name string) (interface{}, bool) {
	if r.header == nil {
		return nil, false
	}
	i, ok := r.header.Position(name)
	if !ok {
		return nil, false
	}
	return r.At(i)
}

// Text returns the named field as a string, or nil when it is absent.
// Empty strings are absent too.
func (r RawRecord) Text(name string) *string {
	v, ok := r.Get(name)
	if !ok {
		return nil
	}

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	case time.Time:
		s = t.UTC().Format(time.RFC3339)
	default:
		s = fmt.Sprint(t)
	}

	if s == "" {
		return nil
	}
	return &s
}

// Int returns the named field as an integer, or nil when it is absent or not
// a whole number.
func (r RawRecord) Int(name string) *int64 {
	v, ok := r.Get(name)
	if !ok {
		return nil
	}

	switch t := v.(type) {
	case int64:
		return &t
	case int:
		n := int64(t)
		return &n
	case json.Number:
		return parseInt(t.String())
	case float64:
		if math.IsNaN(t) || t != math.Trunc(t) {
			return nil
		}
		n := int64(t)
		return &n
	case string:
		return parseInt(t)
	}
	return nil
}

func parseInt(s string) *int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
		n := int64(f)
		return &n
	}
	return nil
}

// Float returns the named field as a float, or nil when it is absent, NaN
// or unparseable.
func (r RawRecord) Float(name string) *float64 {
	v, ok := r.Get(name)
	if !ok {
		return nil
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int64:
		f = float64(t)
	case int:
		f = float64(t)
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return nil
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = x
	default:
		return nil
	}

	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// Null converts an optional value into a column value, nil meaning NULL.
func Null[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// ColumnType is the storage type of a destination column.
type ColumnType int

// Column types.
const (
	TypeString ColumnType = iota
	TypeInt64
	TypeFloat64
	TypeBool
	TypeTimestamp
)

// Column is a column of a destination table.
type Column struct {
	Name string
	Type ColumnType
}

// Table describes a destination table.
type Table struct {
	Name    string
	Columns []Column

	// Key lists the columns the destination enforces uniqueness on.
	Key []string

	// PartitionBy names the column used to partition file based destinations.
	PartitionBy string
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Position returns the index of a column.
func (t *Table) Position(name string) (int, bool) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Record builds a TargetRecord for this table. Values are positional and
// nil stands for NULL.
func (t *Table) Record(origin Origin, values ...interface{}) TargetRecord {
	return TargetRecord{Table: t, Values: values, Origin: origin}
}

// TargetRecord is a fixed-shape row for a destination table.
type TargetRecord struct {
	Table  *Table
	Values []interface{}

	// Origin is the raw record this row was derived from.
	Origin Origin
}

// Value returns the value of a column.
func (r TargetRecord) Value(column string) interface{} {
	i, ok := r.Table.Position(column)
	if !ok || i >= len(r.Values) {
		return nil
	}
	return r.Values[i]
}

// Map returns the record as a column name to value map.
func (r TargetRecord) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.Table.Columns))
	for i, c := range r.Table.Columns {
		if i < len(r.Values) {
			m[c.Name] = r.Values[i]
		} else {
			m[c.Name] = nil
		}
	}
	return m
}
