package ingestor

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testPorts = `	'ALC'	=	'ALCAN, AK             '
	'ANC'	=	'ANCHORAGE, AK         '
this line is malformed
	'BAR'	=	'BAKER AAF - BAKER ISLAND, AK'
	'DAC'	=	'DALTONS CACHE, AK     '
	'ANC'	=	'ANCHORAGE INTL, AK'
`

func TestParsePortMap(t *testing.T) {
	t.Parallel()

	m, err := ParsePortMap(strings.NewReader(testPorts))
	if err != nil {
		t.Fatal(err)
	}

	if m.Len() != 4 {
		t.Errorf("Len should be 4, but %d", m.Len())
	}
	if diff := cmp.Diff([]string{"ALC", "ANC", "BAR", "DAC"}, m.Codes()); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}
	if n, _ := m.Name("ANC"); n != "ANCHORAGE INTL, AK" {
		t.Errorf(`last occurrence should win, but %q`, n)
	}
	if !m.Valid("BAR") || m.Valid("XXX") {
		t.Error("Valid should only accept known codes")
	}
}

func TestPortMap_Lookup(t *testing.T) {
	t.Parallel()

	m, err := ParsePortMap(strings.NewReader(testPorts))
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]struct {
		query string
		want  string
		found bool
	}{
		"exact":            {query: "Anchorage", want: "ANC", found: true},
		"substring":        {query: "cache", want: "DAC", found: true},
		"first file order": {query: "AK", want: "ALC", found: true},
		"no match":         {query: "Aarhus", found: false},
		"empty":            {query: "", found: false},
		"not trimmed":      {query: " Anchorage", found: false},
		"inner space":      {query: "s cache", want: "DAC", found: true},
	}

	for name, c := range cases {
		c := c
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, ok := m.Lookup(c.query)
			if ok != c.found || got != c.want {
				t.Errorf("Lookup(%q) should be (%q, %v), but (%q, %v)", c.query, c.want, c.found, got, ok)
			}
		})
	}
}

func TestLoadPortMap_notFound(t *testing.T) {
	t.Parallel()

	if _, err := LoadPortMap(filepath.Join(t.TempDir(), "valid_ports.txt")); err == nil {
		t.Error("expected error but no error occurred")
	}
}
