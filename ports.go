package ingestor

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/xerrors"
)

var portLinePattern = regexp.MustCompile(`'(.*)'.*'(.*)'`)

// PortMap maps external codes to display names, such as i94 port codes to
// "ANCHORAGE, AK". It is read only once built and safe for concurrent use.
type PortMap struct {
	codes []string
	names map[string]string
	lower map[string]string
}

// ParsePortMap reads lines of the form 'CODE' = 'NAME'. Lines that do not
// match are skipped. On duplicate codes the last name wins and the code keeps
// the position of its first occurrence.
func ParsePortMap(r io.Reader) (*PortMap, error) {
	m := &PortMap{names: map[string]string{}, lower: map[string]string{}}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		match := portLinePattern.FindStringSubmatch(sc.Text())
		if match == nil {
			continue
		}

		code, name := match[1], match[2]
		if _, ok := m.names[code]; !ok {
			m.codes = append(m.codes, code)
		}
		m.names[code] = name
		m.lower[code] = strings.ToLower(name)
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Errorf("failed to read port map: %w", err)
	}

	return m, nil
}

// LoadPortMap reads a port map file.
func LoadPortMap(path string) (*PortMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open port map: %w", err)
	}
	defer f.Close()

	m, err := ParsePortMap(f)
	if err != nil {
		return nil, xerrors.Errorf("failed to load %s: %w", path, err)
	}
	return m, nil
}

// Len returns the number of codes.
func (m *PortMap) Len() int {
	return len(m.codes)
}

// Codes returns the codes in file order.
func (m *PortMap) Codes() []string {
	return append([]string(nil), m.codes...)
}

// Name returns the display name of a code.
func (m *PortMap) Name(code string) (string, bool) {
	n, ok := m.names[code]
	return n, ok
}

// Valid reports whether code is known.
func (m *PortMap) Valid(code string) bool {
	_, ok := m.names[code]
	return ok
}

// Lookup returns the first code, in file order, whose name contains query
// case-insensitively. An empty query matches nothing.
func (m *PortMap) Lookup(query string) (string, bool) {
	q := strings.ToLower(query)
	if q == "" {
		return "", false
	}

	for _, code := range m.codes {
		if strings.Contains(m.lower[code], q) {
			return code, true
		}
	}
	return "", false
}
