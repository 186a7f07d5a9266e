package ingestor

import (
	"path/filepath"
	"strings"
)

// Format is a file format the ingestor knows how to parse.
type Format int

// Supported formats.
const (
	FormatUnknown Format = iota
	FormatJSONLines
	FormatCSV
	FormatSAS7BDAT
	FormatXLS
)

func (f Format) String() string {
	switch f {
	case FormatJSONLines:
		return "jsonl"
	case FormatCSV:
		return "csv"
	case FormatSAS7BDAT:
		return "sas7bdat"
	case FormatXLS:
		return "xls"
	default:
		return "unknown"
	}
}

// FormatFromPath guesses the format of a file from its extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson":
		return FormatJSONLines, true
	case ".csv":
		return FormatCSV, true
	case ".sas7bdat":
		return FormatSAS7BDAT, true
	case ".xls":
		return FormatXLS, true
	default:
		return FormatUnknown, false
	}
}

// SourceFile is a discovered input file. Its identity is its absolute path
// (or full object URL for remote sources).
type SourceFile struct {
	Path   string
	Format Format
}

func (f SourceFile) String() string {
	return f.Path
}
