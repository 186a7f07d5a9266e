package ingestor

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Source discovers input files under a root and extracts their contents.
type Source interface {
	// Discover returns every file under root accepted by match. Order is
	// whatever the underlying store yields.
	Discover(ctx context.Context, root string, match func(SourceFile) bool) ([]SourceFile, error)

	// Extract opens a discovered file. The returned func releases it.
	Extract(ctx context.Context, f SourceFile) (io.Reader, func(), error)
}

// LocalSource reads files from the local filesystem.
type LocalSource struct{}

// Discover walks root recursively.
func (LocalSource) Discover(ctx context.Context, root string, match func(SourceFile) bool) ([]SourceFile, error) {
	l := log.Ctx(ctx)

	if _, err := os.Stat(root); err != nil {
		return nil, xerrors.Errorf("failed to stat root %s: %w", root, err)
	}

	files := []SourceFile{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return xerrors.Errorf("failed to resolve %s: %w", path, err)
		}

		format, _ := FormatFromPath(abs)
		f := SourceFile{Path: abs, Format: format}
		if match != nil && !match(f) {
			l.Debug().Str("file", abs).Msg("skip unmatched file")
			return nil
		}

		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to walk %s: %w", root, err)
	}

	return files, nil
}

// Extract opens the file for reading.
func (LocalSource) Extract(_ context.Context, f SourceFile) (io.Reader, func(), error) {
	r, err := os.Open(f.Path)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to open %s: %w", f.Path, err)
	}

	return r, func() { r.Close() }, nil
}
