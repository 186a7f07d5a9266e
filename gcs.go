package ingestor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
	"google.golang.org/api/iterator"
)

const gcsScheme = "gs://"

// GCSSource discovers and reads objects from Cloud Storage. Roots look like
// gs://bucket/prefix.
type GCSSource struct {
	storage *storage.Client
}

// NewGCSSource builds a GCSSource with a default storage client.
func NewGCSSource(ctx context.Context) (*GCSSource, error) {
	s, err := storage.NewClient(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to build storage client: %w", err)
	}

	return &GCSSource{storage: s}, nil
}

// Close releases the storage client.
func (s *GCSSource) Close() error {
	return s.storage.Close()
}

// Discover lists the objects under the root prefix.
func (s *GCSSource) Discover(ctx context.Context, root string, match func(SourceFile) bool) ([]SourceFile, error) {
	bucket, prefix, err := splitGCSPath(root)
	if err != nil {
		return nil, err
	}

	files := []SourceFile{}
	it := s.storage.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("failed to list gs://%s/%s: %w", bucket, prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}

		format, _ := FormatFromPath(attrs.Name)
		f := SourceFile{Path: fmt.Sprintf("gs://%s/%s", attrs.Bucket, attrs.Name), Format: format}
		if match != nil && !match(f) {
			continue
		}
		files = append(files, f)
	}

	return files, nil
}

// Extract opens an object reader.
func (s *GCSSource) Extract(ctx context.Context, f SourceFile) (io.Reader, func(), error) {
	l := log.Ctx(ctx)

	bucket, name, err := splitGCSPath(f.Path)
	if err != nil {
		return nil, nil, err
	}

	r, err := s.storage.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		l.Error().Err(err).Str("file", f.Path).Msg("failed to initialize object reader")
		return nil, nil, xerrors.Errorf("failed to get reader of %s: %w", f.Path, err)
	}

	return r, func() { r.Close() }, nil
}

func splitGCSPath(p string) (string, string, error) {
	if !strings.HasPrefix(p, gcsScheme) {
		return "", "", xerrors.Errorf("not a Cloud Storage path: %s", p)
	}

	rest := strings.TrimPrefix(p, gcsScheme)
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", xerrors.Errorf("missing bucket in %s", p)
	}

	return bucket, prefix, nil
}
