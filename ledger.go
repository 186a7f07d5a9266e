package ingestor

import (
	"context"
	"encoding/hex"
	"io"
	"time"

	"github.com/zeebo/blake3"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

// Ledger remembers files loaded by earlier runs so a rerun can skip them.
// Without a ledger every run reprocesses every file.
type Ledger interface {
	// Loaded reports whether f was loaded with the same content.
	Loaded(ctx context.Context, f SourceFile, fingerprint string) (bool, error)

	// MarkLoaded records that f was committed.
	MarkLoaded(ctx context.Context, f SourceFile, fingerprint string) error
}

// Fingerprint returns the blake3 digest of a file's content.
func Fingerprint(ctx context.Context, src Source, f SourceFile) (string, error) {
	r, closer, err := src.Extract(ctx, f)
	if err != nil {
		return "", err
	}
	defer closer()

	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", xerrors.Errorf("failed to hash %s: %w", f.Path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

var ledgerBucket = []byte("loaded_files")

// BoltLedger is a Ledger stored in a bbolt file.
type BoltLedger struct {
	db *bolt.DB
}

// OpenBoltLedger opens or creates a ledger file.
func OpenBoltLedger(path string) (*BoltLedger, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, xerrors.Errorf("failed to open ledger %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ledgerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to initialize ledger %s: %w", path, err)
	}

	return &BoltLedger{db: db}, nil
}

// Close closes the ledger file.
func (l *BoltLedger) Close() error {
	return l.db.Close()
}

// Loaded implements Ledger.
func (l *BoltLedger) Loaded(_ context.Context, f SourceFile, fingerprint string) (bool, error) {
	var loaded bool
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(ledgerBucket).Get([]byte(f.Path))
		loaded = v != nil && string(v) == fingerprint
		return nil
	})
	if err != nil {
		return false, xerrors.Errorf("failed to read ledger: %w", err)
	}
	return loaded, nil
}

// MarkLoaded implements Ledger.
func (l *BoltLedger) MarkLoaded(_ context.Context, f SourceFile, fingerprint string) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ledgerBucket).Put([]byte(f.Path), []byte(fingerprint))
	})
	if err != nil {
		return xerrors.Errorf("failed to write ledger: %w", err)
	}
	return nil
}
