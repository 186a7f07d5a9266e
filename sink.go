package ingestor

import (
	"context"
	"sync"

	"golang.org/x/xerrors"
)

// Sink is a destination. The ingestor opens one Batch per source file.
type Sink interface {
	Begin(context.Context, SourceFile) (Batch, error)
}

// Batch is the unit of work of one source file. Nothing inserted becomes
// visible until Commit returns nil; Rollback discards it. Rollback after a
// successful Commit is a no-op.
type Batch interface {
	Insert(context.Context, TargetRecord) error
	Commit(context.Context) error
	Rollback(context.Context) error
}

// MemorySink keeps committed records in memory. It is used for dry runs and
// tests.
type MemorySink struct {
	mu      sync.Mutex
	records map[string][]TargetRecord

	// FailOn makes Insert fail for records originating from this path.
	FailOn string
}

// NewMemorySink builds an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: map[string][]TargetRecord{}}
}

// Begin starts a batch.
func (s *MemorySink) Begin(_ context.Context, _ SourceFile) (Batch, error) {
	return &memoryBatch{sink: s}, nil
}

// Records returns the committed records of a table.
func (s *MemorySink) Records(table string) []TargetRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]TargetRecord(nil), s.records[table]...)
}

// Count returns the number of committed records of a table.
func (s *MemorySink) Count(_ context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.records[table])), nil
}

type memoryBatch struct {
	sink    *MemorySink
	pending []TargetRecord
	done    bool
}

func (b *memoryBatch) Insert(_ context.Context, r TargetRecord) error {
	if b.done {
		return xerrors.New("batch already finished")
	}
	if b.sink.FailOn != "" && r.Origin.Path == b.sink.FailOn {
		return xerrors.Errorf("insert into %s rejected for %s", r.Table.Name, r.Origin)
	}
	b.pending = append(b.pending, r)
	return nil
}

func (b *memoryBatch) Commit(_ context.Context) error {
	if b.done {
		return xerrors.New("batch already finished")
	}

	b.sink.mu.Lock()
	defer b.sink.mu.Unlock()

	for _, r := range b.pending {
		b.sink.records[r.Table.Name] = append(b.sink.records[r.Table.Name], r)
	}
	b.pending = nil
	b.done = true

	return nil
}

func (b *memoryBatch) Rollback(_ context.Context) error {
	b.pending = nil
	b.done = true
	return nil
}
