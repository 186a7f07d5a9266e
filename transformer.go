package ingestor

import "context"

// Transformer turns one raw record into zero or more target records.
// Returning no records drops the raw record.
type Transformer interface {
	Transform(context.Context, RawRecord) ([]TargetRecord, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(context.Context, RawRecord) ([]TargetRecord, error)

// Transform calls f.
func (f TransformerFunc) Transform(ctx context.Context, r RawRecord) ([]TargetRecord, error) {
	return f(ctx, r)
}

// FileScoped is implemented by transformers that keep per-file state, such
// as the set of timestamps already emitted. The ingestor calls ForFile once
// per file and uses the returned transformer for that file only.
type FileScoped interface {
	ForFile(SourceFile) Transformer
}

// Publisher is implemented by file scoped transformers whose state outlives
// the file, such as join indexes. Publish is called only after the file's
// batch commits; state staged by a failed file is dropped with it.
type Publisher interface {
	Publish()
}
