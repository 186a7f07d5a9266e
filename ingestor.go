package ingestor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"
)

// ErrNoFiles is reported when discovery finds nothing to load.
var ErrNoFiles = errors.New("no files found")

// FailurePolicy decides what a run does when a file fails.
type FailurePolicy int

const (
	// ContinueOnError rolls back the failed file, records the failure and
	// moves on to the next file.
	ContinueOnError FailurePolicy = iota

	// AbortOnError rolls back the failed file and stops the run.
	AbortOnError
)

func (p FailurePolicy) String() string {
	switch p {
	case ContinueOnError:
		return "continue"
	case AbortOnError:
		return "abort"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy parses "continue" or "abort".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "continue":
		return ContinueOnError, nil
	case "abort":
		return AbortOnError, nil
	default:
		return 0, xerrors.Errorf("unknown failure policy %q", s)
	}
}

// Stage is the step of a file's processing an error happened in.
type Stage string

// Stages.
const (
	StageExtract   Stage = "extract"
	StageParse     Stage = "parse"
	StageTransform Stage = "transform"
	StageBegin     Stage = "begin"
	StageInsert    Stage = "insert"
	StageCommit    Stage = "commit"
)

// FileError is the failure of one file.
type FileError struct {
	File  SourceFile
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Stage, e.File.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Job defines how files under a root are loaded.
type Job struct {
	// Name is used in logs, metrics and notifications.
	Name string

	// Pattern restricts discovery to matching paths. Nil matches all.
	Pattern *regexp.Regexp

	// Formats restricts discovery to these formats. Empty accepts every
	// format with a known parser.
	Formats []Format

	// Parser overrides the default parser of the file's format.
	Parser Parser

	// Encoding decodes text formats before parsing.
	Encoding encoding.Encoding

	Transformer Transformer
	Sink        Sink
}

func (j *Job) match(f SourceFile) bool {
	if j.Pattern != nil && !j.Pattern.MatchString(f.Path) {
		return false
	}

	if len(j.Formats) == 0 {
		return f.Format != FormatUnknown
	}
	for _, format := range j.Formats {
		if f.Format == format {
			return true
		}
	}
	return false
}

func (j *Job) validate() error {
	if j.Transformer == nil {
		return xerrors.Errorf("job %s has no transformer", j.Name)
	}
	if j.Sink == nil {
		return xerrors.Errorf("job %s has no sink", j.Name)
	}
	return nil
}

func (j *Job) parser(f SourceFile) (Parser, error) {
	if j.Parser != nil {
		return j.Parser, nil
	}
	return ParserFor(f.Format)
}

// FileResult is the outcome of one file.
type FileResult struct {
	File           SourceFile
	RecordsRead    int
	RecordsWritten int
	RecordsDropped int
	Skipped        bool
	Err            error
}

// Summary reports a run.
type Summary struct {
	RunID string
	Job   string

	FilesDiscovered int
	FilesProcessed  int
	FilesFailed     int
	FilesSkipped    int

	RecordsRead    int
	RecordsWritten int
	RecordsDropped int

	Results  []FileResult
	Duration time.Duration
}

// Failures returns the results of failed files.
func (s *Summary) Failures() []FileResult {
	failures := []FileResult{}
	for _, r := range s.Results {
		if r.Err != nil {
			failures = append(failures, r)
		}
	}
	return failures
}

func (s *Summary) add(r FileResult) {
	s.Results = append(s.Results, r)
	s.RecordsRead += r.RecordsRead
	s.RecordsWritten += r.RecordsWritten
	s.RecordsDropped += r.RecordsDropped

	switch {
	case r.Skipped:
		s.FilesSkipped++
	case r.Err != nil:
		s.FilesFailed++
	default:
		s.FilesProcessed++
	}
}

// Ingestor walks a root, transforms every file and commits it to a sink one
// file at a time. Files are processed sequentially and a sink's batch is
// owned by one file at a time, so concurrent runs against one destination
// are not supported.
type Ingestor struct {
	policy   FailurePolicy
	source   Source
	ledger   Ledger
	reload   bool
	notifier Notifier
	metrics  *Metrics
	logger   zerolog.Logger
}

// New builds an Ingestor.
func New(opts ...Option) (*Ingestor, error) {
	in := &Ingestor{
		policy: ContinueOnError,
		source: LocalSource{},
		logger: zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel),
	}

	for _, o := range opts {
		if err := o.apply(in); err != nil {
			return nil, xerrors.Errorf("failed to apply option: %w", err)
		}
	}

	return in, nil
}

// Run loads every file of job found under root. Discovery errors are fatal.
// File errors are handled by the failure policy: under ContinueOnError they
// are reported only through the summary, under AbortOnError the first one is
// also returned. Cancellation is checked between files.
func (in *Ingestor) Run(ctx context.Context, job *Job, root string) (*Summary, error) {
	if err := job.validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	l := in.logger.With().Str("run_id", runID).Str("job", job.Name).Logger()
	ctx = withRunID(withStartedTime(l.WithContext(ctx)), runID)

	s := &Summary{RunID: runID, Job: job.Name}

	l.Info().Str("root", root).Str("policy", in.policy.String()).Msg("ingest started")

	files, err := in.source.Discover(ctx, root, job.match)
	if err != nil {
		return in.finish(ctx, s, xerrors.Errorf("failed to discover files: %w", err))
	}
	s.FilesDiscovered = len(files)
	l.Info().Msgf("%d files found in %s", len(files), root)

	if len(files) == 0 {
		l.Warn().Err(ErrNoFiles).Str("root", root).Send()
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return in.finish(ctx, s, err)
		}

		fl := l.With().Str("file", f.Path).Logger()
		fctx := fl.WithContext(ctx)

		res := in.processFile(fctx, job, f)
		s.add(res)
		in.metrics.observe(job.Name, res)

		switch {
		case res.Skipped:
			fl.Info().Msg("already loaded, skipped")
		case res.Err != nil:
			fl.Error().Err(res.Err).Msg("file failed")
			if in.policy == AbortOnError {
				return in.finish(ctx, s, res.Err)
			}
		default:
			fl.Debug().Int("records", res.RecordsWritten).Msg("file committed")
		}

		l.Info().Msgf("%d/%d files processed.", i+1, len(files))
	}

	return in.finish(ctx, s, nil)
}

func (in *Ingestor) finish(ctx context.Context, s *Summary, err error) (*Summary, error) {
	l := zerolog.Ctx(ctx)

	if t, ok := startedTimeFrom(ctx); ok {
		s.Duration = time.Since(t)
	}

	l.Info().
		Int("discovered", s.FilesDiscovered).
		Int("processed", s.FilesProcessed).
		Int("failed", s.FilesFailed).
		Int("skipped", s.FilesSkipped).
		Int("records_written", s.RecordsWritten).
		Dur("duration", s.Duration).
		Msg("ingest finished")

	if in.notifier != nil {
		nctx := context.WithoutCancel(ctx)
		if nerr := in.notifier.Notify(nctx, &Result{Summary: s, Error: err}); nerr != nil {
			l.Error().Err(nerr).Msg("failed to notify")
		}
	}

	return s, err
}

func (in *Ingestor) processFile(ctx context.Context, job *Job, f SourceFile) (res FileResult) {
	l := zerolog.Ctx(ctx)
	res.File = f

	fail := func(stage Stage, err error) FileResult {
		var fe *FileError
		if errors.As(err, &fe) {
			res.Err = fe
		} else {
			res.Err = &FileError{File: f, Stage: stage, Err: err}
		}
		return res
	}

	var fingerprint string
	if in.ledger != nil {
		fp, err := Fingerprint(ctx, in.source, f)
		if err != nil {
			return fail(StageExtract, err)
		}
		if !in.reload {
			done, err := in.ledger.Loaded(ctx, f, fp)
			if err != nil {
				return fail(StageExtract, err)
			}
			if done {
				res.Skipped = true
				return res
			}
		}
		fingerprint = fp
	}

	parser, err := job.parser(f)
	if err != nil {
		return fail(StageParse, err)
	}

	r, closer, err := in.source.Extract(ctx, f)
	if err != nil {
		return fail(StageExtract, err)
	}
	defer closer()

	if job.Encoding != nil && (f.Format == FormatCSV || f.Format == FormatJSONLines) {
		r = transform.NewReader(r, job.Encoding.NewDecoder())
	}

	tr := job.Transformer
	if fs, ok := tr.(FileScoped); ok {
		tr = fs.ForFile(f)
	}

	batch, err := job.Sink.Begin(ctx, f)
	if err != nil {
		return fail(StageBegin, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := batch.Rollback(context.WithoutCancel(ctx)); err != nil {
			l.Error().Err(err).Msg("failed to roll back")
		}
	}()

	emit := func(raw RawRecord) error {
		res.RecordsRead++

		out, err := tr.Transform(ctx, raw)
		if err != nil {
			return &FileError{File: f, Stage: StageTransform, Err: xerrors.Errorf("record %s: %w", raw.Origin, err)}
		}
		if len(out) == 0 {
			res.RecordsDropped++
			return nil
		}

		for _, rec := range out {
			if err := batch.Insert(ctx, rec); err != nil {
				return &FileError{File: f, Stage: StageInsert, Err: xerrors.Errorf("record %s into %s: %w", raw.Origin, rec.Table.Name, err)}
			}
			res.RecordsWritten++
		}
		return nil
	}

	if err := parser.Parse(ctx, f, r, emit); err != nil {
		res.RecordsWritten = 0
		return fail(StageParse, err)
	}

	if err := batch.Commit(ctx); err != nil {
		res.RecordsWritten = 0
		return fail(StageCommit, err)
	}
	committed = true

	if p, ok := tr.(Publisher); ok {
		p.Publish()
	}

	if in.ledger != nil {
		if err := in.ledger.MarkLoaded(ctx, f, fingerprint); err != nil {
			l.Warn().Err(err).Msg("failed to record file in ledger")
		}
	}

	return res
}
