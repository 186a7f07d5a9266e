package ingestor

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// Option configures an Ingestor.
type Option interface {
	apply(*Ingestor) error
}

type optionFunc func(*Ingestor) error

func (f optionFunc) apply(in *Ingestor) error {
	return f(in)
}

// WithFailurePolicy sets what happens when a file fails.
func WithFailurePolicy(p FailurePolicy) Option {
	return optionFunc(func(in *Ingestor) error {
		if p != ContinueOnError && p != AbortOnError {
			return xerrors.Errorf("unknown failure policy %d", p)
		}
		in.policy = p
		return nil
	})
}

// WithSource sets where files are discovered and read from.
func WithSource(s Source) Option {
	return optionFunc(func(in *Ingestor) error {
		in.source = s
		return nil
	})
}

// WithLedger enables skipping files already loaded by a previous run.
func WithLedger(l Ledger) Option {
	return optionFunc(func(in *Ingestor) error {
		in.ledger = l
		return nil
	})
}

// WithReload loads every file even when the ledger has it. Committed files
// are still recorded, so later runs skip them.
func WithReload() Option {
	return optionFunc(func(in *Ingestor) error {
		in.reload = true
		return nil
	})
}

// WithNotifier sets a notifier called once per run.
func WithNotifier(n Notifier) Option {
	return optionFunc(func(in *Ingestor) error {
		in.notifier = n
		return nil
	})
}

// WithMetrics records run counters into m.
func WithMetrics(m *Metrics) Option {
	return optionFunc(func(in *Ingestor) error {
		in.metrics = m
		return nil
	})
}

// WithLogger replaces the logger.
func WithLogger(l zerolog.Logger) Option {
	return optionFunc(func(in *Ingestor) error {
		in.logger = l
		return nil
	})
}

// WithPrettyLogging configures the Ingestor to print human friendly logs.
func WithPrettyLogging() Option {
	return optionFunc(func(in *Ingestor) error {
		in.logger = in.logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return nil
	})
}

// WithLogLevel sets the log level: debug, info, warn or error.
func WithLogLevel(level string) Option {
	return optionFunc(func(in *Ingestor) error {
		lv, err := zerolog.ParseLevel(level)
		if err != nil {
			return xerrors.Errorf("failed to parse log level %q: %w", level, err)
		}
		in.logger = in.logger.Level(lv)
		return nil
	})
}
