package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"go.nownabe.dev/ingestor"
	"go.nownabe.dev/ingestor/internal/config"
)

// app holds what the subcommands share during one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	cfg        *config.Config
	logger     zerolog.Logger

	registry *prometheus.Registry
	metrics  *ingestor.Metrics
	server   *http.Server

	connectCassandra cassandraConnector

	ledger  *ingestor.BoltLedger
	gcs     *ingestor.GCSSource
	closers []func() error
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	lv, err := zerolog.ParseLevel(cfg.Ingest.LogLevel)
	if err != nil {
		return xerrors.Errorf("failed to parse log level %q: %w", cfg.Ingest.LogLevel, err)
	}

	var w io.Writer = a.stderr
	if cfg.Ingest.Pretty {
		w = zerolog.ConsoleWriter{Out: a.stderr}
	}
	a.logger = zerolog.New(w).With().Timestamp().Logger().Level(lv)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(a.logger.WithContext(ctx))

	a.registry = prometheus.NewRegistry()
	a.metrics, err = ingestor.NewMetrics(a.registry)
	if err != nil {
		return err
	}

	if cfg.Ingest.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.Ingest.MetricsAddr); err != nil {
			return err
		}
	}

	return nil
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return xerrors.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	a.logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	return nil
}

func (a *app) teardown(ctx context.Context) error {
	var errs []error

	if a.server != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			errs = append(errs, xerrors.Errorf("failed to stop metrics server: %w", err))
		}
		a.server = nil
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}

// run wraps a subcommand so resources are released even when it fails.
func (a *app) run(f func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		defer func() {
			if terr := a.teardown(ctx); err == nil {
				err = terr
			}
		}()
		return f(ctx, args)
	}
}

func (a *app) onClose(f func() error) {
	a.closers = append(a.closers, f)
}

// source returns where root is read from.
func (a *app) source(ctx context.Context, root string) (ingestor.Source, error) {
	if !strings.HasPrefix(root, "gs://") {
		return ingestor.LocalSource{}, nil
	}

	if a.gcs == nil {
		s, err := ingestor.NewGCSSource(ctx)
		if err != nil {
			return nil, err
		}
		a.gcs = s
		a.onClose(func() error {
			a.gcs = nil
			return s.Close()
		})
	}
	return a.gcs, nil
}

// newIngestor builds an Ingestor reading from src. The configured ledger is
// used only when withLedger is set.
func (a *app) newIngestor(src ingestor.Source, withLedger, reload bool) (*ingestor.Ingestor, error) {
	policy, err := ingestor.ParseFailurePolicy(a.cfg.Ingest.Policy)
	if err != nil {
		return nil, err
	}

	opts := []ingestor.Option{
		ingestor.WithLogger(a.logger),
		ingestor.WithFailurePolicy(policy),
		ingestor.WithSource(src),
		ingestor.WithMetrics(a.metrics),
		ingestor.WithNotifier(a.notifier()),
	}

	if withLedger && a.cfg.Ingest.Ledger != "" {
		if a.ledger == nil {
			l, err := ingestor.OpenBoltLedger(a.cfg.Ingest.Ledger)
			if err != nil {
				return nil, err
			}
			a.ledger = l
			a.onClose(func() error {
				a.ledger = nil
				return l.Close()
			})
		}
		opts = append(opts, ingestor.WithLedger(a.ledger))
		if reload {
			opts = append(opts, ingestor.WithReload())
		}
	}

	return ingestor.New(opts...)
}

func (a *app) notifier() ingestor.Notifier {
	s := a.cfg.Slack
	if s.Token == "" || s.Channel == "" {
		return ingestor.LogNotifier{}
	}
	return &ingestor.SlackNotifier{
		Channel:      s.Channel,
		Username:     "ingestor",
		IconEmoji:    ":inbox_tray:",
		Token:        s.Token,
		OnlyFailures: s.OnlyFailures,
	}
}

// report prints a run's summary.
func (a *app) report(s *ingestor.Summary, err error) {
	if s == nil {
		return
	}
	fmt.Fprintln(a.stdout, (&ingestor.Result{Summary: s, Error: err}).Text())
}

type failedFilesError struct {
	summary *ingestor.Summary
}

func (e *failedFilesError) Error() string {
	return fmt.Sprintf("%s: %d of %d files failed", e.summary.Job, e.summary.FilesFailed, e.summary.FilesDiscovered)
}
