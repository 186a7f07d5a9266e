package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.nownabe.dev/ingestor"
	"go.nownabe.dev/ingestor/contrib/sinks/cqlsink"
	"go.nownabe.dev/ingestor/contrib/sparkify"
)

// cassandraConnector opens a Cassandra session and returns its closer.
type cassandraConnector func(cqlsink.Config) (cqlsink.Session, func(), error)

func dialCassandra(cfg cqlsink.Config) (cqlsink.Session, func(), error) {
	s, err := cqlsink.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cqlsink.NewSession(s), s.Close, nil
}

func (a *app) cassandraConfig(keyspace string) cqlsink.Config {
	return cqlsink.Config{
		Hosts:    a.cfg.Cassandra.Hosts,
		Keyspace: keyspace,
		Timeout:  10 * time.Second,
	}
}

// cassandraSession connects to the configured keyspace.
func (a *app) cassandraSession() (cqlsink.Session, error) {
	s, closeSession, err := a.connectCassandra(a.cassandraConfig(a.cfg.Cassandra.Keyspace))
	if err != nil {
		return nil, err
	}
	a.onClose(func() error {
		closeSession()
		return nil
	})
	return s, nil
}

// createKeyspace recreates the configured keyspace from a session without
// one.
func (a *app) createKeyspace(ctx context.Context) error {
	s, closeSession, err := a.connectCassandra(a.cassandraConfig(""))
	if err != nil {
		return err
	}
	defer closeSession()

	return sparkify.CreateKeyspace(ctx, s, a.cfg.Cassandra.Keyspace, a.cfg.Cassandra.ReplicationFactor)
}

func newEventsCmd(a *app) *cobra.Command {
	var (
		target string
		create bool
	)

	cmd := &cobra.Command{
		Use:   "events <event_root>",
		Short: "Consolidate event CSVs and load them into Cassandra",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&target, "target", "event_datafile_new.csv", "path of the consolidated event file")
	cmd.Flags().BoolVar(&create, "create", false, "drop and recreate the keyspace and tables before loading")

	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		src, err := a.source(ctx, args[0])
		if err != nil {
			return err
		}

		n, err := sparkify.ConsolidateEvents(ctx, src, args[0], target)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%d events consolidated into %s\n", n, target)

		if create {
			if err := a.createKeyspace(ctx); err != nil {
				return err
			}
		}

		session, err := a.cassandraSession()
		if err != nil {
			return err
		}
		if create {
			if err := sparkify.CreateEventTables(ctx, session); err != nil {
				return err
			}
		}

		sink := cqlsink.New(session)
		if err := a.runSteps(ctx, step{job: sparkify.EventJob(sink), root: target, ledger: true, reload: create}); err != nil {
			return err
		}

		return ingestor.CheckQuality(ctx, sink, sparkify.EventTables...)
	})

	return cmd
}
