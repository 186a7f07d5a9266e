package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"go.nownabe.dev/ingestor/contrib/sinks/sqlsink"
	"go.nownabe.dev/ingestor/contrib/sparkify"
)

func newCreateTablesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "create-tables {sql|cassandra}",
		Short:     "Drop and recreate the destination tables",
		ValidArgs: []string{"sql", "cassandra"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	}
	cmd.Flags().String("sql-driver", "", "database/sql driver: postgres, mysql or sqlite3")
	cmd.Flags().String("sql-dsn", "", "data source name of the SQL destination")

	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		switch args[0] {
		case "sql":
			return a.createSQLTables(ctx)
		default:
			return a.createCassandraTables(ctx)
		}
	})

	return cmd
}

func (a *app) createSQLTables(ctx context.Context) error {
	driver, dsn, err := a.cfg.SQLSource()
	if err != nil {
		return err
	}

	db, err := sqlsink.Open(ctx, driver, dsn)
	if err != nil {
		return err
	}
	a.onClose(db.Close)

	if err := sparkify.CreateTables(ctx, db.DB, driver); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "star schema created on %s\n", driver)
	return nil
}

func (a *app) createCassandraTables(ctx context.Context) error {
	if err := a.createKeyspace(ctx); err != nil {
		return err
	}

	session, err := a.cassandraSession()
	if err != nil {
		return err
	}
	if err := sparkify.CreateEventTables(ctx, session); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "event tables created in %s\n", a.cfg.Cassandra.Keyspace)
	return nil
}
