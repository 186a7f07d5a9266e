package cli

import (
	"context"

	"github.com/spf13/cobra"

	"go.nownabe.dev/ingestor"
	"go.nownabe.dev/ingestor/contrib/sinks/bqsink"
	"go.nownabe.dev/ingestor/contrib/sinks/sqlsink"
	"go.nownabe.dev/ingestor/contrib/sparkify"
)

func newWarehouseCmd(a *app) *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "warehouse <song_root> <log_root>",
		Short: "Load song and log files into the star schema",
		Long: `Load song and log JSON files into the songs, artists, users, time and
songplays tables. The destination is BigQuery when bigquery.dataset is
configured and a SQL database otherwise.`,
		Args: cobra.ExactArgs(2),
	}
	cmd.Flags().BoolVar(&create, "create", false, "drop and recreate the tables and load every file again")
	cmd.Flags().String("sql-driver", "", "database/sql driver: postgres, mysql or sqlite3")
	cmd.Flags().String("sql-dsn", "", "data source name of the SQL destination")

	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		songRoot, logRoot := args[0], args[1]

		if a.cfg.BigQuery.Dataset != "" {
			return a.warehouseBigQuery(ctx, songRoot, logRoot)
		}
		return a.warehouseSQL(ctx, songRoot, logRoot, create)
	})

	return cmd
}

func (a *app) warehouseSQL(ctx context.Context, songRoot, logRoot string, create bool) error {
	driver, dsn, err := a.cfg.SQLSource()
	if err != nil {
		return err
	}

	db, err := sqlsink.Open(ctx, driver, dsn)
	if err != nil {
		return err
	}
	a.onClose(db.Close)

	if create {
		err = sparkify.CreateTables(ctx, db.DB, driver)
	} else {
		err = sparkify.MigrateTables(ctx, db.DB, driver)
	}
	if err != nil {
		return err
	}

	stmts, err := sparkify.Statements(driver)
	if err != nil {
		return err
	}
	sink := sqlsink.New(db, stmts)

	songs, logs := sparkify.Jobs(sink, nil, sparkify.NewSQLSongResolver(db), a.cfg.Ingest.Strict)
	if err := a.runSteps(ctx,
		step{job: songs, root: songRoot, ledger: true, reload: create},
		step{job: logs, root: logRoot, ledger: true, reload: create},
	); err != nil {
		return err
	}

	return ingestor.CheckQuality(ctx, sink, sparkify.StarTables...)
}

// warehouseBigQuery resolves songplays from songs seen in this run, so song
// files are always read again.
func (a *app) warehouseBigQuery(ctx context.Context, songRoot, logRoot string) error {
	sink, err := bqsink.New(ctx, a.cfg.BigQuery.Project, a.cfg.BigQuery.Dataset)
	if err != nil {
		return err
	}
	a.onClose(sink.Close)

	index := sparkify.NewSongIndex()
	songs, logs := sparkify.Jobs(sink, index, index, a.cfg.Ingest.Strict)

	return a.runSteps(ctx,
		step{job: songs, root: songRoot},
		step{job: logs, root: logRoot, ledger: true},
	)
}
