package cli

import (
	"context"

	"github.com/spf13/cobra"

	"go.nownabe.dev/ingestor"
	"go.nownabe.dev/ingestor/contrib/immigration"
	"go.nownabe.dev/ingestor/contrib/sinks/parquetsink"
)

func newImmigrationCmd(a *app) *cobra.Command {
	var portsPath string

	cmd := &cobra.Command{
		Use:   "immigration <temperature_root> <i94_root>",
		Short: "Load city temperatures and I94 arrivals into partitioned parquet",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&portsPath, "ports", "valid_ports.txt", "port code list")
	cmd.Flags().String("parquet-dir", "", "root directory of the parquet output")

	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		ports, err := ingestor.LoadPortMap(portsPath)
		if err != nil {
			return err
		}

		sink := parquetsink.New(a.cfg.Parquet.Dir)
		temperature, arrivals := immigration.Jobs(ports, sink, a.cfg.Ingest.Strict)

		// The temperature index lives in memory, so temperatures are
		// always read again.
		if err := a.runSteps(ctx,
			step{job: temperature, root: args[0]},
			step{job: arrivals, root: args[1], ledger: true},
		); err != nil {
			return err
		}

		return ingestor.CheckQuality(ctx, sink, immigration.TableNames...)
	})

	return cmd
}
