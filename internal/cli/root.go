// Package cli implements the ingestor command.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the command and returns the process exit code.
func Execute() int {
	cmd := newRootCmd(&app{stdout: os.Stdout, stderr: os.Stderr, connectCassandra: dialCassandra})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ingestor",
		Short:         "Load batch files into analytic stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "configuration file (dwh.cfg, yaml, toml or json)")
	flags.String("policy", "continue", "what to do when a file fails: continue or abort")
	flags.String("ledger", "", "path of the loaded files ledger; empty disables skipping")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("pretty", false, "print human friendly logs")
	flags.Bool("strict", false, "fail files missing required columns")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	cmd.AddCommand(
		newCreateTablesCmd(a),
		newWarehouseCmd(a),
		newEventsCmd(a),
		newImmigrationCmd(a),
	)

	return cmd
}
