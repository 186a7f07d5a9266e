// Command ingestor loads batch files into analytic stores.
package main

import (
	"os"

	"go.nownabe.dev/ingestor/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
