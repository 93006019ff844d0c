/*
main.go - Application entry point

PURPOSE:
  Runs the rewards-bot command line. All wiring lives in the cli package so
  it can be exercised from tests.

EXAMPLES:
  # HTTP server backed by Google Sheets
  GOOGLE_CREDENTIALS_JSON="$(cat key.json)" STORE_DRIVER=sheets rewards-bot serve

  # Local try-out with seeded in-memory data
  rewards-bot chat --store memory --seed cli/testdata/fixture.yaml

SEE ALSO:
  - cli/root.go: commands and global flags
  - config/config.go: environment variables
*/
package main

import (
	"fmt"
	"os"

	"github.com/warp/rewards-bot/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
