// Package main provides the errshipctl command-line tool.
// Commands:
//   - send: fire a manual test capture at a configured webhook
//   - watch: a live terminal dashboard of SDK health
//   - mockserver: a disposable local ingestion webhook for manual testing
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "errshipctl",
		Short:   "errshipctl - drive and inspect the errship SDK pipeline",
		Version: version,
	}

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(mockserverCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
