// Command lambdas runs the Onedata batch lambdas, either as an HTTP server
// or one batch at a time from the command line. It also has commands to
// validate, checksum and create bags locally.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lambdas",
		Short: "Batch lambdas for BagIt archives and checksums",
		Long: `Batch lambdas for BagIt archives and checksums

The lambdas read files of a Onedata space through a mounted Oneclient, or
through an S3 gateway, and are given batches of jobs by the workflow
scheduler.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "TOML configuration file")

	cmd.AddCommand(
		newServeCommand(),
		newRunCommand(),
		newValidateCommand(),
		newChecksumCommand(),
		newBagCommand(),
		newStressCommand(),
		newVersionCommand(),
	)
	return cmd
}
