package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/lambdas"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <lambda> [request.json]",
		Short: "Run one batch",
		Long: `Run one batch

The batch request is read from the given file, or from stdin, and the
response is written to stdout. Progress measurements can be written, one
JSON object per line, to the file given by --stats.`,
		Example: `  lambdas run calculate-checksum request.json
  echo '{"argsBatch": [...]}' | lambdas run validate-bagit`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: lambdas.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			env, l, err := newEnv(c)
			if err != nil {
				return err
			}
			if l != nil {
				defer l.Close()
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var sink batch.Sink
			if fname, _ := cmd.Flags().GetString("stats"); fname != "" {
				f, err := os.Create(fname)
				if err != nil {
					return err
				}
				defer f.Close()
				sink = batch.NewStreamSink(f)
			}
			r := &lambdas.Runner{
				Env:      env,
				Executor: newExecutor(c, sink),
			}
			return r.Handle(context.Background(), args[0], in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("stats", "", "file to write progress measurements to")
	return cmd
}
