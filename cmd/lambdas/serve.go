package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/lambdas"
	"github.com/onedata/automation-examples/server"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lambdas as an HTTP server",
		Long: `Run the lambdas as an HTTP server

Batches are posted to /lambda/<name>. The progress of the jobs is kept in
counters shown by /debug/vars.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				c.Port = port
			}
			env, l, err := newEnv(c)
			if err != nil {
				return err
			}
			if l != nil {
				defer l.Close()
			}
			s := &server.RESTServer{
				PortNumber: c.Port,
				PProfPort:  c.PProfPort,
				Ledger:     l,
				Runner: &lambdas.Runner{
					Env: env,
					Executor: newExecutor(c, batch.StatsSink{
						Client: server.NewExpvarStats("lambda.progress"),
					}),
				},
			}
			if c.Tokens != "" {
				s.Validator, err = server.NewListValidatorFile(c.Tokens)
				if err != nil {
					return err
				}
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sig
				log.Println("Received signal, stopping")
				s.Stop()
			}()
			return s.Run()
		},
	}
	cmd.Flags().StringP("port", "p", "", "port to listen on (overrides the config file)")
	return cmd
}
