package main

import (
	"log"
	"os"

	raven "github.com/getsentry/raven-go"
	"github.com/spf13/cobra"

	"github.com/onedata/automation-examples/bagit"
	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/checksum"
	"github.com/onedata/automation-examples/config"
	"github.com/onedata/automation-examples/lambdas"
	"github.com/onedata/automation-examples/ledger"
	"github.com/onedata/automation-examples/metadata"
	"github.com/onedata/automation-examples/store"
)

// loadConfig reads the file named by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	fname, _ := cmd.Flags().GetString("config")
	if fname == "" {
		fname = os.Getenv("LAMBDAS_CONFIG")
	}
	return config.Load(fname)
}

// newEnv builds the environment of the lambdas described by c. The ledger,
// if any, is returned so the caller can close it.
func newEnv(c *config.Config) (*lambdas.Env, ledger.Ledger, error) {
	if c.SentryDSN != "" {
		if err := raven.SetDSN(c.SentryDSN); err != nil {
			return nil, nil, err
		}
	}
	env := &lambdas.Env{
		Engine: checksum.Engine{
			ChunkSize:  c.ChunkSize,
			PadAdler32: c.PadAdler32,
		},
		Policy:   bagit.LenientPolicy,
		ReadRate: c.ReadRate,
		Remote:   c.RemoteReads,
	}
	if c.StrictValidation {
		env.Policy = bagit.StrictPolicy
	}

	if c.S3.Bucket != "" {
		log.Printf("Using S3 bucket %s prefix %q", c.S3.Bucket, c.S3.Prefix)
		sess, err := store.NewS3Session(c.S3.Endpoint, c.S3.Region)
		if err != nil {
			return nil, nil, err
		}
		env.Store = store.NewS3(c.S3.Bucket, c.S3.Prefix, sess)
		// objects have no extended attributes
		env.Attrs = metadata.NewMemory()
	} else {
		log.Printf("Using Oneclient mounted at %s", c.MountPoint)
		m := store.NewMounted(c.MountPoint)
		m.Mmap = c.Mmap
		env.Store = m
		env.Attrs = metadata.Xattr{}
	}

	l, err := ledger.Open(c.LedgerDB, c.LedgerMySQL)
	if err != nil {
		return nil, nil, err
	}
	env.Ledger = l
	return env, l, nil
}

// newExecutor returns the executor described by c, sending progress to sink.
func newExecutor(c *config.Config, sink batch.Sink) batch.Executor {
	return batch.Executor{
		Workers:  c.Workers,
		Tick:     c.MonitorTick.Duration,
		Interval: c.HeartbeatInterval.Duration,
		Sink:     sink,
	}
}
