package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onedata/automation-examples/archive"
	"github.com/onedata/automation-examples/bagit"
	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/checksum"
	"github.com/onedata/automation-examples/config"
	"github.com/onedata/automation-examples/store"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <archive>...",
		Short: "Validate bags in local archive files",
		Long: `Validate bags in local archive files

Each archive must hold a single bag. The archive type is taken from the
file extension (.zip, .tar, .tgz, .tar.gz, .tzst, .tlz4). The archives are
validated in parallel.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if strict, _ := cmd.Flags().GetBool("strict"); strict {
				c.StrictValidation = true
			}
			results := validateFiles(c, args)
			var failed int
			for i, res := range results {
				if res.Failed() {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", args[i], res.Exception)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", args[i])
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d bags are invalid", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().Bool("strict", false, "verify payload manifests and completeness too")
	return cmd
}

// validateFiles validates the bag in each of the named archives.
func validateFiles(c *config.Config, fnames []string) []batch.Result {
	policy := bagit.LenientPolicy
	if c.StrictValidation {
		policy = bagit.StrictPolicy
	}
	var jobs []batch.Job
	for _, fname := range fnames {
		fname := fname
		jobs = append(jobs, func(ctx context.Context, bus *batch.Bus) (interface{}, error) {
			f, err := archive.FormatFromName(fname)
			if err != nil {
				return nil, err
			}
			rac, size, err := store.OpenFile(fname, c.Mmap)
			if err != nil {
				return nil, err
			}
			a, err := archive.Open(rac, size, f)
			if err != nil {
				return nil, err
			}
			defer a.Close()
			v := &bagit.Validator{
				Engine: &checksum.Engine{ChunkSize: c.ChunkSize, PadAdler32: c.PadAdler32},
				Policy: policy,
			}
			return nil, v.Validate(a)
		})
	}
	e := newExecutor(c, nil)
	return e.Run(context.Background(), jobs, nil)
}
