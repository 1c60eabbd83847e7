package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onedata/automation-examples/checksum"
	"github.com/onedata/automation-examples/store"
)

func newChecksumCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checksum <algorithm> <file>...",
		Short: "Print checksums of local files",
		Long: `Print checksums of local files

The output has the format of a BagIt manifest, one "<checksum>  <file>" line
per file.`,
		Example: `  lambdas checksum sha256 data/*`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			alg, err := checksum.ParseAlgorithm(args[0])
			if err != nil {
				return err
			}
			e := &checksum.Engine{ChunkSize: c.ChunkSize, PadAdler32: c.PadAdler32}
			var failed bool
			for _, fname := range args[1:] {
				sum, err := checksumFile(e, alg, fname, c.Mmap)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %s\n", fname, err)
					failed = true
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, fname)
			}
			if failed {
				return fmt.Errorf("some files could not be read")
			}
			return nil
		},
	}
	return cmd
}

func checksumFile(e *checksum.Engine, alg checksum.Algorithm, fname string, mapped bool) (string, error) {
	rac, _, err := store.OpenFile(fname, mapped)
	if err != nil {
		return "", err
	}
	defer rac.Close()
	return e.Compute(store.NewReader(rac), alg)
}
