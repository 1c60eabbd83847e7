package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onedata/automation-examples/archive"
	"github.com/onedata/automation-examples/bagit"
)

func newBagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bag <archive> <file/directory>...",
		Short: "Create a bag from local files",
		Long: `Create a bag from local files

The bag is written to a new archive, whose type is given by its extension.
Directories are added recursively. Files and directories whose name begins
with a "." are skipped.`,
		Example: `  lambdas bag scans.zip scans/
  lambdas bag --tag Source-Organization=ACK scans.tgz scans/`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			n, err := makeBag(args[0], name, tags, args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d files to %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().String("name", "", "bag directory name (default is the archive name without extensions)")
	cmd.Flags().StringSlice("tag", nil, "bag-info.txt tag, as Name=Value")
	return cmd
}

// makeBag writes the given files into a new bag in the archive fname. It
// returns the number of payload files.
func makeBag(fname, name string, tags, files []string) (int, error) {
	f, err := archive.FormatFromName(fname)
	if err != nil {
		return 0, err
	}
	if name == "" {
		name = filepath.Base(fname)
		for filepath.Ext(name) != "" {
			name = strings.TrimSuffix(name, filepath.Ext(name))
		}
	}
	out, err := os.OpenFile(fname, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	w, err := bagit.NewWriter(out, name, f)
	if err != nil {
		return 0, err
	}
	for _, tag := range tags {
		i := strings.Index(tag, "=")
		if i <= 0 {
			return 0, fmt.Errorf("tag %q is not of the form Name=Value", tag)
		}
		w.SetTag(tag[:i], tag[i+1:])
	}
	var n int
	for _, root := range files {
		base := filepath.Dir(filepath.Clean(root))
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if path != root && strings.HasPrefix(info.Name(), ".") {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			n++
			return addFile(w, filepath.ToSlash(rel), path)
		})
		if err != nil {
			return n, err
		}
	}
	if err := w.Close(); err != nil {
		return n, err
	}
	return n, out.Close()
}

func addFile(w *bagit.Writer, name, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	dst, err := w.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, in)
	return err
}
