// Command testdata writes input files for the dmap applications.
package main

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkg.jsn.cam/dmap/cmd/testdata/generator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		count  int64
		output string
		seed   uint64
	)

	cmd := &cobra.Command{
		Use:       "testdata <app>",
		Short:     "Generate input data for a dmap application",
		Args:      cobra.ExactArgs(1),
		ValidArgs: generator.List(),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := generator.Get(args[0])
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("count") {
				count = g.DefaultCount()
			}
			if !cmd.Flags().Changed("seed") {
				seed = rand.Uint64()
			}
			g.Init(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))

			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return err
			}

			file, err := os.Create(output)
			if err != nil {
				return err
			}
			defer file.Close()

			w := bufio.NewWriter(file)
			for i := int64(0); i < count; i++ {
				if err := g.WriteLine(w); err != nil {
					return err
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			info, err := file.Stat()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s lines, %s -> %s\n",
				g.Description(), humanize.Comma(count), humanize.Bytes(uint64(info.Size())), output)

			return nil
		},
	}

	cmd.Flags().Int64VarP(&count, "count", "n", 0, "number of lines (default depends on the app)")
	cmd.Flags().StringVarP(&output, "output", "o", "var/testdata.txt", "output file path")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (default random)")

	return cmd
}
