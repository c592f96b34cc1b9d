package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkg.jsn.cam/dmap/pkg/apps"
)

func newAppsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List the available applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range apps.List() {
				desc, err := apps.Description(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\n", name, desc)
			}
			return w.Flush()
		},
	}
}
