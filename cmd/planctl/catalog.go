package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect curriculum catalogs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a catalog file or directory (default: the embedded catalog)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("curriculum")
			if len(args) == 1 {
				path = args[0]
			}
			c, err := curriculum.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d units, %d facets\n", c.Name(), len(c.Units()), len(c.Facets()))
			for _, u := range c.Units() {
				notes := ""
				if _, ok := c.TeachingNotes(u.ID); ok {
					notes = " (notes)"
				}
				fmt.Fprintf(out, "  unit  %-12s %s%s\n", u.ID, u.Title, notes)
			}
			for _, f := range c.Facets() {
				fmt.Fprintf(out, "  facet %-32s %s\n", f.ID, f.Title)
			}
			return nil
		},
	})
	return cmd
}
