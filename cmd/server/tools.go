package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/doctools/backend/internal/catalog"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCatalog(cmd.OutOrStdout(), catalog.Default())
		},
	}
}

func printCatalog(out io.Writer, cat *catalog.Catalog) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, section := range cat.Sections() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", section.Title)
		for _, t := range section.Tools {
			fmt.Fprintf(w, "  %s\t%s\t%s -> %s\n", t.ID, t.Name, strings.Join(t.InputFormats, ","), t.OutputFormat)
		}
	}
	return w.Flush()
}
