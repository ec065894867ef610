package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/c360/netpublish/operations"
)

func newOperationsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "operations",
		Short: "List the publish operations a project can use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := operations.NewStandardCatalog(nil, allProtocols...)
			if err != nil {
				return err
			}
			ops := catalog.Operations()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ops)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "OPERATION\tPROTOCOL\tKEYS\tDESCRIPTION")
			for _, op := range ops {
				keys := "-"
				if len(op.Keys) > 0 {
					keys = fmt.Sprint(op.Keys)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.Name, op.Protocol.ID, keys, op.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	return cmd
}
