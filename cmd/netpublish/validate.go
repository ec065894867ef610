package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/operations"
	"github.com/c360/netpublish/output/httpdata"
	"github.com/c360/netpublish/output/rosbus"
	"github.com/c360/netpublish/output/table"
	"github.com/c360/netpublish/publish"
)

// allProtocols lists every back end the binary can publish to.
var allProtocols = []publish.Protocol{table.Protocol, httpdata.Protocol, rosbus.Protocol}

func newValidateCmd(root *rootOptions) *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and project without connecting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			project, err := loadProject(projectPath, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if project != nil {
				catalog, err := operations.NewStandardCatalog(nil, allProtocols...)
				if err != nil {
					return err
				}
				for i, step := range project.Steps {
					if _, ok := catalog.Get(step.Operation); !ok {
						return errors.WrapInvalid(fmt.Errorf("%w: step %d: %q", errors.ErrUnknownOperation, i, step.Operation),
							"validate", "RunE", "check project operations")
					}
				}
				_, _ = fmt.Fprintf(out, "project is valid: %d steps\n", len(project.Steps))
			}
			_, _ = fmt.Fprintln(out, "configuration is valid")
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectPath, "project", "p", "", "Project file to check as well")
	return cmd
}
