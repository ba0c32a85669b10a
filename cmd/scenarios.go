package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newScenariosCmd() *cobra.Command {
	scenariosCmd := &cobra.Command{
		Use:         "scenarios",
		Short:       "Lists the scenarios available to run",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			scenarios, err := loadScenarios(cfg)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTEPS\tEXPECT\tDESCRIPTION")
			for _, s := range scenarios {
				name := s.Name
				if s.Manual {
					name += " (manual)"
				}
				kinds := make([]string, len(s.Steps))
				for i, step := range s.Steps {
					kinds[i] = string(step.Kind)
				}
				expect := make([]string, len(s.Expect))
				for i, state := range s.Expect {
					expect[i] = state.String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, strings.Join(kinds, ","), strings.Join(expect, ","), s.Description)
			}
			return tw.Flush()
		},
	}
	scenariosCmd.Flags().String("scenarios", "", "YAML scenario file (default: the built-in scenarios)")
	return scenariosCmd
}
