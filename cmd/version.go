// File: cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the application version.
// This value is intended to be set at build time using ldflags.
// Example: go build -ldflags "-X github.com/xkilldash9x/flowcheck/cmd.Version=1.0.0"
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Prints the flowcheck version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
