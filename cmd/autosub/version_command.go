package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autosub/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the CLI version",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "autosub %s\n", version.Version)
			return nil
		},
	}
}
