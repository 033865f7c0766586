package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"clovis/internal/apiclient"
	"clovis/internal/exports"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Convert the final mix into a distribution format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				path, err := client.Export(cmd.Context(), args[0], format)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s\n", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "wav",
		fmt.Sprintf("Export format (%s)", strings.Join(exports.Formats, ", ")))
	return cmd
}
