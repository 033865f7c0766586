package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clovis/internal/apiclient"
)

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List mix presets and voice models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				catalog, err := client.Presets(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(catalog.MixPresets))
				for _, preset := range catalog.MixPresets {
					rows = append(rows, []string{preset.Name, preset.Description})
				}
				fmt.Fprintln(out, renderTable([]string{"Mix Preset", "Description"}, rows))

				rows = rows[:0]
				for _, voice := range catalog.VoiceModels {
					rows = append(rows, []string{voice.Name, voice.Engine})
				}
				fmt.Fprintln(out, renderTable([]string{"Voice", "Engine"}, rows))
				return nil
			})
		},
	}
}
