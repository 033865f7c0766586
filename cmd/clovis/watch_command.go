package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clovis/internal/apiclient"
	"clovis/internal/progress"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Stream live pipeline progress for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				return watchProject(cmd, client, args[0])
			})
		},
	}
}

func watchProject(cmd *cobra.Command, client *apiclient.Client, id string) error {
	out := cmd.OutOrStdout()
	return client.WatchProgress(cmd.Context(), id, func(evt progress.Event) {
		switch evt.Type {
		case progress.TypeProgress:
			line := fmt.Sprintf("[%3d%%] %s", evt.Progress, evt.Step)
			if evt.Message != "" {
				line += ": " + evt.Message
			}
			if evt.ETASeconds > 0 {
				line += fmt.Sprintf(" (eta %s)", formatDuration(evt.ETASeconds))
			}
			fmt.Fprintln(out, line)
		case progress.TypeStatus:
			fmt.Fprintf(out, "[%3d%%] status: %s\n", evt.Progress, evt.Status)
		case progress.TypeError:
			fmt.Fprintf(out, "error: %s\n", evt.Message)
		}
	})
}
