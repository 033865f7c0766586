package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"clovis/internal/api"
	"clovis/internal/apiclient"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	var stopAfterMelody bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "start ID",
		Short: "Start the pipeline for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.Start(cmd.Context(), args[0], stopAfterMelody)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pipeline queued for %s (status %s)\n",
					resp.ProjectID, resp.Status)
				if !watch {
					return nil
				}
				return watchProject(cmd, client, resp.ProjectID)
			})
		},
	}

	cmd.Flags().BoolVar(&stopAfterMelody, "stop-after-melody", false, "Pause at the melody checkpoint for review")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream progress until the run finishes")
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Operate on multiple projects at once",
	}
	batchCmd.AddCommand(newBatchStartCommand(ctx))
	return batchCmd
}

func newBatchStartCommand(ctx *commandContext) *cobra.Command {
	var stopAfterMelody bool
	var all bool

	cmd := &cobra.Command{
		Use:   "start [ID...]",
		Short: "Start pipelines for several projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("pass project IDs or --all")
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				ids := args
				if all {
					projects, err := client.Projects(cmd.Context())
					if err != nil {
						return err
					}
					ids = ids[:0]
					for _, p := range projects {
						ids = append(ids, p.ID)
					}
				}

				resp, err := client.BatchStart(cmd.Context(), api.BatchStartRequest{
					ProjectIDs:      ids,
					StopAfterMelody: stopAfterMelody,
				})
				if err != nil {
					return err
				}
				printBatchOutcome(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&stopAfterMelody, "stop-after-melody", false, "Pause each run at the melody checkpoint")
	cmd.Flags().BoolVar(&all, "all", false, "Start every project")
	return cmd
}

func printBatchOutcome(cmd *cobra.Command, resp api.BatchStartResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Started %d, skipped %d, failed %d\n",
		len(resp.Started), len(resp.Skipped), len(resp.Errors))
	for _, id := range resp.Started {
		fmt.Fprintf(out, "  started %s\n", id)
	}
	for _, id := range resp.Skipped {
		fmt.Fprintf(out, "  skipped %s (already running)\n", id)
	}

	failed := make([]string, 0, len(resp.Errors))
	for id := range resp.Errors {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(out, "  failed  %s: %s\n", id, resp.Errors[id])
	}
}
