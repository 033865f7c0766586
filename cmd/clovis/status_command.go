package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"clovis/internal/apiclient"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				fmt.Fprintf(out, "Daemon running (pid %d, %d workers)\n", status.PID, status.Workers)
				fmt.Fprintf(out, "  projects db: %s\n", status.ProjectsDB)
				fmt.Fprintf(out, "  jobs db:     %s\n", status.JobsDB)

				fmt.Fprintln(out, "\nProjects:")
				printCounts(out, status.ProjectCounts)
				if len(status.JobCounts) > 0 {
					fmt.Fprintln(out, "\nJobs:")
					printCounts(out, status.JobCounts)
				}

				fmt.Fprintln(out, "\nEngines:")
				for _, engine := range status.Engines {
					label := paint(colorize, ansiGreen, "available")
					if !engine.Available {
						label = paint(colorize, ansiYellow, "fallback")
						if engine.Detail != "" {
							label += " (" + engine.Detail + ")"
						}
					}
					fmt.Fprintf(out, "  %-11s %-18s %s\n", engine.Stage, engine.Name, label)
				}
				return nil
			})
		},
	}
}

func printCounts(out io.Writer, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		if counts[key] > 0 {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		fmt.Fprintln(out, "  none")
		return
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "  %-14s %s\n", key, strconv.Itoa(counts[key]))
	}
}

func paint(colorize bool, color, text string) string {
	if !colorize {
		return text
	}
	return color + text + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
