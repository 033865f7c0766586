package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clovis/internal/api"
	"clovis/internal/apiclient"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage vocal mix projects",
	}

	projectCmd.AddCommand(newProjectCreateCommand(ctx))
	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))
	projectCmd.AddCommand(newProjectUploadCommand(ctx))
	projectCmd.AddCommand(newProjectDeleteCommand(ctx))

	return projectCmd
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateProjectRequest
	var lyricsFile string
	var instrumental string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project, optionally uploading an instrumental",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			if lyricsFile != "" {
				data, err := os.ReadFile(lyricsFile)
				if err != nil {
					return fmt.Errorf("read lyrics file: %w", err)
				}
				req.Lyrics = string(data)
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				project, err := client.CreateProject(cmd.Context(), req, instrumental)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", project.Name, project.ID)
				if project.Instrumental != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Uploaded instrumental %s\n", project.Instrumental)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Description, "description", "", "Project description")
	cmd.Flags().StringVar(&req.Lyrics, "lyrics", "", "Lyrics text")
	cmd.Flags().StringVar(&lyricsFile, "lyrics-file", "", "Read lyrics from a file")
	cmd.Flags().StringVar(&req.Language, "language", "", "Lyrics language (default: detected)")
	cmd.Flags().StringVar(&req.SynthesisEngine, "engine", "", "Synthesis engine (diffsinger or acestep)")
	cmd.Flags().StringVar(&req.VoiceModel, "voice", "", "Voice model name")
	cmd.Flags().StringVar(&req.MixPreset, "preset", "", "Mix preset name")
	cmd.Flags().StringVarP(&instrumental, "instrumental", "i", "", "Instrumental audio file to upload")
	return cmd
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				projects, err := client.Projects(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(projects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects")
					return nil
				}
				rows := make([][]string, 0, len(projects))
				for _, p := range projects {
					rows = append(rows, []string{
						p.ID,
						p.Name,
						formatProjectState(p),
						formatDuration(p.DurationSeconds),
						p.MixPreset,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "State", "Length", "Preset"}, rows, 4))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show project details and per-step state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				status, err := client.PipelineStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printProjectDetails(cmd, status)
				return nil
			})
		},
	}
}

func newProjectUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload ID FILE",
		Short: "Upload or replace the project instrumental",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				project, err := client.UploadInstrumental(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%s format)\n",
					project.Instrumental, project.AudioFormat)
				return nil
			})
		},
	}
}

func newProjectDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a project and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				if err := client.DeleteProject(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
				return nil
			})
		},
	}
}

func printProjectDetails(cmd *cobra.Command, status api.PipelineStatus) {
	out := cmd.OutOrStdout()
	p := status.Project

	fmt.Fprintf(out, "%s (%s)\n", p.Name, p.ID)
	if p.Description != "" {
		fmt.Fprintf(out, "  %s\n", p.Description)
	}
	fmt.Fprintf(out, "  state:    %s\n", formatProjectState(p))
	if p.ErrorMessage != "" {
		fmt.Fprintf(out, "  error:    %s\n", p.ErrorMessage)
	}
	if p.Instrumental != "" {
		fmt.Fprintf(out, "  audio:    %s (%s, %s)\n",
			p.Instrumental, p.AudioFormat, formatDuration(p.DurationSeconds))
	}
	if p.BPM > 0 {
		fmt.Fprintf(out, "  analysis: %.1f BPM, %s, %d Hz\n", p.BPM, p.MusicalKey, p.SampleRate)
	}
	if p.SynthesisEngine != "" || p.VoiceModel != "" {
		fmt.Fprintf(out, "  voice:    %s %s\n", p.SynthesisEngine, p.VoiceModel)
	}

	rows := make([][]string, 0, len(stepOrder))
	for _, step := range stepOrder {
		state := status.Steps[step]
		rows = append(rows, []string{step, formatStepState(state)})
	}
	fmt.Fprintln(out, renderTable([]string{"Step", "State"}, rows))
}

var stepOrder = []string{"upload", "analysis", "melody", "synthesis", "refinement", "mix"}

func formatStepState(state api.StepStatus) string {
	switch {
	case state.Completed:
		return "completed"
	case state.Available:
		return "ready"
	default:
		return "waiting"
	}
}

func formatProjectState(p api.Project) string {
	if p.CurrentStep != "" {
		return fmt.Sprintf("%s (%s %d%%)", p.Status, p.CurrentStep, p.Progress)
	}
	return p.Status
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
