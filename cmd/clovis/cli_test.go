package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clovis/internal/api"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"config", "init", "--path", target})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "projects_dir") {
		t.Fatalf("sample config missing expected keys:\n%s", data)
	}

	// a second init without --overwrite must refuse
	cmd = newRootCommand()
	cmd.SetArgs([]string{"config", "init", "--path", target})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "-"},
		{59.4, "0:59"},
		{61, "1:01"},
		{184.6, "3:05"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.seconds); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestFormatProjectState(t *testing.T) {
	p := api.Project{Status: "synthesizing", CurrentStep: "synthesis", Progress: 40}
	if got := formatProjectState(p); got != "synthesizing (synthesis 40%)" {
		t.Fatalf("unexpected state %q", got)
	}
	p = api.Project{Status: "completed"}
	if got := formatProjectState(p); got != "completed" {
		t.Fatalf("unexpected state %q", got)
	}
}

func TestFormatStepState(t *testing.T) {
	if got := formatStepState(api.StepStatus{Available: true, Completed: true}); got != "completed" {
		t.Fatalf("unexpected %q", got)
	}
	if got := formatStepState(api.StepStatus{Available: true}); got != "ready" {
		t.Fatalf("unexpected %q", got)
	}
	if got := formatStepState(api.StepStatus{}); got != "waiting" {
		t.Fatalf("unexpected %q", got)
	}
}
