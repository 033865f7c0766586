package apiclient_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clovis/internal/api"
	"clovis/internal/apiclient"
	"clovis/internal/audio"
	"clovis/internal/daemon"
	"clovis/internal/progress"
	"clovis/internal/services"
	"clovis/internal/testsupport"
)

func startDaemon(t *testing.T) *apiclient.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithFallbackEngines())
	d, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	client, err := apiclient.NewForAddress(d.Addr())
	if err != nil {
		t.Fatalf("NewForAddress: %v", err)
	}
	return client
}

func writeInstrumental(t *testing.T) string {
	t.Helper()
	buf := audio.NewBuffer(44100, 1, 44100)
	for i := range buf.Samples {
		buf.Samples[i] = 0.4 * math.Sin(2*math.Pi*220*float64(i)/44100)
	}
	var out bytes.Buffer
	if err := audio.EncodeWAV(&out, buf); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	path := filepath.Join(t.TempDir(), "track.wav")
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestClientRoundTrip(t *testing.T) {
	client := startDaemon(t)
	ctx := context.Background()

	project, err := client.CreateProject(ctx, api.CreateProjectRequest{
		Name:     "client project",
		Lyrics:   "una notte",
		Language: "it",
	}, writeInstrumental(t))
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if project.AudioFormat != "wav" {
		t.Fatalf("instrumental not attached: %+v", project)
	}

	listed, err := client.Projects(ctx)
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != project.ID {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	start, err := client.Start(ctx, project.ID, false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !start.Queued {
		t.Fatalf("unexpected start response: %+v", start)
	}

	var final progress.Event
	err = client.WatchProgress(ctx, project.ID, func(evt progress.Event) {
		final = evt
	})
	if err != nil {
		t.Fatalf("WatchProgress: %v", err)
	}
	if final.Status != "completed" {
		t.Fatalf("expected completion, got %+v", final)
	}

	status, err := client.PipelineStatus(ctx, project.ID)
	if err != nil {
		t.Fatalf("PipelineStatus: %v", err)
	}
	if !status.Steps["mix"].Completed {
		t.Fatalf("mix not completed: %+v", status.Steps)
	}
}

func TestClientMelodyReviewFlow(t *testing.T) {
	client := startDaemon(t)
	ctx := context.Background()

	project, err := client.CreateProject(ctx, api.CreateProjectRequest{
		Name:     "review me",
		Lyrics:   "una notte di stelle cadenti",
		Language: "it",
	}, writeInstrumental(t))
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	waitStatus := func(want string) {
		t.Helper()
		deadline := time.Now().Add(60 * time.Second)
		for time.Now().Before(deadline) {
			status, err := client.PipelineStatus(ctx, project.ID)
			if err != nil {
				t.Fatalf("PipelineStatus: %v", err)
			}
			if status.Project.Status == want {
				return
			}
			if status.Project.Status == "error" {
				t.Fatalf("pipeline failed: %s", status.Project.ErrorMessage)
			}
			time.Sleep(50 * time.Millisecond)
		}
		t.Fatalf("never reached status %q", want)
	}

	if _, err := client.Start(ctx, project.ID, true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus("melody_ready")

	m, err := client.Melody(ctx, project.ID)
	if err != nil {
		t.Fatalf("Melody: %v", err)
	}
	if len(m.Notes) == 0 {
		t.Fatal("expected a composed melody at the checkpoint")
	}

	m.Notes[0].Pitch = 72
	if _, err := client.UpdateMelody(ctx, project.ID, m); err != nil {
		t.Fatalf("UpdateMelody: %v", err)
	}
	edited, err := client.Melody(ctx, project.ID)
	if err != nil {
		t.Fatalf("Melody after edit: %v", err)
	}
	if edited.Notes[0].Pitch != 72 {
		t.Fatalf("edit not persisted: %+v", edited.Notes[0])
	}

	// resuming sings the edited line through to the final mix
	if _, err := client.Start(ctx, project.ID, false); err != nil {
		t.Fatalf("resume Start: %v", err)
	}
	waitStatus("completed")

	status, err := client.PipelineStatus(ctx, project.ID)
	if err != nil {
		t.Fatalf("PipelineStatus: %v", err)
	}
	if !status.Steps["synthesis"].Completed || !status.Steps["mix"].Completed {
		t.Fatalf("resume did not finish the pipeline: %+v", status.Steps)
	}
}

func TestClientMapsErrorTaxonomy(t *testing.T) {
	client := startDaemon(t)
	ctx := context.Background()

	if _, err := client.Project(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := client.Start(ctx, "missing", false); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	project, err := client.CreateProject(ctx, api.CreateProjectRequest{Name: "bare"}, "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := client.Start(ctx, project.ID, false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientUnreachableDaemon(t *testing.T) {
	client, err := apiclient.NewForAddress("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewForAddress: %v", err)
	}
	if _, err := client.Status(context.Background()); !errors.Is(err, apiclient.ErrDaemonUnavailable) {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}
