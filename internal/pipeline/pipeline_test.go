package pipeline_test

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"clovis/internal/artifacts"
	"clovis/internal/audio"
	"clovis/internal/config"
	"clovis/internal/engines"
	"clovis/internal/logging"
	"clovis/internal/melody"
	"clovis/internal/pipeline"
	"clovis/internal/progress"
	"clovis/internal/projects"
	"clovis/internal/services"
	"clovis/internal/testsupport"
)

// fallbackConfig points every primary engine at a binary that cannot exist so
// runs exercise the deterministic built-in engines.
func fallbackConfig(t *testing.T) *config.Config {
	cfg := testsupport.NewConfig(t)
	cfg.Engines.FFprobeBinary = "clovis-test-missing-ffprobe"
	cfg.Engines.FFmpegBinary = "clovis-test-missing-ffmpeg"
	cfg.Engines.PitchBinary = "clovis-test-missing-melody"
	cfg.Engines.DiffSingerBinary = "clovis-test-missing-diffsinger"
	cfg.Engines.ACEStepBinary = "clovis-test-missing-acestep"
	cfg.Engines.RVCBinary = "clovis-test-missing-rvc"
	cfg.Engines.MixBinary = "clovis-test-missing-mix"
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, store *projects.Store, hub *progress.Hub) *pipeline.Runner {
	set := engines.NewSet(cfg, logging.NewNop())
	return pipeline.NewRunner(cfg, store, set, hub, logging.NewNop())
}

// seedProject creates a project with lyrics and an uploaded WAV instrumental.
func seedProject(t *testing.T, cfg *config.Config, store *projects.Store) *projects.Project {
	t.Helper()
	ctx := context.Background()

	project, err := store.Create(ctx, projects.NewProjectRequest{
		Name:     "seeded",
		Lyrics:   "una notte di stelle cadenti",
		Language: "it",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	project.InstrumentalFilename = "instrumental.wav"
	project.AudioFormat = "wav"
	if err := store.Update(ctx, project); err != nil {
		t.Fatalf("Update: %v", err)
	}

	layout := artifacts.NewLayout(cfg, project.ID)
	if err := layout.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	buf := audio.NewBuffer(44100, 1, 44100*2)
	for i := range buf.Samples {
		buf.Samples[i] = 0.4 * math.Sin(2*math.Pi*220*float64(i)/44100)
	}
	if err := audio.WriteWAVFile(layout.Instrumental("wav"), buf); err != nil {
		t.Fatalf("write instrumental: %v", err)
	}
	return project
}

func TestRunCompletesOnFallbacksAlone(t *testing.T) {
	cfg := fallbackConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := seedProject(t, cfg, store)
	if _, err := store.BeginPipeline(ctx, project.ID); err != nil {
		t.Fatalf("BeginPipeline: %v", err)
	}

	runner := newRunner(t, cfg, store, nil)
	if err := runner.Run(ctx, project.ID, pipeline.Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	done, err := store.GetByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if done.Status != projects.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.ErrorMsg)
	}
	if done.BPM <= 0 || done.DurationSeconds <= 0 {
		t.Fatalf("analysis metadata missing: %+v", done)
	}

	layout := artifacts.NewLayout(cfg, project.ID)
	presence := layout.Presence()
	if !presence.Melody || !presence.RawVocals || !presence.RefinedVocals || !presence.FinalMix {
		t.Fatalf("missing artifacts after full run: %+v", presence)
	}
	if _, err := os.Stat(layout.MelodyMIDI()); err != nil {
		t.Fatalf("missing midi export: %v", err)
	}

	// the final mix must match the instrumental's length
	instrumental, err := audio.ReadWAVFile(layout.Instrumental("wav"))
	if err != nil {
		t.Fatalf("read instrumental: %v", err)
	}
	mix, err := audio.ReadWAVFile(layout.FinalMix())
	if err != nil {
		t.Fatalf("read final mix: %v", err)
	}
	if diff := math.Abs(mix.Duration().Seconds() - instrumental.Duration().Seconds()); diff > 0.5 {
		t.Fatalf("mix is %fs for a %fs instrumental",
			mix.Duration().Seconds(), instrumental.Duration().Seconds())
	}
	if _, err := os.Stat(layout.VocalConfig()); err != nil {
		t.Fatalf("missing vocal config snapshot: %v", err)
	}

	m, err := melody.Load(layout.MelodyJSON())
	if err != nil {
		t.Fatalf("load melody: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("final melody invalid: %v", err)
	}
	// melody must be quantized to the default grid
	cell := melody.DefaultGridBeats * 60.0 / m.BPM
	for i, n := range m.Notes {
		if r := math.Mod(n.Start, cell); math.Min(r, cell-r) > 1e-6 {
			t.Fatalf("note %d start %f off grid", i, n.Start)
		}
	}
}

func TestRunFailureLandsInErrorState(t *testing.T) {
	cfg := fallbackConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := seedProject(t, cfg, store)
	// strip the lyrics so melody composition has nothing to work with
	project.Lyrics = ""
	if err := store.Update(ctx, project); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.BeginPipeline(ctx, project.ID); err != nil {
		t.Fatalf("BeginPipeline: %v", err)
	}

	runner := newRunner(t, cfg, store, nil)
	err := runner.Run(ctx, project.ID, pipeline.Options{})
	if err == nil {
		t.Fatal("expected run to fail without lyrics")
	}

	failed, getErr := store.GetByID(ctx, project.ID)
	if getErr != nil {
		t.Fatalf("GetByID: %v", getErr)
	}
	if failed.Status != projects.StatusError {
		t.Fatalf("expected error status, got %s", failed.Status)
	}
	if failed.CurrentStep != projects.StepMelody {
		t.Fatalf("expected failure recorded at melody, got %s", failed.CurrentStep)
	}
	if failed.ErrorMsg == "" {
		t.Fatal("expected a user-facing error message")
	}
}

func TestRunMixFailureKeepsEarlierStages(t *testing.T) {
	cfg := fallbackConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := seedProject(t, cfg, store)
	// mark analysis done and lay down every artifact through refinement so
	// the run resumes at the mix stage alone
	project.BPM = 120
	project.DurationSeconds = 2
	project.SampleRate = 44100
	if err := store.Update(ctx, project); err != nil {
		t.Fatalf("Update: %v", err)
	}
	layout := artifacts.NewLayout(cfg, project.ID)
	m := &melody.Melody{
		BPM: 120,
		Notes: []melody.Note{
			{Pitch: 60, Start: 0, Duration: 0.5, Syllable: "u"},
			{Pitch: 62, Start: 0.5, Duration: 0.5, Syllable: "na"},
		},
	}
	if err := melody.Save(layout.MelodyJSON(), m); err != nil {
		t.Fatalf("save melody: %v", err)
	}
	take := audio.NewBuffer(44100, 1, 44100)
	if err := audio.WriteWAVFile(layout.RawVocals(), take); err != nil {
		t.Fatalf("write raw vocals: %v", err)
	}
	// a refined take that is not a WAV makes the mix stage fail while
	// leaving every earlier artifact in place
	testsupport.WriteText(t, layout.RefinedVocals(), "not audio")

	if _, err := store.BeginPipeline(ctx, project.ID); err != nil {
		t.Fatalf("BeginPipeline: %v", err)
	}
	runner := newRunner(t, cfg, store, nil)
	if err := runner.Run(ctx, project.ID, pipeline.Options{}); err == nil {
		t.Fatal("expected the mix stage to fail")
	}

	failed, err := store.GetByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if failed.Status != projects.StatusError {
		t.Fatalf("expected error status, got %s", failed.Status)
	}
	if failed.CurrentStep != projects.StepMix {
		t.Fatalf("expected failure recorded at mix, got %s", failed.CurrentStep)
	}

	// everything before the mix keeps its artifacts and completion
	presence := layout.Presence()
	if !presence.Melody || !presence.RawVocals || !presence.RefinedVocals {
		t.Fatalf("earlier artifacts lost on mix failure: %+v", presence)
	}
	if presence.FinalMix {
		t.Fatal("no final mix should be reported")
	}
	statuses := projects.StepStatuses(failed, presence)
	for _, step := range []projects.Step{projects.StepMelody, projects.StepSynthesis, projects.StepRefinement} {
		if !statuses[step].Completed {
			t.Fatalf("step %s should stay completed: %+v", step, statuses)
		}
	}
	if statuses[projects.StepMix].Completed {
		t.Fatalf("mix must not read as completed: %+v", statuses)
	}
}

func TestRunResumesAtFailedStage(t *testing.T) {
	cfg := fallbackConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := seedProject(t, cfg, store)
	project.Lyrics = ""
	if err := store.Update(ctx, project); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.BeginPipeline(ctx, project.ID); err != nil {
		t.Fatalf("BeginPipeline: %v", err)
	}
	runner := newRunner(t, cfg, store, nil)
	if err := runner.Run(ctx, project.ID, pipeline.Options{}); err == nil {
		t.Fatal("expected first run to fail")
	}

	// record what analysis wrote; the retry must not redo that stage
	afterFail, err := store.GetByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	analyzedBPM := afterFail.BPM
	if analyzedBPM <= 0 {
		t.Fatal("analysis should have completed before the failure")
	}

	afterFail.Lyrics = "adesso ci sono le parole"
	if err := store.Update(ctx, afterFail); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.BeginPipeline(ctx, project.ID); err != nil {
		t.Fatalf("BeginPipeline retry: %v", err)
	}
	if err := runner.Run(ctx, project.ID, pipeline.Options{}); err != nil {
		t.Fatalf("retry Run: %v", err)
	}

	done, err := store.GetByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if done.Status != projects.StatusCompleted {
		t.Fatalf("expected completed after retry, got %s (%s)", done.Status, done.ErrorMsg)
	}
	if done.BPM != analyzedBPM {
		t.Fatalf("retry must keep analysis results: %f != %f", done.BPM, analyzedBPM)
	}
}

func TestRunStopsAtMelodyCheckpoint(t *testing.T) {
	cfg := fallbackConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := seedProject(t, cfg, store)
	if _, err := store.BeginPipeline(ctx, project.ID); err != nil {
		t.Fatalf("BeginPipeline: %v", err)
	}

	runner := newRunner(t, cfg, store, nil)
	if err := runner.Run(ctx, project.ID, pipeline.Options{StopAfterMelody: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	paused, err := store.GetByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if paused.Status != projects.StatusMelodyReady {
		t.Fatalf("expected melody_ready, got %s", paused.Status)
	}

	layout := artifacts.NewLayout(cfg, project.ID)
	presence := layout.Presence()
	if !presence.Melody {
		t.Fatal("melody artifact missing at the checkpoint")
	}
	if presence.RawVocals || presence.FinalMix {
		t.Fatalf("synthesis must not have run: %+v", presence)
	}

	// a second start resumes from synthesis through to completion
	if _, err := store.BeginPipeline(ctx, project.ID); err != nil {
		t.Fatalf("BeginPipeline resume: %v", err)
	}
	if err := runner.Run(ctx, project.ID, pipeline.Options{}); err != nil {
		t.Fatalf("resume Run: %v", err)
	}
	done, err := store.GetByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if done.Status != projects.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.ErrorMsg)
	}
}

func TestRunPublishesMonotonicProgress(t *testing.T) {
	cfg := fallbackConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := seedProject(t, cfg, store)
	if _, err := store.BeginPipeline(ctx, project.ID); err != nil {
		t.Fatalf("BeginPipeline: %v", err)
	}

	hub := progress.NewHub()
	sub := hub.Subscribe(project.ID)
	defer sub.Close()

	runner := newRunner(t, cfg, store, hub)
	if err := runner.Run(ctx, project.ID, pipeline.Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	previous := -1
	sawCompletion := false
	for {
		select {
		case evt := <-sub.Events():
			if evt.ProjectID != project.ID {
				t.Fatalf("event leaked from another project: %+v", evt)
			}
			if evt.Type == progress.TypeProgress || evt.Type == progress.TypeStatus {
				if evt.Progress < previous {
					t.Fatalf("progress regressed: %d after %d", evt.Progress, previous)
				}
				previous = evt.Progress
			}
			if evt.Status == string(projects.StatusCompleted) {
				sawCompletion = true
			}
			continue
		default:
		}
		break
	}
	if previous < 100 {
		t.Fatalf("expected progress to reach 100, got %d", previous)
	}
	if !sawCompletion {
		t.Fatal("expected a completion status event")
	}
}

func TestRunMissingProject(t *testing.T) {
	cfg := fallbackConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	runner := newRunner(t, cfg, store, nil)
	err := runner.Run(context.Background(), "no-such-project", pipeline.Options{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
