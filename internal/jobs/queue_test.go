package jobs_test

import (
	"context"
	"testing"
	"time"

	"clovis/internal/config"
	"clovis/internal/jobs"
	"clovis/internal/testsupport"
)

func mustOpen(t *testing.T, cfg *config.Config) *jobs.Store {
	t.Helper()
	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnqueueIsIdempotentPerProject(t *testing.T) {
	store := mustOpen(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, queued, err := store.Enqueue(ctx, "project-a", "", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !queued {
		t.Fatal("first enqueue should insert")
	}

	second, queued, err := store.Enqueue(ctx, "project-a", "", false)
	if err != nil {
		t.Fatalf("Enqueue duplicate: %v", err)
	}
	if queued {
		t.Fatal("duplicate enqueue must not insert")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing job back, got %d vs %d", second.ID, first.ID)
	}

	// a different project queues independently
	_, queued, err = store.Enqueue(ctx, "project-b", "", false)
	if err != nil {
		t.Fatalf("Enqueue other project: %v", err)
	}
	if !queued {
		t.Fatal("other project should insert")
	}
}

func TestClaimTakesOldestPending(t *testing.T) {
	store := mustOpen(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, _, err := store.Enqueue(ctx, "first", "", false); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, _, err := store.Enqueue(ctx, "second", "tok-second", true); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := store.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if job == nil || job.ProjectID != "first" {
		t.Fatalf("expected first project claimed, got %+v", job)
	}
	if job.Status != jobs.StatusProcessing || job.Attempts != 1 {
		t.Fatalf("unexpected claim state: %+v", job)
	}

	next, err := store.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if next == nil || next.ProjectID != "second" || !next.StopAfterMelody {
		t.Fatalf("expected second project claimed, got %+v", next)
	}
	if next.RunToken != "tok-second" {
		t.Fatalf("expected the run token to ride along, got %q", next.RunToken)
	}

	empty, err := store.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim empty: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected empty queue, got %+v", empty)
	}
}

func TestCompleteAndFailReleaseTheProjectSlot(t *testing.T) {
	store := mustOpen(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, _, err := store.Enqueue(ctx, "p", "", false); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, err := store.Claim(ctx)
	if err != nil || job == nil {
		t.Fatalf("Claim: %v %+v", err, job)
	}
	if err := store.Fail(ctx, job.ID, "engine crashed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	// the failed job no longer blocks re-queueing the project
	_, queued, err := store.Enqueue(ctx, "p", "", false)
	if err != nil {
		t.Fatalf("Enqueue after fail: %v", err)
	}
	if !queued {
		t.Fatal("expected a fresh job after failure")
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[jobs.StatusFailed] != 1 || counts[jobs.StatusPending] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	store := mustOpen(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, _, err := store.Enqueue(ctx, "p", "", false); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset, got %d", reset)
	}

	job, err := store.Claim(ctx)
	if err != nil || job == nil {
		t.Fatalf("expected job claimable again: %v %+v", err, job)
	}
	if job.Attempts != 2 {
		t.Fatalf("expected attempt count to accumulate, got %d", job.Attempts)
	}
}

func TestReclaimStaleHonorsCutoff(t *testing.T) {
	store := mustOpen(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, _, err := store.Enqueue(ctx, "p", "", false); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, err := store.Claim(ctx)
	if err != nil || job == nil {
		t.Fatalf("Claim: %v %+v", err, job)
	}

	// heartbeat is fresh: nothing to reclaim
	reclaimed, err := store.ReclaimStale(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("fresh job must not be reclaimed, got %d", reclaimed)
	}

	// a future cutoff treats the heartbeat as expired
	reclaimed, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", reclaimed)
	}
}
