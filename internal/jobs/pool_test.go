package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clovis/internal/jobs"
	"clovis/internal/testsupport"
)

func waitForCounts(t *testing.T, store *jobs.Store, want map[jobs.Status]int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		counts, err := store.Counts(context.Background())
		if err != nil {
			t.Fatalf("Counts: %v", err)
		}
		matched := true
		for status, n := range want {
			if counts[status] != n {
				matched = false
				break
			}
		}
		if matched && counts[jobs.StatusProcessing] == 0 && counts[jobs.StatusPending] == 0 {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	counts, _ := store.Counts(context.Background())
	t.Fatalf("queue never settled, counts %+v want %+v", counts, want)
}

func TestPoolExecutesQueuedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	store := mustOpen(t, cfg)
	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[string]int)
	run := func(ctx context.Context, job *jobs.Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.ProjectID]++
		if job.ProjectID == "bad" {
			return errors.New("synthetic failure")
		}
		return nil
	}

	for _, id := range []string{"one", "two", "bad"} {
		if _, _, err := store.Enqueue(ctx, id, "", false); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}

	pool := jobs.NewPool(cfg, store, run, nil)
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	waitForCounts(t, store, map[jobs.Status]int{
		jobs.StatusCompleted: 2,
		jobs.StatusFailed:    1,
	})

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"one", "two", "bad"} {
		if seen[id] != 1 {
			t.Fatalf("expected %s run exactly once, got %d", id, seen[id])
		}
	}
}

func TestPoolBoundsConcurrentJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	store := mustOpen(t, cfg)
	ctx := context.Background()

	var mu sync.Mutex
	inflight, peak := 0, 0
	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	run := func(ctx context.Context, job *jobs.Job) error {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()
		entered <- struct{}{}
		<-release
		mu.Lock()
		inflight--
		mu.Unlock()
		return nil
	}

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if _, _, err := store.Enqueue(ctx, id, "", false); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}

	pool := jobs.NewPool(cfg, store, run, nil)
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	var releaseOnce sync.Once
	defer func() {
		releaseOnce.Do(func() { close(release) })
		pool.Stop()
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(10 * time.Second):
			t.Fatalf("only %d jobs started", i)
		}
	}
	// both workers are now blocked inside a job; nothing else may start
	select {
	case <-entered:
		t.Fatal("a third job ran with two workers busy")
	case <-time.After(300 * time.Millisecond):
	}

	releaseOnce.Do(func() { close(release) })
	waitForCounts(t, store, map[jobs.Status]int{jobs.StatusCompleted: 5})

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("observed %d concurrent jobs with a pool of 2", peak)
	}
}

func TestPoolStartTwiceFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := mustOpen(t, cfg)

	pool := jobs.NewPool(cfg, store, func(context.Context, *jobs.Job) error { return nil }, nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	if err := pool.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestPoolRecoversInterruptedJobsOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := mustOpen(t, cfg)
	ctx := context.Background()

	if _, _, err := store.Enqueue(ctx, "p", "", false); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// simulate a crash mid-run
	if _, err := store.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	done := make(chan string, 1)
	pool := jobs.NewPool(cfg, store, func(_ context.Context, job *jobs.Job) error {
		done <- job.ProjectID
		return nil
	}, nil)
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	select {
	case id := <-done:
		if id != "p" {
			t.Fatalf("unexpected project %q", id)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("interrupted job was never rerun")
	}
}
