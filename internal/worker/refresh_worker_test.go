package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leasedash/internal/core"
)

type fakeRefresher struct {
	mu        sync.Mutex
	refreshes int
	periods   []string
	err       error
}

func (f *fakeRefresher) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeRefresher) PublishSnapshot(_ context.Context, period string) (core.KPIRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periods = append(f.periods, period)
	if f.err != nil {
		return core.KPIRecord{}, f.err
	}
	return core.KPIRecord{Period: "Year3"}, nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func TestRefreshWorker_RunOnce(t *testing.T) {
	f := &fakeRefresher{}
	w := NewRefreshWorker(f, time.Minute, "Year1")

	w.RunOnce(context.Background())

	if f.count() != 1 || f.periods[0] != "Year1" {
		t.Fatalf("refreshes=%d periods=%q", f.count(), f.periods)
	}
	if runs, failures := w.Stats(); runs != 1 || failures != 0 {
		t.Fatalf("stats = %d/%d", runs, failures)
	}
}

func TestRefreshWorker_CountsFailures(t *testing.T) {
	f := &fakeRefresher{err: errors.New("source down")}
	w := NewRefreshWorker(f, time.Minute, "")

	w.RunOnce(context.Background())
	w.RunOnce(context.Background())

	if runs, failures := w.Stats(); runs != 2 || failures != 2 {
		t.Fatalf("stats = %d/%d", runs, failures)
	}
}

func TestRefreshWorker_RunTicksUntilCancelled(t *testing.T) {
	f := &fakeRefresher{}
	w := NewRefreshWorker(f, 5*time.Millisecond, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for f.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d refreshes", f.count())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNewRefreshWorker_DefaultInterval(t *testing.T) {
	w := NewRefreshWorker(&fakeRefresher{}, 0, "")
	if w.interval != 5*time.Minute {
		t.Fatalf("interval = %v", w.interval)
	}
}
