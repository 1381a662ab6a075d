package jobstore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemory_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	rec := NewRecord(KindTranscription, "file:///tmp/audio.m4a")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.ID != rec.ID || got.Kind != rec.Kind || got.InputRef != rec.InputRef {
		t.Fatalf("record not round-tripped: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set")
	}
}

func TestMemory_GetUnknownIsNotFound(t *testing.T) {
	s := NewMemory()

	_, err := s.Get(context.Background(), "no-such-job")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_CreateDuplicateFails(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	rec := NewRecord(KindTranscription, "ref")

	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := s.Create(ctx, rec); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestMemory_UpdateCommitsMutation(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	rec := NewRecord(KindTranscription, "ref")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	updated, err := s.Update(ctx, rec.ID, func(r *Record) error {
		return r.MarkProcessing(0.02)
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Status != StatusProcessing {
		t.Fatalf("returned record not mutated: %q", updated.Status)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusProcessing {
		t.Fatalf("mutation not committed: %q", got.Status)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Fatalf("UpdatedAt not refreshed")
	}
}

func TestMemory_UpdateMutateErrorAborts(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	rec := NewRecord(KindTranscription, "ref")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Update(ctx, rec.ID, func(r *Record) error {
		r.Status = StatusProcessing
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutate error to propagate, got %v", err)
	}

	got, _ := s.Get(ctx, rec.ID)
	if got.Status != StatusPending {
		t.Fatalf("aborted mutation leaked: %q", got.Status)
	}
}

func TestMemory_TerminalRecordsAreImmutable(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	rec := NewRecord(KindTranscription, "ref")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := s.Update(ctx, rec.ID, func(r *Record) error {
		r.Complete("done")
		return nil
	}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	called := false
	_, err := s.Update(ctx, rec.ID, func(r *Record) error {
		called = true
		r.Fail("late failure")
		return nil
	})
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if called {
		t.Fatalf("mutate must not run against a terminal record")
	}

	got, _ := s.Get(ctx, rec.ID)
	if got.Status != StatusCompleted || got.Output != "done" || got.Error != "" {
		t.Fatalf("terminal record was altered: %+v", got)
	}
}

func TestMemory_SnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	rec := NewRecord(KindTranscription, "ref")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	snap, _ := s.Get(ctx, rec.ID)
	snap.Status = StatusFailed
	snap.Error = "mutated snapshot"

	got, _ := s.Get(ctx, rec.ID)
	if got.Status != StatusPending {
		t.Fatalf("snapshot mutation leaked into store: %q", got.Status)
	}
}

func TestMemory_ConcurrentProgressUpdatesStayMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	rec := NewRecord(KindTranscription, "ref")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := s.Update(ctx, rec.ID, func(r *Record) error {
		return r.MarkProcessing(0.01)
	}); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Update(ctx, rec.ID, func(r *Record) error {
				r.SetProgress(float64(i) / 100)
				return nil
			})
		}(i)
	}
	wg.Wait()

	got, _ := s.Get(ctx, rec.ID)
	if got.Progress != 0.5 {
		t.Fatalf("expected max progress 0.5, got %v", got.Progress)
	}
}
