package jobstore

import "testing"

func TestNewRecord(t *testing.T) {
	rec := NewRecord(KindTranscription, "s3://bucket/audio.m4a")

	if rec.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if rec.Status != StatusPending {
		t.Fatalf("new record status: got %q want %q", rec.Status, StatusPending)
	}
	if rec.Progress != 0 {
		t.Fatalf("new record progress: got %v want 0", rec.Progress)
	}
	if rec.Output != "" || rec.Error != "" {
		t.Fatalf("new record must have no output or error")
	}
	if rec.InputRef != "s3://bucket/audio.m4a" {
		t.Fatalf("input ref not carried: %q", rec.InputRef)
	}
}

func TestNewRecord_IDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rec := NewRecord(KindSummarization, "ref")
		if seen[rec.ID] {
			t.Fatalf("duplicate id generated: %s", rec.ID)
		}
		seen[rec.ID] = true
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Fatalf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMarkProcessing(t *testing.T) {
	rec := NewRecord(KindTranscription, "ref")

	if err := rec.MarkProcessing(0.02); err != nil {
		t.Fatalf("MarkProcessing() error: %v", err)
	}
	if rec.Status != StatusProcessing {
		t.Fatalf("status: got %q want %q", rec.Status, StatusProcessing)
	}
	if rec.Progress != 0.02 {
		t.Fatalf("progress floor not applied: %v", rec.Progress)
	}

	// A second acknowledge must lose the race.
	if err := rec.MarkProcessing(0.02); err != ErrNotPending {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestSetProgress_NeverDecreases(t *testing.T) {
	rec := NewRecord(KindTranscription, "ref")
	_ = rec.MarkProcessing(0.02)

	rec.SetProgress(0.5)
	rec.SetProgress(0.3)
	if rec.Progress != 0.5 {
		t.Fatalf("progress decreased: %v", rec.Progress)
	}

	rec.SetProgress(1.5)
	if rec.Progress != 1 {
		t.Fatalf("progress not clamped to 1: %v", rec.Progress)
	}
}

func TestComplete(t *testing.T) {
	rec := NewRecord(KindTranscription, "ref")
	_ = rec.MarkProcessing(0.02)

	rec.Complete("the transcript")

	if rec.Status != StatusCompleted {
		t.Fatalf("status: got %q", rec.Status)
	}
	if rec.Progress != 1 {
		t.Fatalf("completed job must have progress 1.0, got %v", rec.Progress)
	}
	if rec.Output != "the transcript" || rec.Error != "" {
		t.Fatalf("completed job must have output and no error")
	}
}

func TestFail_KeepsPartialProgress(t *testing.T) {
	rec := NewRecord(KindTranscription, "ref")
	_ = rec.MarkProcessing(0.02)
	rec.SetProgress(0.6)

	rec.Fail("provider outage")

	if rec.Status != StatusFailed {
		t.Fatalf("status: got %q", rec.Status)
	}
	if rec.Progress != 0.6 {
		t.Fatalf("failure must keep last progress, got %v", rec.Progress)
	}
	if rec.Error != "provider outage" || rec.Output != "" {
		t.Fatalf("failed job must have error and no output")
	}
}
