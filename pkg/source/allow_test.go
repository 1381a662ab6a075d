package source

import "testing"

func TestNewAllowlist_RequiresIncludes(t *testing.T) {
	if _, err := NewAllowlist(nil, nil); err != ErrNoIncludes {
		t.Fatalf("expected ErrNoIncludes, got %v", err)
	}
}

func TestNewAllowlist_RejectsInvalidPattern(t *testing.T) {
	if _, err := NewAllowlist([]string{"recordings/[,mp3"}, nil); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}

func TestAllowlist_Match(t *testing.T) {
	a, err := NewAllowlist(
		[]string{"recordings/**/*.mp3", "uploads/*"},
		[]string{"recordings/internal/**"},
	)
	if err != nil {
		t.Fatalf("NewAllowlist() error: %v", err)
	}

	tests := []struct {
		ref  string
		want bool
	}{
		{"recordings/2026/meeting.mp3", true},
		{"recordings/2026/q3/call.mp3", true},
		{"recordings/2026/meeting.wav", false},
		{"recordings/internal/secret.mp3", false},
		{"uploads/abc123.m4a", true},
		{"uploads/nested/deep.m4a", false},
		{"other/file.mp3", false},
		{"/uploads/abc123.m4a", true}, // leading slash is normalized away
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			if got := a.Allow(tt.ref); got != tt.want {
				t.Fatalf("Allow(%q) = %v, want %v", tt.ref, got, tt.want)
			}
		})
	}
}

func TestAllowAll(t *testing.T) {
	a := AllowAll()
	for _, ref := range []string{"anything", "deep/nested/path.mp3", "bucket/key"} {
		if !a.Allow(ref) {
			t.Fatalf("AllowAll rejected %q", ref)
		}
	}
}
