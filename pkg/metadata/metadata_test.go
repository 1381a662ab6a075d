package metadata

import (
	"strings"
	"testing"
)

func TestExtract_Dates(t *testing.T) {
	text := "The launch is planned for 12/03/2026, with a review on March 15, 2026 " +
		"and a retro scheduled 2026-04-01."

	m := Extract(text)

	want := []string{"12/03/2026", "2026-04-01", "March 15, 2026"}
	for _, w := range want {
		if !containsItem(m.Dates, w) {
			t.Fatalf("expected date %q in %v", w, m.Dates)
		}
	}
}

func TestExtract_LinksAndEmails(t *testing.T) {
	text := "See https://example.com/doc and www.example.org. Contact ops@example.com " +
		"or https://example.com/doc again."

	m := Extract(text)

	if len(m.Links) != 2 {
		t.Fatalf("expected 2 deduplicated links, got %v", m.Links)
	}
	if !containsItem(m.Emails, "ops@example.com") {
		t.Fatalf("email not extracted: %v", m.Emails)
	}
}

func TestExtract_References(t *testing.T) {
	text := "Source: Quarterly Planning Deck\nPaper: Attention Is All You Need. More text."

	m := Extract(text)

	if !containsItem(m.References, "Quarterly Planning Deck") {
		t.Fatalf("reference not extracted: %v", m.References)
	}
	if !containsItem(m.References, "Attention Is All You Need") {
		t.Fatalf("paper reference not extracted: %v", m.References)
	}
}

func TestExtract_NothingFound(t *testing.T) {
	m := Extract("A plain sentence with no extractable facts at all")
	if !m.Empty() {
		t.Fatalf("expected empty metadata, got %+v", m)
	}
}

func TestAppend(t *testing.T) {
	t.Run("empty metadata leaves summary unchanged", func(t *testing.T) {
		if got := Append("summary text", Metadata{}); got != "summary text" {
			t.Fatalf("summary was altered: %q", got)
		}
	})

	t.Run("renders populated sections only", func(t *testing.T) {
		got := Append("summary text", Metadata{
			Dates: []string{"12/03/2026"},
			Links: []string{"https://example.com"},
		})

		if !strings.HasPrefix(got, "summary text") {
			t.Fatalf("summary body lost: %q", got)
		}
		if !strings.Contains(got, "## Additional Information") {
			t.Fatalf("missing section header: %q", got)
		}
		if !strings.Contains(got, "### Dates Mentioned\n- 12/03/2026") {
			t.Fatalf("dates section malformed: %q", got)
		}
		if strings.Contains(got, "### References") {
			t.Fatalf("empty section rendered: %q", got)
		}
	})
}

func containsItem(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
