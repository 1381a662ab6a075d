// Package metadata extracts structured facts (dates, links, references) from
// generated summary text and renders them as a trailing markdown section.
//
// Extraction is regex-based and best-effort: the synthesis model is asked to
// surface this material in prose, and this package lifts what it can find
// into a machine-usable shape.
package metadata

import (
	"regexp"
	"strings"
)

// Metadata holds the facts extracted from a summary. Slices preserve first
// appearance order with duplicates removed.
type Metadata struct {
	Dates      []string `json:"dates,omitempty"`
	Links      []string `json:"links,omitempty"`
	Emails     []string `json:"emails,omitempty"`
	References []string `json:"references,omitempty"`
}

// Empty reports whether nothing was extracted.
func (m Metadata) Empty() bool {
	return len(m.Dates) == 0 && len(m.Links) == 0 && len(m.Emails) == 0 && len(m.References) == 0
}

var (
	datePatterns = []*regexp.Regexp{
		// DD/MM/YYYY, DD-MM-YYYY
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
		// YYYY/MM/DD, YYYY-MM-DD
		regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`),
		// Month DD, YYYY
		regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:st|nd|rd|th)?,\s+\d{4}\b`),
		// DD Month YYYY
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:January|February|March|April|May|June|July|August|September|October|November|December),?\s+\d{4}\b`),
	}

	linkPattern  = regexp.MustCompile(`https?://\S+|\bwww\.\S+`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	referencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:reference|cited in|source):\s+([^,.;\n]+)`),
		regexp.MustCompile(`(?i)(?:book|article|paper|publication|journal):\s+([^,.;\n]+)`),
	}
)

// Extract scans text for dates, links, email addresses and reference
// mentions.
func Extract(text string) Metadata {
	var m Metadata

	for _, p := range datePatterns {
		m.Dates = append(m.Dates, p.FindAllString(text, -1)...)
	}
	m.Dates = dedupe(m.Dates)

	m.Links = dedupe(linkPattern.FindAllString(text, -1))
	m.Emails = dedupe(emailPattern.FindAllString(text, -1))

	for _, p := range referencePatterns {
		for _, match := range p.FindAllStringSubmatch(text, -1) {
			m.References = append(m.References, strings.TrimSpace(match[1]))
		}
	}
	m.References = dedupe(m.References)

	return m
}

// Append renders the metadata as a markdown "Additional Information" section
// appended to summary. A summary with empty metadata is returned unchanged.
func Append(summary string, m Metadata) string {
	if m.Empty() {
		return summary
	}

	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\n## Additional Information\n")

	writeSection(&b, "Dates Mentioned", m.Dates)
	writeSection(&b, "Links", m.Links)
	writeSection(&b, "Email Addresses", m.Emails)
	writeSection(&b, "References", m.References)

	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n### " + title + "\n")
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
