package digest

import (
	"strings"
	"testing"
	"time"
)

func TestFormatForPromptRanksAndLabelsThreads(t *testing.T) {
	items := []Item{
		{Author: "alice", Content: "rates up", URL: "https://twitter.com/alice/status/1", Engagement: Engagement{Likes: 5}},
		{Author: "bob", Content: "@bob: part one\n\n@bob: part two", URL: "https://twitter.com/bob/status/2", IsThread: true, ThreadLength: 2, Engagement: Engagement{Replies: 2}},
	}

	out := FormatForPrompt(items)
	if !strings.Contains(out, "1. @alice (5 engagement):") {
		t.Fatalf("missing first entry header:\n%s", out)
	}
	if !strings.Contains(out, "2. @bob (6 engagement) [thread, 2 posts]:") {
		t.Fatalf("missing thread label:\n%s", out)
	}
	if !strings.Contains(out, "URL: https://twitter.com/alice/status/1") {
		t.Fatalf("missing source url:\n%s", out)
	}
}

func TestFormatEmailHTMLTransformsMarkdown(t *testing.T) {
	summary := "## Key Themes\n\n**Rates** dominated the window.\nSource: https://twitter.com/alice/status/1\n\nWhat to watch next."
	html := FormatEmailHTML("Daily macro digest", summary)

	for _, want := range []string{
		"<h1>Daily macro digest</h1>",
		"<h2>Key Themes</h2>",
		"<strong>Rates</strong>",
		`<a href="https://twitter.com/alice/status/1">`,
		"<p>What to watch next.</p>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q:\n%s", want, html)
		}
	}
	if strings.Contains(html, "**") || strings.Contains(html, "## ") {
		t.Fatalf("markdown markers leaked into html:\n%s", html)
	}
}

func TestFormatEmailTextStripsMarkdown(t *testing.T) {
	text := FormatEmailText("Daily macro digest", "## Themes\n\n**Rates** up.")
	if strings.Contains(text, "**") || strings.Contains(text, "##") {
		t.Fatalf("markdown markers leaked into text alternative:\n%s", text)
	}
	if !strings.HasPrefix(text, "Daily macro digest\n\n") {
		t.Fatalf("text should lead with the title:\n%s", text)
	}
}

func TestFormatMetricsEmailRendersSortedTable(t *testing.T) {
	snap := MetricsSnapshot{
		StartDate: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		Metrics: map[string]MetricValue{
			"revenue": {FormattedCurrent: "$300K", FormattedPrevious: "$280K", FormattedDelta: "+7.1%"},
			"fees":    {FormattedCurrent: "$1.2M", FormattedPrevious: "$1.0M", FormattedDelta: "+20.0%"},
		},
	}

	subject, html, text := FormatMetricsEmail(snap)
	if subject != "Weekly metrics report, Aug 20 to Aug 27 2026" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.Contains(html, "<td>fees</td><td>$1.2M</td><td>$1.0M</td><td>+20.0%</td>") {
		t.Fatalf("html table row missing:\n%s", html)
	}
	if strings.Index(html, "fees") > strings.Index(html, "revenue") {
		t.Fatalf("metrics should be rendered in sorted order:\n%s", html)
	}
	if !strings.Contains(text, "fees: $1.2M (prev $1.0M, +20.0%)") {
		t.Fatalf("text alternative missing row:\n%s", text)
	}
}
