package digest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	boldRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	headingRe = regexp.MustCompile(`(?m)^#+\s*(.+)$`)
	sourceRe  = regexp.MustCompile(`(?m)(Source|URL):\s*(https?://\S+)`)
	bareURLRe = regexp.MustCompile(`(?m)^(https?://\S+)$`)
)

// FormatForPrompt renders ranked items as the plain-text block handed to the
// summarizer. Thread items are labelled so the model treats them as one
// narrative unit.
func FormatForPrompt(items []Item) string {
	var b strings.Builder
	for i, item := range items {
		label := ""
		if item.IsThread {
			label = fmt.Sprintf(" [thread, %d posts]", item.ThreadLength)
		}
		fmt.Fprintf(&b, "%d. @%s (%d engagement)%s:\n%s\nURL: %s\n\n",
			i+1, item.Author, Score(item.Engagement), label, item.Content, item.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatEmailHTML converts the summarizer's markdown-flavoured output into
// the HTML body of the digest email.
func FormatEmailHTML(title, summary string) string {
	body := summary
	body = headingRe.ReplaceAllString(body, "<h2>$1</h2>")
	body = boldRe.ReplaceAllString(body, "<strong>$1</strong>")
	body = sourceRe.ReplaceAllString(body, `$1: <a href="$2">$2</a>`)
	body = bareURLRe.ReplaceAllString(body, `<a href="$1">$1</a>`)

	var out strings.Builder
	out.WriteString("<html><body style=\"font-family: Arial, sans-serif; color: #1a1a1a; max-width: 680px; margin: 0 auto;\">\n")
	fmt.Fprintf(&out, "<h1>%s</h1>\n", title)
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if strings.HasPrefix(para, "<h2>") {
			out.WriteString(para + "\n")
			continue
		}
		fmt.Fprintf(&out, "<p>%s</p>\n", strings.ReplaceAll(para, "\n", "<br>\n"))
	}
	out.WriteString("</body></html>")
	return out.String()
}

// FormatMetricsEmail renders a metrics snapshot as a week-over-week table.
func FormatMetricsEmail(snap MetricsSnapshot) (subject, html, text string) {
	period := fmt.Sprintf("%s to %s", snap.StartDate.Format("Jan 2"), snap.EndDate.Format("Jan 2 2006"))
	subject = "Weekly metrics report, " + period

	names := make([]string, 0, len(snap.Metrics))
	for name := range snap.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var h, t strings.Builder
	h.WriteString("<html><body style=\"font-family: Arial, sans-serif; color: #1a1a1a;\">\n")
	fmt.Fprintf(&h, "<h1>%s</h1>\n", subject)
	h.WriteString("<table cellpadding=\"6\" border=\"1\" style=\"border-collapse: collapse;\">\n")
	h.WriteString("<tr><th>Metric</th><th>Current</th><th>Previous</th><th>Change</th></tr>\n")

	t.WriteString(subject + "\n\n")
	for _, name := range names {
		v := snap.Metrics[name]
		fmt.Fprintf(&h, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			name, v.FormattedCurrent, v.FormattedPrevious, v.FormattedDelta)
		fmt.Fprintf(&t, "%s: %s (prev %s, %s)\n", name, v.FormattedCurrent, v.FormattedPrevious, v.FormattedDelta)
	}
	h.WriteString("</table>\n</body></html>")

	return subject, h.String(), t.String()
}

// FormatEmailText produces the plain-text alternative of the digest email.
func FormatEmailText(title, summary string) string {
	body := boldRe.ReplaceAllString(summary, "$1")
	body = headingRe.ReplaceAllString(body, "$1")
	return title + "\n\n" + strings.TrimSpace(body) + "\n"
}
