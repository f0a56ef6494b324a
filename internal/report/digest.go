package report

import (
	"fmt"
	"strings"
	"time"
)

// Digest is the rendered outcome of one reporting run. Entries contains
// only candidates that passed the dedupe gates; an empty digest is a
// normal result.
type Digest struct {
	GeneratedAt time.Time `json:"generated_at"`
	WindowHours int       `json:"window_hours"`
	Entries     []Entry   `json:"entries"`
}

// Markdown renders the digest for human consumption.
func (d *Digest) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Edit activity digest — %s\n", d.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&sb, "_Window: last %d hours_\n", d.WindowHours)

	if len(d.Entries) == 0 {
		sb.WriteString("\nNo new activity to report.\n")
		return sb.String()
	}

	for i, entry := range d.Entries {
		direction := entry.Direction
		if direction == "" {
			direction = "up"
		}
		fmt.Fprintf(&sb, "\n## %d. %s %s %s (score %.2f, %s)\n", i+1, entry.Kind, entry.Key, direction, entry.Score, entry.Method)
		fmt.Fprintf(&sb, "- window: %s to %s\n",
			entry.WindowStart.UTC().Format(time.RFC3339),
			entry.WindowEnd.UTC().Format(time.RFC3339))
		if len(entry.PageLinks) > 0 {
			links := make([]string, 0, len(entry.PageLinks))
			for _, link := range entry.PageLinks {
				if link.URL != "" {
					links = append(links, fmt.Sprintf("[%s](%s)", link.Title, link.URL))
				} else {
					links = append(links, link.Title)
				}
			}
			fmt.Fprintf(&sb, "- pages: %s\n", strings.Join(truncateList(links, 10), ", "))
		} else if len(entry.Pages) > 0 {
			fmt.Fprintf(&sb, "- pages: %s\n", strings.Join(truncateList(entry.Pages, 10), ", "))
		}
		if len(entry.SampleTerms) > 0 {
			fmt.Fprintf(&sb, "- terms: %s\n", strings.Join(truncateList(entry.SampleTerms, 10), ", "))
		}
		if len(entry.DiffLinks) > 0 {
			fmt.Fprintf(&sb, "- diffs: %s\n", strings.Join(truncateList(entry.DiffLinks, 5), ", "))
		}
		if entry.Intensity != nil {
			fmt.Fprintf(&sb, "- intensity: %.2f\n", entry.Intensity.Score)
		}
		if entry.Snippet != "" {
			fmt.Fprintf(&sb, "\n> %s\n", entry.Snippet)
		}
	}
	return sb.String()
}

func truncateList(items []string, limit int) []string {
	if len(items) <= limit {
		return items
	}
	truncated := append([]string(nil), items[:limit]...)
	return append(truncated, fmt.Sprintf("and %d more", len(items)-limit))
}
