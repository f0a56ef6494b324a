package report

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"horse.fit/scout/internal/db"
)

// Gate holds the re-report thresholds. A key with a prior report is
// reported again only when every gate passes.
type Gate struct {
	// MinBetween is the minimum elapsed time since the last report.
	MinBetween time.Duration
	// MinScoreDelta is the minimum absolute score movement.
	MinScoreDelta float64
	// MinNewPages is the minimum number of pages not present in the
	// last report.
	MinNewPages int
}

// ShouldReport decides whether candidate may be reported at now, given
// the latest prior report for the same key (nil when none exists). The
// returned reason names the first gate that failed.
func (g Gate) ShouldReport(prev *db.Report, candidate Entry, now time.Time) (bool, string) {
	if prev == nil {
		return true, "first report"
	}

	elapsed := now.Sub(prev.ReportedAt)
	if elapsed < g.MinBetween {
		return false, fmt.Sprintf("reported %s ago, minimum interval %s", elapsed.Round(time.Minute), g.MinBetween)
	}

	delta := math.Abs(candidate.Score - prev.Score)
	if delta < g.MinScoreDelta {
		return false, fmt.Sprintf("score moved %.2f, minimum delta %.2f", delta, g.MinScoreDelta)
	}

	newPages := countNewPages(prev, candidate.Pages)
	if newPages < g.MinNewPages {
		return false, fmt.Sprintf("%d new pages, minimum %d", newPages, g.MinNewPages)
	}
	return true, "all gates passed"
}

// countNewPages counts candidate pages absent from the prior report's
// payload. A payload that cannot be decoded counts every page as new.
func countNewPages(prev *db.Report, pages []string) int {
	previous := make(map[string]struct{})
	if len(prev.Payload) > 0 {
		var entry Entry
		if err := json.Unmarshal(prev.Payload, &entry); err == nil {
			for _, page := range entry.Pages {
				previous[page] = struct{}{}
			}
		}
	}
	count := 0
	for _, page := range pages {
		if _, seen := previous[page]; !seen {
			count++
		}
	}
	return count
}
