// Package report turns detections into deduplicated digest entries.
package report

import (
	"encoding/json"
	"sort"
	"time"

	"horse.fit/scout/internal/db"
	"horse.fit/scout/internal/spikes"
)

// Entry is one digest line and the payload persisted with its report.
// Pages holds stable page ids and drives the dedupe gates; PageLinks is
// the resolved display form.
type Entry struct {
	Key         string            `json:"key"`
	Kind        string            `json:"kind"`
	Score       float64           `json:"score"`
	Direction   string            `json:"direction"`
	Method      string            `json:"method"`
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
	Pages       []string          `json:"pages,omitempty"`
	PageLinks   []PageLink        `json:"page_links,omitempty"`
	SampleTerms []string          `json:"sample_terms,omitempty"`
	DiffLinks   []string          `json:"diff_links,omitempty"`
	Intensity   *spikes.Intensity `json:"intensity,omitempty"`
	Snippet     string            `json:"snippet,omitempty"`
}

// PageLink is a resolved page reference for rendering.
type PageLink struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// SelectTopEvents keeps the strongest detection per key and returns up
// to limit of them, strongest first. Ties break on key for stable
// output.
func SelectTopEvents(events []db.SpikeEvent, limit int) []db.SpikeEvent {
	if limit <= 0 {
		return nil
	}

	best := make(map[string]db.SpikeEvent, len(events))
	for _, event := range events {
		current, seen := best[event.Key]
		if !seen || event.Score > current.Score {
			best[event.Key] = event
		}
	}

	top := make([]db.SpikeEvent, 0, len(best))
	for _, event := range best {
		top = append(top, event)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Score != top[j].Score {
			return top[i].Score > top[j].Score
		}
		return top[i].Key < top[j].Key
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top
}

// entryFromEvent builds the digest entry for one detection, decoding
// the stored evidence. Undecodable evidence is treated as absent.
func entryFromEvent(event db.SpikeEvent) Entry {
	entry := Entry{
		Key:         event.Key,
		Kind:        event.Kind,
		Score:       event.Score,
		Direction:   event.Direction,
		Method:      event.Method,
		WindowStart: event.WindowStart,
		WindowEnd:   event.WindowEnd,
	}
	if len(event.Evidence) == 0 {
		return entry
	}
	var evidence spikes.Evidence
	if err := json.Unmarshal(event.Evidence, &evidence); err != nil {
		return entry
	}
	entry.Pages = evidence.Pages
	entry.SampleTerms = evidence.SampleTerms
	entry.DiffLinks = evidence.DiffLinks
	entry.Intensity = evidence.Intensity
	entry.Snippet = evidence.Snippet
	return entry
}
