package feed

import (
	payloadschema "horse.fit/scout/schema"
)

// Filter is the acceptance predicate applied to validated events.
type Filter struct {
	// Wiki restricts events to one project, e.g. "enwiki".
	Wiki string
	// Namespaces is the allow-list; empty means every namespace.
	Namespaces map[int]struct{}
}

// Keep reports whether the event should enter the pipeline. Bot and
// minor edits are dropped, as is anything outside the configured wiki
// and namespace allow-list.
func (f Filter) Keep(event *payloadschema.RecentChange) bool {
	if event == nil {
		return false
	}
	if f.Wiki != "" && event.Wiki != f.Wiki {
		return false
	}
	if len(f.Namespaces) > 0 {
		if _, ok := f.Namespaces[event.Namespace]; !ok {
			return false
		}
	}
	if event.Bot || event.Minor {
		return false
	}
	return true
}
