package spikes

// Evidence is the structured payload stored with a detection and
// surfaced in digests. It round-trips through jsonb unchanged.
type Evidence struct {
	Intensity   *Intensity `json:"intensity,omitempty"`
	Pages       []string   `json:"pages,omitempty"`
	EditorCount int        `json:"editor_count,omitempty"`
	SampleTerms []string   `json:"sample_terms,omitempty"`
	DiffLinks   []string   `json:"diff_links,omitempty"`
	Snippet     string     `json:"snippet,omitempty"`
}
