package payloadschema

import (
	"encoding/json"
	"testing"
)

const validEvent = `{
	"wiki": "enwiki",
	"server_name": "en.wikipedia.org",
	"type": "edit",
	"namespace": 0,
	"title": "Example Page",
	"timestamp": 1767225600,
	"user": "ExampleUser",
	"bot": false,
	"minor": false,
	"page_id": 12345,
	"revision": {"old": 100, "new": 101},
	"meta": {"id": "d1f9a1f0-0001-4a5b-9d5e-aaaaaaaaaaaa", "dt": "2026-01-01T00:00:00Z", "domain": "en.wikipedia.org"}
}`

func TestValidateRecentChangeAccepted(t *testing.T) {
	t.Parallel()

	event, err := ValidateRecentChange(json.RawMessage(validEvent))
	if err != nil {
		t.Fatalf("ValidateRecentChange: %v", err)
	}
	if event.Wiki != "enwiki" || event.Namespace != 0 || event.PageID != 12345 {
		t.Fatalf("unexpected decode: %+v", event)
	}
	if event.Revision == nil || event.Revision.Old != 100 || event.Revision.New != 101 {
		t.Fatalf("revision pair not decoded: %+v", event.Revision)
	}
	ts, err := event.EventTime()
	if err != nil {
		t.Fatalf("EventTime: %v", err)
	}
	if ts.Year() != 2026 {
		t.Fatalf("unexpected event time: %s", ts)
	}
}

func TestValidateRecentChangeRejectsMissingMeta(t *testing.T) {
	t.Parallel()

	if _, err := ValidateRecentChange(json.RawMessage(`{"wiki":"enwiki","namespace":0,"title":"X"}`)); err == nil {
		t.Fatalf("expected schema rejection for missing meta block")
	}
}

func TestValidateRecentChangeRejectsWrongTypes(t *testing.T) {
	t.Parallel()

	payload := `{"wiki":"enwiki","namespace":"zero","title":"X","meta":{"id":"a","dt":"2026-01-01T00:00:00Z"}}`
	if _, err := ValidateRecentChange(json.RawMessage(payload)); err == nil {
		t.Fatalf("expected schema rejection for string namespace")
	}
}

func TestValidateRecentChangeRejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	payload := `{"wiki":"enwiki","namespace":0,"title":"X","meta":{"id":"a","dt":"not-a-time"}}`
	if _, err := ValidateRecentChange(json.RawMessage(payload)); err == nil {
		t.Fatalf("expected rejection for unparseable meta.dt")
	}
}
