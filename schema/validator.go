// Package payloadschema validates raw change-feed payloads before any
// typed decode is trusted. Feed JSON never crosses the ingestion
// boundary as an untyped map.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed recentchange.schema.json
var recentChangeSchemaJSON string

// RecentChange is the typed shape of one change-feed event payload.
type RecentChange struct {
	Wiki       string `json:"wiki"`
	ServerName string `json:"server_name"`
	Type       string `json:"type"`
	Namespace  int    `json:"namespace"`
	Title      string `json:"title"`
	TitleURL   string `json:"title_url"`
	Comment    string `json:"comment"`
	Timestamp  int64  `json:"timestamp"`
	User       string `json:"user"`
	Bot        bool   `json:"bot"`
	Minor      bool   `json:"minor"`
	PageID     int64  `json:"page_id"`
	Revision   *struct {
		Old int64 `json:"old"`
		New int64 `json:"new"`
	} `json:"revision,omitempty"`
	Meta struct {
		ID     string `json:"id"`
		DT     string `json:"dt"`
		Domain string `json:"domain"`
		Stream string `json:"stream"`
		URI    string `json:"uri"`
	} `json:"meta"`
}

// EventTime parses the meta.dt ISO-8601 timestamp.
func (r *RecentChange) EventTime() (time.Time, error) {
	return time.Parse(time.RFC3339, r.Meta.DT)
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateRecentChange checks a raw feed payload against the embedded
// schema and decodes it into the typed record.
func ValidateRecentChange(payload json.RawMessage) (*RecentChange, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var event RecentChange
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if _, err := event.EventTime(); err != nil {
		return nil, fmt.Errorf("parse meta.dt: %w", err)
	}
	return &event, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("recentchange.schema.json", strings.NewReader(recentChangeSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("recentchange.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})
	return compiledSchema, compiledSchemaErr
}

func decodeStrictJSON(payload json.RawMessage) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := ensureSingleDocument(decoder); err != nil {
		return nil, err
	}
	return value, nil
}

func ensureSingleDocument(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("payload contains trailing data")
	}
	return nil
}
