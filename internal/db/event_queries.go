package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"horse.fit/scout/internal/globaltime"
)

// InsertChangeEvent writes the event unless its event_id was already
// seen, so stream replays and resumed connections are no-ops. Returns
// true when a new row was written.
func (p *Pool) InsertChangeEvent(ctx context.Context, event *ChangeEvent) (bool, error) {
	res := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, fmt.Errorf("insert change event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// PendingChangeEvents returns unprocessed events that carry both
// revision identifiers, ordered so that edits to the same page arrive
// in revision order.
func (p *Pool) PendingChangeEvents(ctx context.Context, limit int) ([]ChangeEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	var events []ChangeEvent
	err := p.gdb.WithContext(ctx).
		Where("processed_at IS NULL AND rev_old IS NOT NULL AND rev_new IS NOT NULL").
		Order("page_id, rev_new").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list pending change events: %w", err)
	}
	return events, nil
}

// MarkEventsProcessed stamps processed_at on the given rows.
func (p *Pool) MarkEventsProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := p.gdb.WithContext(ctx).
		Model(&ChangeEvent{}).
		Where("change_event_id IN ?", ids).
		Update("processed_at", globaltime.UTC()).Error
	if err != nil {
		return fmt.Errorf("mark events processed: %w", err)
	}
	return nil
}

// EventsInWindow returns accepted events with event_time in [from, to).
func (p *Pool) EventsInWindow(ctx context.Context, from, to time.Time) ([]ChangeEvent, error) {
	var events []ChangeEvent
	err := p.gdb.WithContext(ctx).
		Where("event_time >= ? AND event_time < ?", from.UTC(), to.UTC()).
		Order("event_time").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list events in window: %w", err)
	}
	return events, nil
}

// PageRef returns the most recent title and URL recorded for a page,
// or empty strings when the page has never been seen.
func (p *Pool) PageRef(ctx context.Context, pageID int64) (title, titleURL string, err error) {
	var event ChangeEvent
	queryErr := p.gdb.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("event_time DESC").
		First(&event).Error
	if IsNoRows(queryErr) {
		return "", "", nil
	}
	if queryErr != nil {
		return "", "", fmt.Errorf("resolve page %d: %w", pageID, queryErr)
	}
	if event.TitleURL != nil {
		titleURL = *event.TitleURL
	}
	return event.Title, titleURL, nil
}

// SaveStreamCursor upserts the last seen stream position under name.
func (p *Pool) SaveStreamCursor(ctx context.Context, name, value string) error {
	cursor := StreamCursor{Name: name, Value: value, UpdatedAt: globaltime.UTC()}
	err := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&cursor).Error
	if err != nil {
		return fmt.Errorf("save stream cursor %q: %w", name, err)
	}
	return nil
}

// LoadStreamCursor returns the stored position, or "" when none exists.
func (p *Pool) LoadStreamCursor(ctx context.Context, name string) (string, error) {
	var cursor StreamCursor
	err := p.gdb.WithContext(ctx).First(&cursor, "name = ?", name).Error
	if IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load stream cursor %q: %w", name, err)
	}
	return cursor.Value, nil
}
