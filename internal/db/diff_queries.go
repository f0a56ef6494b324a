package db

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// InsertDiffRecord stores the parsed comparison for one change event.
// A fixed revision pair always compares the same, so a re-fetch is a
// no-op; the returned flag reports whether this call wrote the row and
// doubles as the idempotency marker for term counting.
func (p *Pool) InsertDiffRecord(ctx context.Context, record *DiffRecord) (bool, error) {
	res := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "change_event_id"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, fmt.Errorf("insert diff record for event %d: %w", record.ChangeEventID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DiffRecordsForEvents returns stored diffs keyed by change event id.
func (p *Pool) DiffRecordsForEvents(ctx context.Context, eventIDs []int64) (map[int64]DiffRecord, error) {
	if len(eventIDs) == 0 {
		return map[int64]DiffRecord{}, nil
	}
	var records []DiffRecord
	err := p.gdb.WithContext(ctx).
		Where("change_event_id IN ?", eventIDs).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list diff records: %w", err)
	}
	byEvent := make(map[int64]DiffRecord, len(records))
	for _, record := range records {
		byEvent[record.ChangeEventID] = record
	}
	return byEvent, nil
}
