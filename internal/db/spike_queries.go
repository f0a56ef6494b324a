package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// InsertSpikeEvents writes detections, skipping any (key, window_start)
// pair already recorded. Returns the number of new rows.
func (p *Pool) InsertSpikeEvents(ctx context.Context, events []SpikeEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	res := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}, {Name: "window_start"}},
			DoNothing: true,
		}).
		CreateInBatches(events, 200)
	if res.Error != nil {
		return 0, fmt.Errorf("insert spike events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SpikeEventsSince returns detections at or after since, strongest
// first.
func (p *Pool) SpikeEventsSince(ctx context.Context, since time.Time, limit int) ([]SpikeEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	var events []SpikeEvent
	err := p.gdb.WithContext(ctx).
		Where("window_end >= ?", since.UTC()).
		Order("score DESC, window_end DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list spike events: %w", err)
	}
	return events, nil
}
