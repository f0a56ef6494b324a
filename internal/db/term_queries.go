package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// SaveTermBuckets upserts full bucket rows. The enrichment worker is
// the single writer, so overwriting counts and sets is safe.
func (p *Pool) SaveTermBuckets(ctx context.Context, rows []TermBucket) error {
	if len(rows) == 0 {
		return nil
	}
	err := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "term"}, {Name: "bucket_start"}},
			DoUpdates: clause.AssignmentColumns([]string{"added_count", "removed_count", "page_ids", "editors", "updated_at"}),
		}).
		CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("save term buckets: %w", err)
	}
	return nil
}

// TermBucketsInRange returns rows with bucket_start in [from, to).
func (p *Pool) TermBucketsInRange(ctx context.Context, from, to time.Time) ([]TermBucket, error) {
	var rows []TermBucket
	err := p.gdb.WithContext(ctx).
		Where("bucket_start >= ? AND bucket_start < ?", from.UTC(), to.UTC()).
		Order("bucket_start").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list term buckets: %w", err)
	}
	return rows, nil
}
