package db

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm/clause"

	"horse.fit/scout/internal/metadata"
)

// GetMetadata returns the cached page record, or nil when the page has
// never been resolved. Implements metadata.Store.
func (p *Pool) GetMetadata(ctx context.Context, pageID int64) (*metadata.Record, error) {
	var row PageMetadata
	err := p.gdb.WithContext(ctx).First(&row, "page_id = ?", pageID).Error
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load page metadata %d: %w", pageID, err)
	}

	categories := []string{}
	if len(row.Categories) > 0 {
		if err := json.Unmarshal(row.Categories, &categories); err != nil {
			return nil, fmt.Errorf("decode categories for page %d: %w", pageID, err)
		}
	}
	return &metadata.Record{
		PageID:      row.PageID,
		CanonicalID: row.CanonicalID,
		Categories:  categories,
		FetchedAt:   row.FetchedAt,
	}, nil
}

// UpsertMetadata writes the record, replacing the previous row for the
// page. Implements metadata.Store.
func (p *Pool) UpsertMetadata(ctx context.Context, record metadata.Record) error {
	categories := record.Categories
	if categories == nil {
		categories = []string{}
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("encode categories for page %d: %w", record.PageID, err)
	}

	row := PageMetadata{
		PageID:      record.PageID,
		CanonicalID: record.CanonicalID,
		Categories:  encoded,
		FetchedAt:   record.FetchedAt,
	}
	err = p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "page_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"canonical_id", "categories", "fetched_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert page metadata %d: %w", record.PageID, err)
	}
	return nil
}
