package db

import (
	"context"
	"fmt"
	"time"
)

// LatestReport returns the most recent report for (key, windowHours),
// or nil when the key has never been reported.
func (p *Pool) LatestReport(ctx context.Context, key string, windowHours int) (*Report, error) {
	var report Report
	err := p.gdb.WithContext(ctx).
		Where("key = ? AND window_hours = ?", key, windowHours).
		Order("reported_at DESC").
		First(&report).Error
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest report for %q: %w", key, err)
	}
	return &report, nil
}

// InsertReport records one accepted digest entry.
func (p *Pool) InsertReport(ctx context.Context, report *Report) error {
	if err := p.gdb.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("insert report for %q: %w", report.Key, err)
	}
	return nil
}

// ReportsSince returns reports issued at or after since, newest first.
func (p *Pool) ReportsSince(ctx context.Context, since time.Time, limit int) ([]Report, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	var reports []Report
	err := p.gdb.WithContext(ctx).
		Where("reported_at >= ?", since.UTC()).
		Order("reported_at DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}
