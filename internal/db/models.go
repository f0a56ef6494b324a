package db

import (
	"encoding/json"
	"time"
)

// ChangeEvent maps scout.change_events. One row per accepted stream
// event; event_id is the upstream identity so replays are no-ops.
type ChangeEvent struct {
	ChangeEventID   int64      `gorm:"column:change_event_id;primaryKey;autoIncrement"`
	ChangeEventUUID string     `gorm:"column:change_event_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	EventID         string     `gorm:"column:event_id;type:text;not null;unique"`
	Wiki            string     `gorm:"column:wiki;type:text;not null"`
	Namespace       int        `gorm:"column:namespace;type:integer;not null"`
	Title           string     `gorm:"column:title;type:text;not null"`
	TitleURL        *string    `gorm:"column:title_url;type:text"`
	Comment         string     `gorm:"column:comment;type:text;not null;default:''"`
	EditorName      string     `gorm:"column:editor_name;type:text;not null"`
	Bot             bool       `gorm:"column:bot;type:boolean;not null;default:false"`
	Minor           bool       `gorm:"column:minor;type:boolean;not null;default:false"`
	PageID          int64      `gorm:"column:page_id;type:bigint;not null;index"`
	RevOld          *int64     `gorm:"column:rev_old;type:bigint"`
	RevNew          *int64     `gorm:"column:rev_new;type:bigint"`
	EventTime       time.Time  `gorm:"column:event_time;type:timestamptz;not null;index"`
	ProcessedAt     *time.Time `gorm:"column:processed_at;type:timestamptz;index"`
	// RawPayload is the upstream event exactly as received, kept for
	// replay.
	RawPayload json.RawMessage `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ChangeEvent) TableName() string { return "scout.change_events" }

// DiffRecord maps scout.diff_records. At most one row per change event.
type DiffRecord struct {
	DiffRecordID  int64           `gorm:"column:diff_record_id;primaryKey;autoIncrement"`
	ChangeEventID int64           `gorm:"column:change_event_id;type:bigint;not null;unique"`
	FromRev       int64           `gorm:"column:from_rev;type:bigint;not null"`
	ToRev         int64           `gorm:"column:to_rev;type:bigint;not null"`
	Fragments     json.RawMessage `gorm:"column:fragments;type:jsonb;not null"`
	FetchedAt     time.Time       `gorm:"column:fetched_at;type:timestamptz;not null;default:now()"`
}

func (DiffRecord) TableName() string { return "scout.diff_records" }

// PageMetadata maps scout.page_metadata. One live row per page.
type PageMetadata struct {
	PageID      int64           `gorm:"column:page_id;primaryKey"`
	CanonicalID string          `gorm:"column:canonical_id;type:text;not null;default:''"`
	Categories  json.RawMessage `gorm:"column:categories;type:jsonb;not null"`
	FetchedAt   time.Time       `gorm:"column:fetched_at;type:timestamptz;not null"`
}

func (PageMetadata) TableName() string { return "scout.page_metadata" }

// TermBucket maps scout.term_buckets. Counts and distinct sets for one
// term in one fixed-width time bucket.
type TermBucket struct {
	TermBucketID int64           `gorm:"column:term_bucket_id;primaryKey;autoIncrement"`
	Term         string          `gorm:"column:term;type:text;not null;uniqueIndex:idx_term_bucket"`
	BucketStart  time.Time       `gorm:"column:bucket_start;type:timestamptz;not null;uniqueIndex:idx_term_bucket;index"`
	AddedCount   int64           `gorm:"column:added_count;type:bigint;not null;default:0"`
	RemovedCount int64           `gorm:"column:removed_count;type:bigint;not null;default:0"`
	PageIDs      json.RawMessage `gorm:"column:page_ids;type:jsonb;not null"`
	Editors      json.RawMessage `gorm:"column:editors;type:jsonb;not null"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (TermBucket) TableName() string { return "scout.term_buckets" }

// SpikeEvent maps scout.spike_events. Evidence is stored verbatim and
// returned byte-for-byte on read.
type SpikeEvent struct {
	SpikeEventID   int64           `gorm:"column:spike_event_id;primaryKey;autoIncrement"`
	SpikeEventUUID string          `gorm:"column:spike_event_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Key            string          `gorm:"column:key;type:text;not null;uniqueIndex:idx_spike_key_window"`
	Kind           string          `gorm:"column:kind;type:text;not null"`
	WindowStart    time.Time       `gorm:"column:window_start;type:timestamptz;not null;uniqueIndex:idx_spike_key_window"`
	WindowEnd      time.Time       `gorm:"column:window_end;type:timestamptz;not null"`
	Score          float64         `gorm:"column:score;type:double precision;not null"`
	Direction      string          `gorm:"column:direction;type:text;not null;default:'up'"`
	Method         string          `gorm:"column:method;type:text;not null"`
	Evidence       json.RawMessage `gorm:"column:evidence;type:jsonb"`
	DetectedAt     time.Time       `gorm:"column:detected_at;type:timestamptz;not null;default:now()"`
}

func (SpikeEvent) TableName() string { return "scout.spike_events" }

// Report maps scout.reports. One row per digest entry that passed the
// dedupe gates; the gates compare against the latest row per key.
type Report struct {
	ReportID    int64           `gorm:"column:report_id;primaryKey;autoIncrement"`
	ReportUUID  string          `gorm:"column:report_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Key         string          `gorm:"column:key;type:text;not null;index"`
	WindowHours int             `gorm:"column:window_hours;type:integer;not null"`
	Score       float64         `gorm:"column:score;type:double precision;not null"`
	Direction   string          `gorm:"column:direction;type:text;not null;default:'up'"`
	PageCount   int             `gorm:"column:page_count;type:integer;not null"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb"`
	ReportedAt  time.Time       `gorm:"column:reported_at;type:timestamptz;not null;index"`
}

func (Report) TableName() string { return "scout.reports" }

// StreamCursor maps scout.stream_cursors. Holds the last stream
// position seen, persisted before filtering so restarts never re-read
// discarded events.
type StreamCursor struct {
	Name      string    `gorm:"column:name;type:text;primaryKey"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (StreamCursor) TableName() string { return "scout.stream_cursors" }

func autoMigrateModels() []any {
	return []any{
		&ChangeEvent{},
		&DiffRecord{},
		&PageMetadata{},
		&TermBucket{},
		&SpikeEvent{},
		&Report{},
		&StreamCursor{},
	}
}
