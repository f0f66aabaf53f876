// Package audit keeps an append-only trail of workflow decisions in SQLite.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/binnyhq/part-namer/pkg/workflow"
)

// ErrEventNotFound is returned by Get for an unknown event ID.
var ErrEventNotFound = errors.New("audit event not found")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store provides append-only operations for event records.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at dsn and migrates it.
// Use ":memory:" for a throwaway store.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing connection and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append creates a new immutable event record.
func (s *Store) Append(ctx context.Context, rec *EventRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Record implements workflow.Recorder.
func (s *Store) Record(ctx context.Context, ev workflow.Event) error {
	return s.Append(ctx, &EventRecord{
		Kind:       string(ev.Kind),
		ProposalID: ev.ProposalID,
		Code:       ev.Code,
		Action:     string(ev.Action),
		Outcome:    ev.Outcome,
		Actor:      ev.Actor,
		Detail:     ev.Detail,
		CreatedAt:  ev.At,
	})
}

// Get returns one event by ID.
func (s *Store) Get(ctx context.Context, id string) (EventRecord, error) {
	var rec EventRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return EventRecord{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return EventRecord{}, fmt.Errorf("get audit event: %w", err)
	}
	return rec, nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Kind       string
	ProposalID string
}

// List returns events newest first, pageSize at a time. pageToken is the
// nextToken returned by the previous page; it carries the last event's
// timestamp and ID so events sharing a timestamp are neither skipped nor
// repeated.
func (s *Store) List(ctx context.Context, f Filter, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	base := s.db.WithContext(ctx).Model(&EventRecord{})
	if f.Kind != "" {
		base = base.Where("kind = ?", f.Kind)
	}
	if f.ProposalID != "" {
		base = base.Where("proposal_id = ?", f.ProposalID)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := base.Session(&gorm.Session{}).Order("created_at DESC, id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, id, err := parsePageToken(pageToken)
		if err != nil {
			return nil, "", 0, err
		}
		if id == "" {
			query = query.Where("created_at < ?", t)
		} else {
			query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", t, t, id)
		}
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = encodePageToken(records[pageSize-1])
		records = records[:pageSize]
	}
	return records, nextToken, int(total), nil
}

func encodePageToken(rec EventRecord) string {
	return rec.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + rec.ID
}

// parsePageToken accepts "<RFC3339 time>|<id>" or a bare timestamp.
func parsePageToken(tok string) (time.Time, string, error) {
	ts, id, _ := strings.Cut(tok, "|")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	return t.UTC(), id, nil
}

// DeleteOlderThan deletes events created before cutoff and returns how many
// were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Compile-time interface check.
var _ workflow.Recorder = (*Store)(nil)
