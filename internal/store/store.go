package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"care-pulse-backend/internal/escalation"
	"care-pulse-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	RecentCarePulseLogs(ctx context.Context, userID int64, limit int) ([]model.LogEntry, error)
	EscalateOverdue(ctx context.Context, now time.Time, window time.Duration) ([]escalation.Event, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for handlers that query directly.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// RecentCarePulseLogs returns the user's most recent care_pulse entries joined
// with their detail projection, ordered by effective time descending.
func (s *gormStore) RecentCarePulseLogs(ctx context.Context, userID int64, limit int) ([]model.LogEntry, error) {
	var entries []model.LogEntry
	err := s.db.WithContext(ctx).
		Preload("Detail").
		Where("user_id = ? AND log_type = ?", userID, model.LogTypeCarePulse).
		Order("COALESCE(occurred_at, created_at) DESC").
		Limit(ClampLimit(limit)).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent care pulse logs for user %d: %w", userID, err)
	}
	return entries, nil
}

// escalatePostgresSQL is the detector predicate expressed directly against the
// store, so detection and application are one atomic statement. The effective
// time (occurred_at falling back to created_at) appears identically on both
// sides of the closing-checkin comparison.
const escalatePostgresSQL = `
UPDATE log_entries AS le
SET metadata = COALESCE(le.metadata, '{}'::jsonb) || jsonb_build_object(
        'requires_immediate_action', true,
        'escalated_at', ?::text)
FROM care_pulse_details AS d
WHERE d.log_entry_id = le.id
  AND le.log_type = 'care_pulse'
  AND d.status = 'EMERGENCY'
  AND COALESCE((le.metadata ->> 'requires_immediate_action')::boolean, false) = false
  AND COALESCE(le.occurred_at, le.created_at) <= ?
  AND NOT EXISTS (
        SELECT 1 FROM log_entries AS r
        WHERE r.user_id = le.user_id
          AND r.log_type = 'care_pulse'
          AND r.id <> le.id
          AND COALESCE(r.occurred_at, r.created_at) > COALESCE(le.occurred_at, le.created_at)
          AND COALESCE(r.occurred_at, r.created_at) <= COALESCE(le.occurred_at, le.created_at) + ?::interval
  )
RETURNING le.id AS log_entry_id, le.user_id, COALESCE(le.occurred_at, le.created_at) AS effective_at`

// EscalateOverdue flips every currently escalatable care pulse to escalated
// state and returns the rows actually transitioned. Re-running it is a no-op
// for rows already carrying the flag.
func (s *gormStore) EscalateOverdue(ctx context.Context, now time.Time, window time.Duration) ([]escalation.Event, error) {
	var escalated []escalation.Event

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if tx.Dialector.Name() == "postgres" {
			escalated, err = escalateBulk(tx, now, window)
		} else {
			escalated, err = escalateChecked(tx, now, window)
		}
		if err != nil {
			return err
		}
		if len(escalated) == 0 {
			return nil
		}

		ids := make([]int64, len(escalated))
		for i, ev := range escalated {
			ids[i] = ev.LogEntryID
		}
		if err := tx.Model(&model.CarePulseDetail{}).
			Where("log_entry_id IN ?", ids).
			Updates(map[string]any{
				"escalation_sent": true,
				"silence_count":   gorm.Expr("silence_count + 1"),
			}).Error; err != nil {
			return fmt.Errorf("failed to mark escalation sent: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return escalated, nil
}

// escalateBulk applies the predicate and the metadata merge in a single
// conditional statement; the store's atomicity guarantees no half-escalated rows.
func escalateBulk(tx *gorm.DB, now time.Time, window time.Duration) ([]escalation.Event, error) {
	var escalated []escalation.Event
	err := tx.Raw(escalatePostgresSQL,
		now.UTC().Format(time.RFC3339Nano),
		now.Add(-window),
		fmt.Sprintf("%d seconds", int(window.Seconds())),
	).Scan(&escalated).Error
	if err != nil {
		return nil, fmt.Errorf("bulk escalation update failed: %w", err)
	}
	return escalated, nil
}

// escalateChecked is the path for dialects without a conditional jsonb bulk
// update (sqlite): it re-evaluates the shared detector predicate inside the
// transaction immediately before writing each row.
func escalateChecked(tx *gorm.DB, now time.Time, window time.Duration) ([]escalation.Event, error) {
	var entries []model.LogEntry
	if err := tx.Preload("Detail").
		Where("log_type = ?", model.LogTypeCarePulse).
		Order("user_id, created_at").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch care pulse entries: %w", err)
	}

	byUser := make(map[int64][]model.LogEntry)
	for _, e := range entries {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}

	var escalated []escalation.Event
	for _, history := range byUser {
		for _, e := range escalation.Detect(history, now, window) {
			meta := e.Metadata
			if meta == nil {
				meta = datatypes.JSONMap{}
			}
			meta[model.MetaRequiresImmediateAction] = true
			meta[model.MetaEscalatedAt] = now.UTC().Format(time.RFC3339Nano)

			if err := tx.Model(&model.LogEntry{}).
				Where("id = ?", e.ID).
				Update("metadata", meta).Error; err != nil {
				return nil, fmt.Errorf("failed to escalate log entry %d: %w", e.ID, err)
			}
			escalated = append(escalated, escalation.Event{
				LogEntryID:  e.ID,
				UserID:      e.UserID,
				EffectiveAt: e.EffectiveTime(),
			})
		}
	}
	return escalated, nil
}
