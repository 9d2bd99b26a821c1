package model

import (
	"time"

	"gorm.io/datatypes"
)

// LogTypeCarePulse is the log_type discriminator for safety check-in entries.
const LogTypeCarePulse = "care_pulse"

// Metadata keys written by the escalation applier. CreatedAt is set once at
// insert; escalation only ever merges these two keys into Metadata.
const (
	MetaRequiresImmediateAction = "requires_immediate_action"
	MetaEscalatedAt             = "escalated_at"
)

// LogEntry is a row in the generic append-only log table. Rows are created by
// the ingestion path; this service only merges escalation keys into Metadata.
type LogEntry struct {
	ID         int64             `gorm:"primaryKey" json:"id"`
	UserID     int64             `gorm:"index;not null" json:"user_id"`
	LogType    string            `gorm:"size:32;not null;index" json:"log_type"`
	OccurredAt *time.Time        `gorm:"index" json:"occurred_at"`
	Source     string            `gorm:"size:128" json:"source"`
	Note       string            `json:"note"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`

	// Associations
	Detail *CarePulseDetail `gorm:"foreignKey:LogEntryID" json:"detail,omitempty"`
}

// EffectiveTime returns the authoritative event time for ordering and window
// arithmetic: occurred_at when present, otherwise created_at.
func (e *LogEntry) EffectiveTime() time.Time {
	if e.OccurredAt != nil && !e.OccurredAt.IsZero() {
		return *e.OccurredAt
	}
	return e.CreatedAt
}

// Escalated reports whether the entry already carries the escalation flag.
func (e *LogEntry) Escalated() bool {
	if e.Metadata == nil {
		return false
	}
	v, ok := e.Metadata[MetaRequiresImmediateAction].(bool)
	return ok && v
}
