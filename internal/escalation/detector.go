package escalation

import (
	"time"

	"care-pulse-backend/internal/model"
)

// Event describes one log entry actually transitioned to escalated state.
type Event struct {
	LogEntryID  int64     `gorm:"column:log_entry_id"`
	UserID      int64     `gorm:"column:user_id"`
	EffectiveAt time.Time `gorm:"column:effective_at"`
}

// Escalatable is the silence-window predicate shared by detection and
// application: an EMERGENCY care pulse that has not been escalated yet, whose
// window has elapsed relative to now, and that no later check-in from the same
// user closed by arriving within the window. Entries with no usable timestamp
// are treated as non-escalatable.
func Escalatable(e model.LogEntry, history []model.LogEntry, now time.Time, window time.Duration) bool {
	if e.LogType != model.LogTypeCarePulse {
		return false
	}
	if e.Detail == nil || e.Detail.Status != model.StatusEmergency {
		return false
	}
	if e.Escalated() {
		return false
	}

	et := e.EffectiveTime()
	if et.IsZero() {
		return false
	}
	if now.Sub(et) < window {
		return false
	}

	// A subsequent check-in landing within (et, et+window] closes the
	// emergency regardless of its own status.
	for _, r := range history {
		if r.ID == e.ID || r.UserID != e.UserID || r.LogType != model.LogTypeCarePulse {
			continue
		}
		rt := r.EffectiveTime()
		if rt.IsZero() {
			continue
		}
		if rt.After(et) && !rt.After(et.Add(window)) {
			return false
		}
	}
	return true
}

// Detect returns the subset of a single user's check-in history that is
// currently escalatable. Every entry that independently satisfies the
// predicate is returned, so multiple unanswered emergencies escalate together.
func Detect(history []model.LogEntry, now time.Time, window time.Duration) []model.LogEntry {
	var out []model.LogEntry
	for _, e := range history {
		if Escalatable(e, history, now, window) {
			out = append(out, e)
		}
	}
	return out
}
