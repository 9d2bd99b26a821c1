package model

// PulseStatus enumerates the recognized statuses of a care pulse check-in.
type PulseStatus string

const (
	StatusNormal    PulseStatus = "NORMAL"
	StatusEmergency PulseStatus = "EMERGENCY"
)

// CarePulseDetail is the 1:1 projection row for a care_pulse LogEntry. It is
// created atomically with its LogEntry by the ingestion path and never
// independently deleted.
type CarePulseDetail struct {
	LogEntryID     int64       `gorm:"primaryKey" json:"-"`
	Status         PulseStatus `gorm:"size:32;not null" json:"status"`
	SubStatus      string      `gorm:"size:64" json:"sub_status"`
	TriggerSource  string      `gorm:"size:128" json:"trigger_source"`
	EscalationSent bool        `gorm:"not null;default:false" json:"escalation_sent"`
	SilenceCount   int         `gorm:"not null;default:0" json:"silence_count"`
}
