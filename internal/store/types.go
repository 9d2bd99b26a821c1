package store

// RecentLogsDefaultLimit is used when the caller does not specify a limit;
// RecentLogsMaxLimit is the clamp ceiling for the read projection.
const (
	RecentLogsDefaultLimit = 50
	RecentLogsMinLimit     = 1
	RecentLogsMaxLimit     = 200
)

// ClampLimit bounds a requested result size to [RecentLogsMinLimit, RecentLogsMaxLimit].
func ClampLimit(limit int) int {
	if limit < RecentLogsMinLimit {
		return RecentLogsMinLimit
	}
	if limit > RecentLogsMaxLimit {
		return RecentLogsMaxLimit
	}
	return limit
}
