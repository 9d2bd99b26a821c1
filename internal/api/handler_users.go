package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"care-pulse-backend/internal/model"
)

// UserSummaryResponse represents the API response for a single monitored user.
type UserSummaryResponse struct {
	ID              int64  `json:"id"`
	DisplayName     string `json:"displayName"`
	TotalPulses     int64  `json:"totalPulses"`
	OpenEmergencies int64  `json:"openEmergencies"`
}

// GetMonitoredUsers handles the GET /users request. openEmergencies counts
// EMERGENCY check-ins not yet escalated.
func GetMonitoredUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []model.User
		if err := db.Find(&users).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to retrieve users"})
			return
		}

		type AggRow struct {
			UserID          int64
			TotalPulses     int64
			OpenEmergencies int64
		}
		var aggs []AggRow
		if err := db.
			Model(&model.LogEntry{}).
			Select("log_entries.user_id as user_id, COUNT(*) as total_pulses, "+
				"SUM(CASE WHEN care_pulse_details.status = 'EMERGENCY' AND care_pulse_details.escalation_sent = false THEN 1 ELSE 0 END) as open_emergencies").
			Joins("JOIN care_pulse_details ON care_pulse_details.log_entry_id = log_entries.id").
			Where("log_entries.log_type = ?", model.LogTypeCarePulse).
			Group("log_entries.user_id").
			Scan(&aggs).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to aggregate check-ins"})
			return
		}

		aggMap := make(map[int64]AggRow, len(aggs))
		for _, a := range aggs {
			aggMap[a.UserID] = a
		}

		responses := make([]UserSummaryResponse, 0, len(users))
		for _, u := range users {
			a := aggMap[u.ID] // zero value when the user has no check-ins
			responses = append(responses, UserSummaryResponse{
				ID: u.ID, DisplayName: u.DisplayName,
				TotalPulses: a.TotalPulses, OpenEmergencies: a.OpenEmergencies,
			})
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "users": responses})
	}
}
