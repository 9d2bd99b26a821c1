package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"care-pulse-backend/internal/model"
	"care-pulse-backend/internal/parse"
	"care-pulse-backend/internal/store"
)

// carePulseDetailResponse is the projection of a CarePulseDetail row.
type carePulseDetailResponse struct {
	Status         model.PulseStatus `json:"status"`
	SubStatus      string            `json:"sub_status"`
	TriggerSource  string            `json:"trigger_source"`
	EscalationSent bool              `json:"escalation_sent"`
	SilenceCount   int               `json:"silence_count"`
}

// logEntryResponse is the flattened structure for the API response.
type logEntryResponse struct {
	ID         int64                   `json:"id"`
	LogType    string                  `json:"log_type"`
	OccurredAt *time.Time              `json:"occurred_at"`
	Source     string                  `json:"source"`
	Note       string                  `json:"note"`
	Metadata   datatypes.JSONMap       `json:"metadata"`
	CreatedAt  time.Time               `json:"created_at"`
	Detail     carePulseDetailResponse `json:"detail"`
}

// GetRecentCarePulseLogs handles GET /recent-care-pulse-logs. It only owns the
// care_pulse log type; generic log queries live in a different handler.
func (h *Handler) GetRecentCarePulseLogs(c *gin.Context) {
	userID, err := strconv.ParseInt(c.GetHeader(UserIDHeader), 10, 64)
	if err != nil || userID <= 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing or invalid user identity"})
		return
	}

	if c.Query("type") != model.LogTypeCarePulse {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"ok": false, "error": "unsupported log type"})
		return
	}

	limit := store.RecentLogsDefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := h.store.RecentCarePulseLogs(c.Request.Context(), userID, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to retrieve logs"})
		return
	}

	logs := make([]logEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := logEntryResponse{
			ID:         e.ID,
			LogType:    e.LogType,
			OccurredAt: e.OccurredAt,
			Source:     e.Source,
			Note:       e.Note,
			Metadata:   e.Metadata,
			CreatedAt:  e.CreatedAt,
		}
		if e.Detail != nil {
			resp.Detail = carePulseDetailResponse{
				Status:         e.Detail.Status,
				SubStatus:      e.Detail.SubStatus,
				TriggerSource:  e.Detail.TriggerSource,
				EscalationSent: e.Detail.EscalationSent,
				SilenceCount:   e.Detail.SilenceCount,
			}
		}
		if resp.Detail.TriggerSource == "" {
			if src, err := parse.ParseSource(e.Source); err == nil {
				resp.Detail.TriggerSource = src.Channel
			}
		}
		logs = append(logs, resp)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "logs": logs})
}
