package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	calldomain "github.com/voxbill/voxbill/internal/call/domain"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
)

type callTransitionRequest struct {
	CallID          snowflake.ID `json:"call_id"`
	OldStatus       string       `json:"old_status"`
	NewStatus       string       `json:"new_status"`
	DurationSeconds int64        `json:"duration_seconds"`
	OccurredAt      time.Time    `json:"occurred_at"`
}

// IngestCallTransition is the push-feed entry point for the calling
// subsystem. Publishing a completed transition triggers real-time billing
// through the tenant's watcher; anything the watcher misses, the sweeper
// reconciles.
func (s *Server) IngestCallTransition(c *gin.Context) {
	var req callTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.CallID == 0 || req.NewStatus == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	userID, ok := tenantID(c)
	if !ok {
		AbortWithError(c, ledgerdomain.ErrInvalidTenant)
		return
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	// Watcher first so the publish cannot race its subscription.
	s.watchers.Ensure(userID)
	s.liveCalls.Publish(calldomain.TransitionEvent{
		CallID:          req.CallID,
		UserID:          userID,
		OldStatus:       calldomain.CallStatus(req.OldStatus),
		NewStatus:       calldomain.CallStatus(req.NewStatus),
		DurationSeconds: req.DurationSeconds,
		OccurredAt:      occurredAt,
	})

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
