package server

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
)

// RunSweep triggers an on-demand reconciliation pass for the calling
// tenant and reports how many calls were billed.
func (s *Server) RunSweep(c *gin.Context) {
	userID, ok := tenantID(c)
	if !ok {
		AbortWithError(c, ledgerdomain.ErrInvalidTenant)
		return
	}

	summary, err := s.sweeper.ProcessUnprocessedCalls(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ProcessCall bills a single call by id. Replays of an already billed
// call succeed without a second deduction.
func (s *Server) ProcessCall(c *gin.Context) {
	callID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.calls.GetByID(c.Request.Context(), callID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.processor.ProcessCallCredits(c.Request.Context(), record)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":           "processed",
			"credits_deducted": result.CreditsDeducted,
			"entry_id":         result.EntryID.String(),
		})
	case errors.Is(err, ledgerdomain.ErrAlreadyProcessed):
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
	default:
		AbortWithError(c, err)
	}
}
