package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	purchasedomain "github.com/voxbill/voxbill/internal/purchase/domain"
)

func (s *Server) RecordPurchase(c *gin.Context) {
	var req purchasedomain.RecordPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	// The body may omit user_id; the authenticated tenant wins either way.
	userID, ok := tenantID(c)
	if !ok {
		AbortWithError(c, ledgerdomain.ErrInvalidTenant)
		return
	}
	req.UserID = userID

	recorded, err := s.purchasesvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, recorded)
}
