package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/voxbill/voxbill/internal/ledger/domain"
	"github.com/voxbill/voxbill/internal/tenantctx"
)

const HeaderUserID = "X-User-ID"

// TenantRequired resolves the calling tenant from the X-User-ID header
// and injects it into the request context. Every /v1 route runs behind
// this middleware so services can rely on the tenant being present.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ledgerdomain.ErrInvalidTenant)
			return
		}

		userID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ledgerdomain.ErrInvalidTenant)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func tenantID(c *gin.Context) (snowflake.ID, bool) {
	return tenantctx.TenantIDFromContext(c.Request.Context())
}
