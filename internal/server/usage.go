package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/voxbill/voxbill/internal/usage/domain"
)

func (s *Server) GetBalance(c *gin.Context) {
	balance, err := s.usagesvc.GetBalance(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (s *Server) ListUsage(c *gin.Context) {
	var req usagedomain.ListUsageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.usagesvc.ListUsage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) SummarizeUsage(c *gin.Context) {
	from, err := parseDateParam(c, "from")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	to, err := parseDateParam(c, "to")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.usagesvc.SummarizeUsage(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) ListPurchases(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	purchases, err := s.usagesvc.ListPurchases(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}

func parseDateParam(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, ErrInvalidRequest
	}
	return t, nil
}
