package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetCommission(c *gin.Context) {
	resellerID, err := parseQueryID(c, "reseller_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoiceID, err := parseQueryID(c, "invoice_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	commission, err := s.commissionSvc.CommissionFor(c.Request.Context(), resellerID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": commission})
}

func (s *Server) GetCommissionReport(c *gin.Context) {
	resellerID, err := parseQueryID(c, "reseller_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	from, err := parseQueryTime(c, "from")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	to, err := parseQueryTime(c, "to")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.commissionSvc.WindowReport(c.Request.Context(), resellerID, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func parseQueryTime(c *gin.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, newValidationError(name, "invalid_time", "invalid "+name)
}
