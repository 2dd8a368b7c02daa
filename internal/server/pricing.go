package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	pricingdomain "github.com/revora/revora/internal/pricing/domain"
)

func (s *Server) SetPricingRule(c *gin.Context) {
	var req pricingdomain.SetRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.pricingSvc.SetRule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) ClearPricingRule(c *gin.Context) {
	resellerID, err := parseQueryID(c, "reseller_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	serviceID, err := parseQueryID(c, "service_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.pricingSvc.ClearRule(c.Request.Context(), resellerID, serviceID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ResolvePrice(c *gin.Context) {
	resellerID, err := parseQueryID(c, "reseller_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	serviceID, err := parseQueryID(c, "service_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var planID *snowflake.ID
	if raw := strings.TrimSpace(c.Query("plan_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("plan_id", "invalid_id", "invalid plan id"))
			return
		}
		planID = &id
	}

	quote, err := s.pricingSvc.ResolveFor(c.Request.Context(), resellerID, serviceID, planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

func parseQueryID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Query(name)))
	if err != nil {
		return 0, newValidationError(name, "invalid_id", "invalid "+name)
	}
	return id, nil
}
