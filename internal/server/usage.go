package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	quotadomain "github.com/revora/revora/internal/quota/domain"
	usagedomain "github.com/revora/revora/internal/usage/domain"
)

// Consume is the hot path. The enforcer owns admission, pricing and the
// ledger append; the handler only shapes the wire contract.
func (s *Server) Consume(c *gin.Context) {
	var req quotadomain.ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if subID := strings.TrimSpace(req.SubscriptionID); subID != "" {
		c.Set("subscription_id", subID)
	}

	result, err := s.enforcer.TryConsume(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, quotadomain.ErrQuotaExceeded) && result != nil {
			s.recordQuotaRejection(result)
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error": errorPayload{
					Type:    "quota_exceeded",
					Message: "usage quota exhausted for the current period",
				},
				"usage_consumed": result.UsageConsumed,
				"usage_limit":    result.UsageLimit,
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	if s.cloudRecorder != nil && result.Event != nil && !result.Replayed {
		s.cloudRecorder.RecordUsageEvent(
			result.Event.ResellerID.String(),
			result.Event.ServiceID.String(),
		)
	}

	// A replayed key conflicts on the wire but still carries the original
	// event, so callers can settle it as a success.
	if result.Replayed {
		c.JSON(http.StatusConflict, gin.H{
			"error": errorPayload{
				Type:    "duplicate_event",
				Message: "idempotency key already committed for this subscription",
			},
			"data": result,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) recordQuotaRejection(result *quotadomain.ConsumeResult) {
	if s.cloudRecorder == nil {
		return
	}
	s.cloudRecorder.RecordQuotaRejection(result.ResellerID.String())
}

// EnsureReset applies a pending period reset for one subscription without
// recording usage. Billing dashboards call this before showing counters.
func (s *Server) EnsureReset(c *gin.Context) {
	var req struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.SubscriptionID))
	if err != nil {
		AbortWithError(c, newValidationError("subscription_id", "invalid_id", "invalid subscription id"))
		return
	}

	sub, applied, err := s.sweeper.EnsureSubscription(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"subscription":  sub,
			"reset_applied": applied,
		},
	})
}

func (s *Server) ListUsageEvents(c *gin.Context) {
	var req usagedomain.ListUsageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	events, pageInfo, err := s.ledger.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      events,
		"page_info": pageInfo,
	})
}
