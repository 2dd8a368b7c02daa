package server

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/revora/revora/internal/observability/logger"
	"github.com/revora/revora/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonEndpoint     = "endpoint-rate"
	rateLimitReasonSubscription = "subscription-rate"
	rateLimitReasonKeyInFlight  = "idempotency-key-in-flight"
)

type consumeRateLimitKey struct {
	SubscriptionID string `json:"subscription_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ConsumeRateLimit shields the consume path. A global endpoint bucket
// bounds overall ingest, a per-subscription bucket isolates noisy
// clients, and an in-flight lock collapses racing retries of one
// idempotency key. The database unique index remains the correctness
// guarantee; this only sheds load before it.
func (s *Server) ConsumeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.consumeLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		res, err := s.consumeLimiter.AllowEndpoint(ctx)
		if err != nil {
			logger.FromContext(ctx).Warn("consume endpoint rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			s.denyConsumeRateLimit(c, endpoint, rateLimitReasonEndpoint, res)
			return
		}

		subscriptionID, idempotencyKey, err := readConsumeKey(c)
		if err != nil {
			logger.FromContext(ctx).Warn("consume rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}

		if subscriptionID != "" {
			res, err = s.consumeLimiter.AllowSubscription(ctx, subscriptionID)
			if err != nil {
				logger.FromContext(ctx).Warn("consume subscription rate limit check failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !res.Allowed {
				s.denyConsumeRateLimit(c, endpoint, rateLimitReasonSubscription, res)
				return
			}
		}

		if idempotencyKey != "" {
			token, acquired, err := s.consumeLimiter.TryLockIdempotencyKey(ctx, idempotencyKey)
			if err != nil {
				logger.FromContext(ctx).Warn("consume idempotency lock failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !acquired {
				s.denyConsumeRateLimit(c, endpoint, rateLimitReasonKeyInFlight, &ratelimit.Result{RetryAfter: time.Second})
				return
			}
			defer func() {
				if err := s.consumeLimiter.ReleaseIdempotencyKey(ctx, idempotencyKey, token); err != nil {
					logger.FromContext(ctx).Warn("consume idempotency unlock failed", zap.Error(err))
				}
			}()
		}

		c.Next()
	}
}

func (s *Server) denyConsumeRateLimit(c *gin.Context, endpoint, reason string, res *ratelimit.Result) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("consume rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, reason)

	c.Header("Retry-After", retryAfterSeconds(res))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(res *ratelimit.Result) string {
	if res == nil || res.RetryAfter <= 0 {
		return "1"
	}
	secs := int(res.RetryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func readConsumeKey(c *gin.Context) (string, string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", "", nil
	}

	var payload consumeRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", nil
	}

	return strings.TrimSpace(payload.SubscriptionID), strings.TrimSpace(payload.IdempotencyKey), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
