package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	commissiondomain "github.com/revora/revora/internal/commission/domain"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	invoicedomain "github.com/revora/revora/internal/invoice/domain"
	pricingdomain "github.com/revora/revora/internal/pricing/domain"
	quotadomain "github.com/revora/revora/internal/quota/domain"
	subscriptiondomain "github.com/revora/revora/internal/subscription/domain"
	usagedomain "github.com/revora/revora/internal/usage/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware translates domain errors collected on the gin
// context into the JSON error envelope.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, quotadomain.ErrQuotaExceeded):
		return http.StatusPaymentRequired, payload("quota_exceeded", "usage quota exhausted for the current period")
	case errors.Is(err, quotadomain.ErrQuotaDisabled):
		return http.StatusForbidden, payload("quota_disabled", "consumption is disabled for this subscription")
	case errors.Is(err, subscriptiondomain.ErrSubscriptionInactive):
		return http.StatusGone, payload("subscription_inactive", "subscription is not active")
	case errors.Is(err, usagedomain.ErrDuplicateEvent):
		return http.StatusConflict, payload("duplicate_event", "idempotency key already committed")
	case errors.Is(err, invoicedomain.ErrDuplicateInvoice):
		return http.StatusConflict, payload("duplicate_invoice", "an invoice already exists for this client and period")
	case errors.Is(err, invoicedomain.ErrInvalidTransition):
		return http.StatusConflict, payload("invalid_transition", "invoice status transition is not allowed")
	case errors.Is(err, subscriptiondomain.ErrDuplicateAssignment):
		return http.StatusConflict, payload("duplicate_assignment", "client already has an active subscription for this service")
	case errors.Is(err, catalogdomain.ErrDuplicateCode),
		errors.Is(err, directorydomain.ErrDuplicateEmail):
		return http.StatusConflict, payload("duplicate", "resource already exists")
	case errors.Is(err, quotadomain.ErrTransientStore):
		return http.StatusServiceUnavailable, payload("transient_conflict", "temporary contention, retry the request")
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, payload("service_unavailable", "service unavailable")
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, payload("rate_limited", "too many requests")
	case errors.Is(err, invoicedomain.ErrNoUsage):
		return http.StatusUnprocessableEntity, payload("no_usage_in_period", "no usage recorded in the requested period")
	case errors.Is(err, commissiondomain.ErrNotEligible):
		return http.StatusUnprocessableEntity, payload("invoice_not_eligible", "commission applies only to the reseller's own paid invoices")
	case errors.Is(err, catalogdomain.ErrUnknownService),
		errors.Is(err, catalogdomain.ErrUnknownPlan),
		errors.Is(err, directorydomain.ErrResellerNotFound),
		errors.Is(err, directorydomain.ErrClientNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, payload("not_found", "resource not found")
	case errors.Is(err, usagedomain.ErrInvalidUnits),
		errors.Is(err, quotadomain.ErrMissingIdempotency),
		errors.Is(err, subscriptiondomain.ErrInvalidQuota),
		errors.Is(err, subscriptiondomain.ErrInvalidResetPeriod),
		errors.Is(err, subscriptiondomain.ErrInvalidTimezone),
		errors.Is(err, catalogdomain.ErrInvalidBasePrice),
		errors.Is(err, catalogdomain.ErrInvalidBillingModel),
		errors.Is(err, directorydomain.ErrInvalidCommissionRate),
		errors.Is(err, pricingdomain.ErrInvalidPrice),
		errors.Is(err, pricingdomain.ErrInvalidMarkup),
		errors.Is(err, pricingdomain.ErrInvalidRuleKind),
		errors.Is(err, pricingdomain.ErrInvalidReference),
		errors.Is(err, invoicedomain.ErrInvalidPeriod),
		errors.Is(err, commissiondomain.ErrInvalidWindow),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, payload("invalid_request", err.Error())
	default:
		return http.StatusInternalServerError, payload("internal_error", "internal server error")
	}
}

func payload(errType, message string) errorPayload {
	return errorPayload{Type: errType, Message: message}
}

// classifyErrorForLog feeds the request logger's error fields.
func classifyErrorForLog(err error) (string, string) {
	status, p := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "engine", p.Type
	case status == http.StatusPaymentRequired, status == http.StatusGone, status == http.StatusForbidden:
		return "quota", p.Type
	default:
		return "client", p.Type
	}
}
