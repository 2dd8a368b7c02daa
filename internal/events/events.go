// Package events provides the transactional outbox for engine events.
package events

// Event types emitted by the metering and billing paths.
const (
	EventUsageRecorded  = "usage.recorded"
	EventQuotaNearLimit = "quota.near_limit"
	EventQuotaExceeded  = "quota.exceeded"
	EventInvoiceSent    = "invoice.sent"
	EventInvoicePaid    = "invoice.paid"
	EventInvoiceOverdue = "invoice.overdue"
)

// QuotaPayload captures the counter state behind a quota notification.
type QuotaPayload struct {
	SubscriptionID string `json:"subscription_id"`
	ClientID       string `json:"client_id"`
	ServiceID      string `json:"service_id"`
	UsageConsumed  int64  `json:"usage_consumed"`
	UsageLimit     int64  `json:"usage_limit"`
}

// ToMap converts the payload into the outbox map form.
func (p QuotaPayload) ToMap() map[string]any {
	return map[string]any{
		"subscription_id": p.SubscriptionID,
		"client_id":       p.ClientID,
		"service_id":      p.ServiceID,
		"usage_consumed":  p.UsageConsumed,
		"usage_limit":     p.UsageLimit,
	}
}

// UsageRecordedPayload describes one committed ledger event.
type UsageRecordedPayload struct {
	UsageEventID   string `json:"usage_event_id"`
	SubscriptionID string `json:"subscription_id"`
	ClientID       string `json:"client_id"`
	ServiceID      string `json:"service_id"`
	Units          int64  `json:"units"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ToMap converts the payload into the outbox map form.
func (p UsageRecordedPayload) ToMap() map[string]any {
	return map[string]any{
		"usage_event_id":  p.UsageEventID,
		"subscription_id": p.SubscriptionID,
		"client_id":       p.ClientID,
		"service_id":      p.ServiceID,
		"units":           p.Units,
		"amount":          p.Amount,
		"idempotency_key": p.IdempotencyKey,
	}
}

// InvoicePayload describes an invoice lifecycle transition.
type InvoicePayload struct {
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	ClientID      string `json:"client_id"`
	Total         int64  `json:"total"`
	Status        string `json:"status"`
}

// ToMap converts the payload into the outbox map form.
func (p InvoicePayload) ToMap() map[string]any {
	return map[string]any{
		"invoice_id":     p.InvoiceID,
		"invoice_number": p.InvoiceNumber,
		"client_id":      p.ClientID,
		"total":          p.Total,
		"status":         p.Status,
	}
}
