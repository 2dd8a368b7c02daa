// Package cloudmetrics pushes engine accounting counters to a remote
// prometheus endpoint for fleet-level reporting.
package cloudmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts the engine activity worth reporting upstream. Labels
// carry the reseller so fleet dashboards can slice per tenant.
type Recorder struct {
	usageEvents   *prometheus.CounterVec
	quotaRejected *prometheus.CounterVec
	invoices      *prometheus.CounterVec
	activeSubs    *prometheus.GaugeVec
}

func NewRecorder(registry *prometheus.Registry) *Recorder {
	r := &Recorder{
		usageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revora_cloud_usage_events_total",
			Help: "Committed usage events by reseller and service.",
		}, []string{"reseller_id", "service_id"}),
		quotaRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revora_cloud_quota_rejections_total",
			Help: "Consume requests rejected by quota, by reseller.",
		}, []string{"reseller_id"}),
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revora_cloud_invoices_total",
			Help: "Generated invoices by reseller.",
		}, []string{"reseller_id"}),
		activeSubs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "revora_cloud_active_subscriptions",
			Help: "Active subscriptions by reseller.",
		}, []string{"reseller_id"}),
	}
	registry.MustRegister(r.usageEvents, r.quotaRejected, r.invoices, r.activeSubs)
	return r
}

func (r *Recorder) RecordUsageEvent(resellerID, serviceID string) {
	if r == nil {
		return
	}
	r.usageEvents.WithLabelValues(resellerID, serviceID).Inc()
}

func (r *Recorder) RecordQuotaRejection(resellerID string) {
	if r == nil {
		return
	}
	r.quotaRejected.WithLabelValues(resellerID).Inc()
}

func (r *Recorder) RecordInvoiceGenerated(resellerID string) {
	if r == nil {
		return
	}
	r.invoices.WithLabelValues(resellerID).Inc()
}

func (r *Recorder) UpdateActiveSubscriptions(resellerID string, count int) {
	if r == nil {
		return
	}
	r.activeSubs.WithLabelValues(resellerID).Set(float64(count))
}
