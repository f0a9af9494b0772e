// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics defines the Prometheus collectors for the subscription flow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results used as the "result" label.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

// Metrics tracks sign-ups, confirmations and confirmation email dispatch.
type Metrics struct {
	SubscriptionsCreated prometheus.Counter
	Confirmations        prometheus.Counter
	Deliveries           *prometheus.CounterVec
	Redelivered          prometheus.Counter
	DeliveryDuration     prometheus.Histogram
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SubscriptionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "newsletter_subscriptions_created_total",
			Help: "Total number of pending subscriptions created",
		}),
		Confirmations: f.NewCounter(prometheus.CounterOpts{
			Name: "newsletter_confirmations_total",
			Help: "Total number of successful confirmation requests",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_confirmation_emails_total",
			Help: "Confirmation email send attempts by result",
		}, []string{"result"}),
		Redelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "newsletter_confirmation_emails_redelivered_total",
			Help: "Confirmation emails delivered by the redelivery worker",
		}),
		DeliveryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsletter_confirmation_email_duration_seconds",
			Help:    "Duration of confirmation email send calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// IncrementSubscriptionsCreated records a committed sign-up.
func (m *Metrics) IncrementSubscriptionsCreated() {
	m.SubscriptionsCreated.Inc()
}

// IncrementConfirmations records a resolved confirmation token.
func (m *Metrics) IncrementConfirmations() {
	m.Confirmations.Inc()
}

// ObserveDelivery records one send attempt started at start.
func (m *Metrics) ObserveDelivery(start time.Time, err error) {
	m.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.Deliveries.WithLabelValues(ResultFailed).Inc()
		return
	}
	m.Deliveries.WithLabelValues(ResultSent).Inc()
}

// IncrementRedelivered records an email sent by the redelivery worker.
func (m *Metrics) IncrementRedelivered() {
	m.Redelivered.Inc()
}
