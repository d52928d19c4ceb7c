package monitoring

import (
	"context"
	"strconv"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total orders created",
		},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions by target status",
		},
		[]string{"to"},
	)

	webhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_notifications_total",
			Help: "Gateway notifications by processing result",
		},
		[]string{"result"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets issued",
		},
	)

	ticketRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_redemptions_total",
			Help: "Ticket transitions by target status",
		},
		[]string{"to"},
	)

	gatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Outbound payment gateway calls",
		},
		[]string{"operation", "outcome"},
	)

	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Duration of outbound payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)

	ordersByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orders_by_status",
			Help: "Current number of orders per status",
		},
		[]string{"status"},
	)

	quotaRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticket_quota_remaining_total",
			Help: "Unsold quota summed over all ticket types",
		},
	)
)

func TrackOrderCreated() {
	ordersCreated.Inc()
}

func TrackOrderTransition(to string) {
	orderTransitions.WithLabelValues(to).Inc()
}

func TrackWebhook(result string) {
	webhookNotifications.WithLabelValues(result).Inc()
}

func TrackTicketsIssued(count int) {
	ticketsIssued.Add(float64(count))
}

func TrackTicketRedemption(to string) {
	ticketRedemptions.WithLabelValues(to).Inc()
}

func TrackGatewayCall(operation string, ok bool, duration time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	gatewayCalls.WithLabelValues(operation, outcome).Inc()
	gatewayCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Monitor polls the store for the gauge metrics.
type Monitor struct {
	app core.App
}

func NewMonitor(app core.App) *Monitor {
	monitor := &Monitor{app: app}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectOrderMetrics(context.Background())
		m.collectQuotaMetrics(context.Background())
	}
}

func (m *Monitor) collectOrderMetrics(_ context.Context) {
	var rows []dbx.NullStringMap
	if err := m.app.DB().NewQuery(
		"SELECT status, COUNT(*) AS n FROM orders GROUP BY status",
	).All(&rows); err != nil {
		return
	}

	for _, row := range rows {
		statusName := row["status"].String
		n, _ := strconv.ParseFloat(row["n"].String, 64)
		ordersByStatus.WithLabelValues(statusName).Set(n)
	}
}

func (m *Monitor) collectQuotaMetrics(_ context.Context) {
	var row dbx.NullStringMap
	if err := m.app.DB().NewQuery(
		"SELECT COALESCE(SUM(quota_total - quota_sold), 0) AS remaining FROM ticket_types",
	).One(&row); err != nil {
		return
	}

	remaining, _ := strconv.ParseFloat(row["remaining"].String, 64)
	quotaRemaining.Set(remaining)
}
