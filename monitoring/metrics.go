// Package monitoring exposes Prometheus metrics for the queue service.
package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"qsmart/internal/store"
)

var (
	queueWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qsmart_queue_waiting_total",
			Help: "Current number of waiting tickets per queue",
		},
		[]string{"queue_id", "queue_name"},
	)

	queueCalled = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qsmart_queue_called_total",
			Help: "Current number of called tickets per queue",
		},
		[]string{"queue_id", "queue_name"},
	)

	ticketOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qsmart_ticket_operations_total",
			Help: "Total ticket operations by kind and outcome",
		},
		[]string{"operation", "status"},
	)

	notificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qsmart_notification_deliveries_total",
			Help: "Realtime notification publish attempts",
		},
		[]string{"status"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qsmart_active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// RecordTicketOperation counts a ledger operation outcome.
func RecordTicketOperation(operation, status string) {
	ticketOperations.WithLabelValues(operation, status).Inc()
}

// RecordNotification counts one realtime publish attempt.
func RecordNotification(status string) {
	notificationDeliveries.WithLabelValues(status).Inc()
}

// Monitor periodically refreshes the per-queue gauges from storage.
type Monitor struct {
	store    *store.Store
	interval time.Duration
	stop     chan struct{}
}

func NewMonitor(st *store.Store, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{store: st, interval: interval, stop: make(chan struct{})}
}

func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.collect(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	close(m.stop)
}

func (m *Monitor) collect(ctx context.Context) {
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	active := true
	queues, err := m.store.ListQueues(ctx, store.QueueFilter{IsActive: &active})
	if err != nil {
		return
	}
	for _, q := range queues {
		stats, err := m.store.QueueStats(ctx, q.ID)
		if err != nil {
			continue
		}
		queueWaiting.WithLabelValues(q.ID, q.Name).Set(float64(stats.Waiting))
		queueCalled.WithLabelValues(q.ID, q.Name).Set(float64(stats.Called))
	}
}
