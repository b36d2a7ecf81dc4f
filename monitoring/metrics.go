package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"queue-ticket/internal/status"
	"queue-ticket/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue engine operations by result",
		},
		[]string{"operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_operation_duration_seconds",
			Help:    "Duration of queue engine operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Ticket numbers handed out by the numbering authority",
		},
	)

	queueTickets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_tickets",
			Help: "Current tickets per queue and status",
		},
		[]string{"queue_id", "status"},
	)

	broadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_total",
			Help: "Events handed to the broadcaster",
		},
		[]string{"event"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// ResultOf is the result label for an operation outcome.
func ResultOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(status.KindOf(err))
}

// TrackOperation records one engine or registry call.
func TrackOperation(operation string, err error, duration time.Duration) {
	queueOperations.WithLabelValues(operation, ResultOf(err)).Inc()
	operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func TrackTicketIssued() {
	ticketsIssued.Inc()
}

func TrackBroadcast(event string) {
	broadcastEvents.WithLabelValues(event).Inc()
}

type QueueLister interface {
	ListQueues(ctx context.Context) ([]*models.Queue, error)
}

type StatsReader interface {
	Stats(ctx context.Context, queueID string) (*models.TicketStats, error)
}

// Monitor refreshes the per-queue gauges on a fixed interval.
type Monitor struct {
	queues   QueueLister
	stats    StatsReader
	interval time.Duration
	known    map[string]struct{}
}

func NewMonitor(queues QueueLister, stats StatsReader, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		queues:   queues,
		stats:    stats,
		interval: interval,
		known:    map[string]struct{}{},
	}
}

// Run collects until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	m.collectQueueMetrics(ctx)
	m.collectGoroutineMetrics()
}

func (m *Monitor) collectQueueMetrics(ctx context.Context) {
	queues, err := m.queues.ListQueues(ctx)
	if err != nil {
		slog.Warn("metrics: list queues failed", "error", err)
		return
	}

	seen := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		st, err := m.stats.Stats(ctx, q.ID)
		if err != nil {
			slog.Warn("metrics: queue stats failed", "queue_id", q.ID, "error", err)
			continue
		}
		seen[q.ID] = struct{}{}
		queueTickets.WithLabelValues(q.ID, string(models.StatusWaiting)).Set(float64(st.Waiting))
		queueTickets.WithLabelValues(q.ID, string(models.StatusServing)).Set(float64(st.Serving))
		queueTickets.WithLabelValues(q.ID, string(models.StatusServed)).Set(float64(st.Served))
		queueTickets.WithLabelValues(q.ID, string(models.StatusCancelled)).Set(float64(st.Cancelled))
	}

	// Deleted queues stop reporting.
	for id := range m.known {
		if _, ok := seen[id]; !ok {
			queueTickets.DeletePartialMatch(prometheus.Labels{"queue_id": id})
		}
	}
	m.known = seen
}

func (m *Monitor) collectGoroutineMetrics() {
	goroutineCount.Set(float64(runtime.NumGoroutine()))
}
