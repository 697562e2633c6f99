package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	scanOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_scan_outcomes_total",
			Help: "Validated codes by outcome",
		},
		[]string{"outcome", "source"},
	)

	validationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_validation_duration_seconds",
			Help:    "Time spent validating one code against the store",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	ticketsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_generated_total",
			Help: "Tickets generated by result",
		},
		[]string{"status"},
	)

	exports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_exports_total",
			Help: "Ticket exports by format and result",
		},
		[]string{"format", "status"},
	)

	activeStations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_stations_active",
			Help: "Scanning stations currently connected",
		},
	)

	droppedScans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_scans_dropped_total",
			Help: "Scans dropped because a validation was already in flight",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)

	redisUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_up",
			Help: "1 if the last Redis ping succeeded",
		},
	)
)

// Monitor records ticketing metrics. A nil *Monitor is valid and records
// nothing, which keeps call sites free of checks when metrics are disabled.
type Monitor struct {
	redis redis.Cmdable
}

func NewMonitor(redisClient redis.Cmdable) *Monitor {
	return &Monitor{redis: redisClient}
}

// Run samples runtime and Redis health every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if m == nil {
		return
	}

	ticker := time.NewTicker(interval)
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
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	if m.redis == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.redis.Ping(pingCtx).Err(); err != nil {
		redisUp.Set(0)
		return
	}
	redisUp.Set(1)
}

// TrackScan counts one validation outcome. source is "camera" or "manual".
func (m *Monitor) TrackScan(outcome, source string, took time.Duration) {
	if m == nil {
		return
	}
	scanOutcomes.WithLabelValues(outcome, source).Inc()
	validationDuration.Observe(took.Seconds())
}

func (m *Monitor) TrackDroppedScan() {
	if m == nil {
		return
	}
	droppedScans.Inc()
}

func (m *Monitor) TrackTicketGenerated(ok bool) {
	if m == nil {
		return
	}
	ticketsGenerated.WithLabelValues(result(ok)).Inc()
}

func (m *Monitor) TrackExport(format string, ok bool) {
	if m == nil {
		return
	}
	exports.WithLabelValues(format, result(ok)).Inc()
}

// TrackStation adjusts the connected station gauge by delta.
func (m *Monitor) TrackStation(delta int) {
	if m == nil {
		return
	}
	activeStations.Add(float64(delta))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
