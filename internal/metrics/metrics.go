package metrics

import (
	"database/sql"

	"github.com/atvirokodosprendimai/storefront/internal/core/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storefront"

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Metrics holds the collectors for tenant resolution and partition binding.
// It satisfies usecase.ResolutionObserver and partition.Observer.
type Metrics struct {
	reg prometheus.Registerer

	ResolutionsTotal    *prometheus.CounterVec
	StrategyMissesTotal *prometheus.CounterVec
	BindsTotal          *prometheus.CounterVec
	ResetsTotal         *prometheus.CounterVec
	DiscardsTotal       prometheus.Counter
	UsageDroppedTotal   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		ResolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "resolutions_total",
			Help:      "Total number of tenant resolutions by outcome and winning strategy.",
		}, []string{"outcome", "strategy"}),
		StrategyMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "strategy_misses_total",
			Help:      "Total number of strategy non-matches that carried a reason.",
		}, []string{"strategy", "reason"}),
		BindsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "partition",
			Name:      "binds_total",
			Help:      "Total number of partition binds by result.",
		}, []string{"result"}),
		ResetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "partition",
			Name:      "resets_total",
			Help:      "Total number of partition resets by result.",
		}, []string{"result"}),
		DiscardsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "partition",
			Name:      "discarded_connections_total",
			Help:      "Total number of connections discarded after a failed reset.",
		}),
		UsageDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "usage_dropped_total",
			Help:      "Total number of credential usage events dropped because the buffer was full.",
		}),
	}
}

func (m *Metrics) ObserveResolution(outcome, strategy string) {
	m.ResolutionsTotal.WithLabelValues(outcome, strategy).Inc()
}

func (m *Metrics) ObserveStrategyMiss(strategy, reason string) {
	m.StrategyMissesTotal.WithLabelValues(strategy, reason).Inc()
}

func (m *Metrics) ObserveBind(ok bool) {
	m.BindsTotal.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) ObserveReset(ok bool) {
	m.ResetsTotal.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) ObserveDiscard() {
	m.DiscardsTotal.Inc()
}

// UsageDropped is passed to UsageRecorder.OnDrop.
func (m *Metrics) UsageDropped() {
	m.UsageDroppedTotal.Inc()
}

// RegisterOutbox exposes the dispatcher counters.
func (m *Metrics) RegisterOutbox(d *usecase.OutboxDispatcher) {
	factory := promauto.With(m.reg)
	counter := func(name, help string, read func(usecase.OutboxDispatcherMetrics) int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(d.Metrics())) })
	}
	counter("dispatched_total", "Total number of events delivered.", func(s usecase.OutboxDispatcherMetrics) int64 { return s.DispatchSuccessTotal })
	counter("failures_total", "Total number of failed delivery attempts.", func(s usecase.OutboxDispatcherMetrics) int64 { return s.DispatchFailureTotal })
	counter("dead_total", "Total number of events given up after retries.", func(s usecase.OutboxDispatcherMetrics) int64 { return s.DispatchDeadTotal })
}

// RegisterUsageRecorder exposes how many credential uses reached the store.
func (m *Metrics) RegisterUsageRecorder(r *usecase.UsageRecorder) {
	promauto.With(m.reg).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "apikey",
		Name:      "usage_flushed_total",
		Help:      "Total number of credential uses written to the store.",
	}, func() float64 { return float64(r.Metrics().Flushed) })
}

// RegisterPool exposes connection counts of the partition pool.
func (m *Metrics) RegisterPool(stats func() sql.DBStats) {
	factory := promauto.With(m.reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "partition",
		Name:      "pool_in_use_connections",
		Help:      "Connections currently checked out of the partition pool.",
	}, func() float64 { return float64(stats().InUse) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "partition",
		Name:      "pool_idle_connections",
		Help:      "Idle connections in the partition pool.",
	}, func() float64 { return float64(stats().Idle) })
}
