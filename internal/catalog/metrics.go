package catalog

import "github.com/prometheus/client_golang/prometheus"

const (
	opGet = "get"
	opSet = "set"

	resultHit     = "hit"
	resultMiss    = "miss"
	resultOK      = "ok"
	resultError   = "error"
	resultCorrupt = "corrupt"
)

// Metrics is optional everywhere; a nil *Metrics records nothing.
type Metrics struct {
	CacheOps      *prometheus.CounterVec
	Invalidations prometheus.Counter
	SyncRuns      *prometheus.CounterVec
	SyncItems     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_cache_operations_total",
				Help: "Result cache operations by outcome",
			},
			[]string{"op", "result"},
		),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_cache_invalidations_total",
			Help: "Catalog namespace invalidations",
		}),
		SyncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_sync_runs_total",
				Help: "Content sync runs by outcome",
			},
			[]string{"outcome"},
		),
		SyncItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_sync_items_total",
				Help: "Synced items by action",
			},
			[]string{"action"},
		),
	}

	reg.MustRegister(m.CacheOps, m.Invalidations, m.SyncRuns, m.SyncItems)
	return m
}

func (m *Metrics) cacheOp(op, result string) {
	if m == nil {
		return
	}
	m.CacheOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) invalidated() {
	if m == nil {
		return
	}
	m.Invalidations.Inc()
}

func (m *Metrics) syncRun(outcome string) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) syncItems(r SyncResult) {
	if m == nil {
		return
	}
	m.SyncItems.WithLabelValues("inserted").Add(float64(r.Inserted))
	m.SyncItems.WithLabelValues("updated").Add(float64(r.Updated))
	m.SyncItems.WithLabelValues("failed").Add(float64(r.Failed))
}
