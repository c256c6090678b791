package catalog

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ProductCatalog/internal/cache"
	"ProductCatalog/pkg/kit"
)

// ServerDeps is everything the catalog needs from the outside world.
type ServerDeps struct {
	Store    Store
	Cache    cache.Cache
	CacheTTL time.Duration
	Source   ProductSource
	Log      *zap.Logger

	// Registry receives the catalog metrics when set.
	Registry prometheus.Registerer

	AuthMode    AuthMode
	SyncLimiter *kit.IPRateLimiter
}

// NewServer assembles the query engine, the syncer and the reporter over
// one store and cache.
func NewServer(d ServerDeps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	var metrics *Metrics
	if d.Registry != nil {
		metrics = NewMetrics(d.Registry)
	}

	svc := NewService(ServiceDeps{
		Store:   d.Store,
		Cache:   d.Cache,
		TTL:     d.CacheTTL,
		Log:     d.Log.Named("query"),
		Metrics: metrics,
	})

	return &Server{
		Catalog: svc,
		Syncer: NewSyncer(SyncerDeps{
			Source:      d.Source,
			Store:       d.Store,
			Invalidator: svc,
			Log:         d.Log.Named("sync"),
			Metrics:     metrics,
		}),
		Reports:     NewReporter(d.Store),
		Log:         d.Log,
		AuthMode:    d.AuthMode,
		SyncLimiter: d.SyncLimiter,
	}
}

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string
}

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupMetrics(r, deps)

	r.Mount("/", s.Routes())
	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	if deps.Log != nil {
		r.Use(kit.Logging(deps.Log))
	}
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePatternOrPath))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}
