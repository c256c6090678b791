package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ProductCatalog/pkg/kit"
)

type Server struct {
	Catalog *Service
	Syncer  *Syncer
	Reports *Reporter
	Log     *zap.Logger

	AuthMode AuthMode
	// SyncLimiter throttles POST /products/sync per client. Nil disables it.
	SyncLimiter *kit.IPRateLimiter
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if err := s.Catalog.Ping(ctx); err != nil {
			s.logger().Warn("readyz failed", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", s.list)
		r.Delete("/{id}", s.softDelete)

		sync := http.Handler(http.HandlerFunc(s.sync))
		if s.SyncLimiter != nil {
			sync = s.SyncLimiter.Middleware(sync)
		}
		r.Method(http.MethodPost, "/sync", sync)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Use(RequireBearer(s.AuthMode))
		r.Get("/deleted-percentage", s.deletedReport)
		r.Get("/non-deleted-percentage", s.activeReport)
		r.Get("/products-by-category", s.categoryReport)
	})

	return r
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	page, err := s.Catalog.Find(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, page)
}

func (s *Server) softDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.Catalog.SoftDelete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	res, err := s.Syncer.Run(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, res)
}

func (s *Server) deletedReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Reports.Deleted(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, rep)
}

func (s *Server) activeReport(w http.ResponseWriter, r *http.Request) {
	p, err := parseActiveParams(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	rep, err := s.Reports.Active(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, rep)
}

func (s *Server) categoryReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Reports.ByCategory(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, rep)
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		kit.WriteError(w, r, http.StatusBadRequest, "invalid request", ve.Fields)
	case errors.Is(err, ErrExternalSourceUnavailable):
		s.logger().Warn("content source unavailable", zap.Error(err))
		kit.WriteError(w, r, http.StatusBadGateway, "content source unavailable", nil)
	case errors.Is(err, ErrStoreUnavailable):
		s.logger().Error("store unavailable", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "store unavailable", nil)
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads this
		kit.WriteError(w, r, http.StatusServiceUnavailable, "request canceled", nil)
	default:
		s.logger().Error("request failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

// queryErrors collects parse failures so a request reports all of them.
type queryErrors map[string]string

func (e queryErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return &ValidationError{Fields: e}
}

func parseListQuery(v url.Values) (ListQuery, error) {
	bad := queryErrors{}
	q := ListQuery{
		Page:  parseInt(v, "page", DefaultPage, bad),
		Limit: parseInt(v, "limit", DefaultLimit, bad),
		Filter: Filter{
			Name:     v.Get("name"),
			Category: v.Get("category"),
			MinPrice: parseDecimal(v, "minPrice", bad),
			MaxPrice: parseDecimal(v, "maxPrice", bad),
		},
	}
	return q, bad.err()
}

func parseActiveParams(v url.Values) (ActiveParams, error) {
	bad := queryErrors{}
	p := ActiveParams{
		StartDate: parseDate(v, "startDate", bad),
		EndDate:   parseDate(v, "endDate", bad),
	}
	if raw := v.Get("withPrice"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			bad["withPrice"] = "must be true or false"
		} else {
			p.WithPrice = &b
		}
	}
	return p, bad.err()
}

func parseInt(v url.Values, key string, def int, bad queryErrors) int {
	raw := v.Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		bad[key] = "must be an integer"
		return def
	}
	return n
}

func parseDecimal(v url.Values, key string, bad queryErrors) *decimal.Decimal {
	raw := v.Get(key)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		bad[key] = "must be a number"
		return nil
	}
	return &d
}

const dateLayout = "2006-01-02"

func parseDate(v url.Values, key string, bad queryErrors) *time.Time {
	raw := v.Get(key)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	bad[key] = "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"
	return nil
}
