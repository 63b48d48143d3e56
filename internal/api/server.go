// Package api serves the verification engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/namematch"
	"github.com/sells-group/nonprofit-verify/internal/verify"
)

// Service is the engine surface the handlers call.
type Service interface {
	Lookup(ctx context.Context, raw, state string) (*verify.LookupResult, error)
	Reverify(ctx context.Context, raw, state string) (*verify.LookupResult, error)
	Search(ctx context.Context, q namematch.Query) (namematch.Page, error)
	BatchLookup(ctx context.Context, inputs []string) ([]verify.BatchItem, error)
	Refreshes(ctx context.Context, limit int) ([]model.RefreshRun, error)
	Status() verify.Status
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Handler holds the HTTP dependencies.
type Handler struct {
	svc Service
	log *zap.Logger
}

// NewRouter builds the HTTP router.
func NewRouter(svc Service, opts Options) http.Handler {
	h := &Handler{svc: svc, log: zap.L().With(zap.String("component", "api"))}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		r.Get("/verify/{ein}", h.handleVerify)
		r.Post("/verify/{ein}/refresh", h.handleReverify)
		r.Post("/verify/batch", h.handleBatch)
		r.Get("/search", h.handleSearch)
		r.Get("/refreshes", h.handleRefreshes)
	})
	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Retryable: status == http.StatusServiceUnavailable})
}
