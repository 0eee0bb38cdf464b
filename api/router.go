package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-dcb/core"
	glog "github.com/goliatone/go-logger/glog"
)

type Handler struct {
	service core.TransactionService
	logger  core.Logger
	metrics http.Handler
}

type Option func(*Handler)

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetricsHandler mounts handler on GET /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(h *Handler) {
		h.metrics = handler
	}
}

func NewHandler(service core.TransactionService, opts ...Option) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("api: transaction service is required")
	}
	handler := &Handler{service: service}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	_, logger := glog.Resolve("dcb.api", nil, handler.logger)
	handler.logger = glog.Ensure(logger)
	return handler, nil
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(handler.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if handler.metrics != nil {
		r.Method(http.MethodGet, "/metrics", handler.metrics)
	}

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/status", handler.listStatusHistory)
		r.Route("/{transactionID}", func(r chi.Router) {
			r.Post("/", handler.createTransaction)
			r.Put("/", handler.patchItemDetails)
			r.Get("/status", handler.getStatus)
			r.Put("/status", handler.requestStatusChange)
			r.Put("/renew", handler.renew)
			r.Put("/block-renewal", handler.blockRenewal)
			r.Put("/unblock-renewal", handler.unblockRenewal)
		})
	})
	r.Post("/shared-resources/bootstrap", handler.bootstrap)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("dcb api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
