// Package api exposes the naming workflow over HTTP/JSON for the automated
// caller and the review surface.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/binnyhq/part-namer/pkg/audit"
	"github.com/binnyhq/part-namer/pkg/cache"
	"github.com/binnyhq/part-namer/pkg/registry"
	"github.com/binnyhq/part-namer/pkg/workflow"
)

// Option configures the router.
type Option func(*handlers)

// WithRegistryCache serves registry reads through rc. Approvals made through
// the router invalidate the approved kind; changes made by other processes
// must be reported to rc by the caller.
func WithRegistryCache(rc *cache.RegistryCache) Option {
	return func(h *handlers) {
		h.cache = rc
	}
}

// NewRouter creates a chi router with the workflow routes. auditStore may be
// nil, in which case the audit route is not registered.
func NewRouter(engine *workflow.Engine, auditStore *audit.Store, logger *slog.Logger, opts ...Option) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{engine: engine, audit: auditStore, logger: logger}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(actorContext)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/registries/{kind}", func(r chi.Router) {
		r.Use(h.cacheRegistry)
		r.Get("/", h.listEntries)
		r.Post("/validate", h.validateName)
		r.Get("/{code}", h.getEntry)
	})

	r.Route("/proposals/{kind}", func(r chi.Router) {
		r.Get("/", h.listProposals)
		r.Post("/", h.createProposal)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getProposal)
			r.Patch("/", h.editProposal)
			r.Post("/approve", h.approveProposal)
			r.Post("/reject", h.rejectProposal)
			r.Post("/defer", h.deferProposal)
		})
	})

	r.Post("/render", h.render)
	r.Post("/names", h.generateName)

	if auditStore != nil {
		r.Get("/audit", h.listAudit)
		r.Get("/audit/{eventID}", h.getAudit)
	}

	return r
}

// actorContext attaches the calling principal to the request context.
func actorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := workflow.WithActor(r.Context(), extractActor(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cacheRegistry serves registry GETs from the cache for the kind in the path.
func (h *handlers) cacheRegistry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := registry.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		cache.Middleware(h.cache.For(kind))(next).ServeHTTP(w, r)
	})
}

func extractActor(r *http.Request) string {
	if principal := r.Header.Get("X-User-Principal"); principal != "" {
		return principal
	}
	if role := r.Header.Get("X-User-Role"); role != "" {
		return role
	}
	return workflow.DefaultActor
}
