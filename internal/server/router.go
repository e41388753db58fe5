package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/rentalshop/internal/middleware"
	"github.com/yanizio/rentalshop/internal/registry"
	"github.com/yanizio/rentalshop/internal/requestinfo"
	"github.com/yanizio/rentalshop/internal/tenant"
)

// Pinger is satisfied by *sqlx.DB and database.Client.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Publisher announces an invalidation to peer instances.
// *invalidate.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ref string) error
}

// Deps are the collaborators the router needs.  Publisher and
// RequestInfo are optional.
type Deps struct {
	Manager        *tenant.Manager
	Registry       Pinger
	Publisher      Publisher
	RequestInfo    *requestinfo.Enricher
	Log            *zap.Logger
	LocalhostAlias string
	ForceHTTPS     bool
}

// pingTimeout bounds health and tenant database pings.
const pingTimeout = 2 * time.Second

// NewRouter wires every route:
//
//	GET    /healthz                      registry ping
//	GET    /metrics                      Prometheus
//	GET    /api/tenant                   resolved tenant summary
//	DELETE /admin/tenants/{ref}/cache    drop a tenant, by id or key, from every instance
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.L()
	}
	h := &handlers{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if d.RequestInfo != nil {
		r.Use(d.RequestInfo.Enrich)
	}
	r.Use(chimw.RealIP, chimw.Recoverer, middleware.AccessLog(d.Log), middleware.Security)
	if d.ForceHTTPS {
		r.Use(middleware.ForceHTTPS)
	}

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Tenant(d.Manager, d.LocalhostAlias, d.Log))
		r.Get("/tenant", h.tenantInfo)
	})

	r.Delete("/admin/tenants/{ref}/cache", h.invalidate)
	return r
}

type handlers struct{ Deps }

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := h.Registry.PingContext(ctx); err != nil {
		h.Log.Warn("registry ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "down", "cached_tenants": h.Manager.Len()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "cached_tenants": h.Manager.Len()})
}

type tenantInfo struct {
	Tenant       *registry.Tenant       `json:"tenant"`
	Subscription *registry.Subscription `json:"subscription"`
	Plan         *registry.Plan         `json:"plan"`
	Database     string                 `json:"database"`
}

// tenantInfo runs behind middleware.Tenant; the tenant is always bound.
func (h *handlers) tenantInfo(w http.ResponseWriter, r *http.Request) {
	tc, _ := tenant.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	dbState := "ok"
	if err := tenant.DB(ctx, nil).PingContext(ctx); err != nil {
		h.Log.Warn("tenant ping failed", zap.String("tenant", tc.Tenant.ID), zap.Error(err))
		dbState = "unreachable"
	}

	// Subscriptions duplicates Subscription; drop it from the copy we send.
	ten := *tc.Tenant
	ten.Subscriptions = nil
	writeJSON(w, http.StatusOK, tenantInfo{
		Tenant:       &ten,
		Subscription: tc.Subscription,
		Plan:         tc.Plan,
		Database:     dbState,
	})
}

// invalidate drops every cached context of the tenant named by {ref},
// its id or its key, here and on peer instances.
func (h *handlers) invalidate(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(chi.URLParam(r, "ref"))
	if ref == "" {
		middleware.WriteError(w, http.StatusBadRequest, tenant.ErrIdentifierMissing)
		return
	}
	n := h.Manager.EvictTenant(ref)

	if h.Publisher != nil {
		if err := h.Publisher.Publish(r.Context(), ref); err != nil {
			h.Log.Error("invalidation publish failed", zap.String("tenant", ref), zap.Error(err))
			middleware.WriteError(w, http.StatusBadGateway, err)
			return
		}
	}
	h.Log.Info("tenant cache invalidated", zap.String("tenant", ref), zap.Int("evicted", n))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
