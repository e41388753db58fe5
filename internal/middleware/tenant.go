// internal/middleware/tenant.go
//
// Tenant-resolution middleware.
//
// Context
// -------
// Every tenant-scoped route runs behind `Tenant`.  The middleware reads
// the tenant identifier from the request, resolves it through the tenant
// manager, and serves the rest of the chain with the tenant bound to the
// request context, so handlers call `tenant.DB(r.Context(), nil)` and get
// the right database.
//
// Identifier sources, first match wins:
//
//  1. `X-Tenant-ID` header   → TenantID
//  2. `X-Tenant-Key` header  → TenantKey
//  3. first label of Host    → TenantKey (“acme.rentals.example” → “acme”)
//
// The literal host “localhost” maps to an alias from `RENTAL_LOCALHOST_ALIAS`
// or `database.localhost_alias`, so dev instances can masquerade as any real
// tenant.  IP-literal hosts yield no identifier.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/rentalshop/internal/tenant"
)

const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderTenantKey = "X-Tenant-Key"
)

// Tenant returns middleware that resolves the request's tenant through m.
// Resolution failures are answered with StatusFor and a JSON body; the
// next handler is not called.
func Tenant(m *tenant.Manager, localhostAlias string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentifierFrom(r, localhostAlias)
			_, err := tenant.WithTenantContext(r.Context(), m, id,
				func(ctx context.Context, _ *tenant.Context) (struct{}, error) {
					next.ServeHTTP(w, r.WithContext(ctx))
					return struct{}{}, nil
				})
			if err != nil {
				status := StatusFor(err)
				if status == http.StatusInternalServerError {
					log.Error("tenant resolution failed", zap.Stringer("identifier", id), zap.Error(err))
				}
				WriteError(w, status, err)
			}
		})
	}
}

// IdentifierFrom extracts the tenant identifier from r.
func IdentifierFrom(r *http.Request, localhostAlias string) tenant.Identifier {
	if id := strings.TrimSpace(r.Header.Get(HeaderTenantID)); id != "" {
		return tenant.Identifier{TenantID: id, TenantKey: r.Header.Get(HeaderTenantKey)}
	}
	if key := strings.TrimSpace(r.Header.Get(HeaderTenantKey)); key != "" {
		return tenant.ByKey(key)
	}
	return tenant.ByKey(hostKey(stripPort(r.Host), localhostAlias))
}

// hostKey returns the tenant key encoded in host, or "" when none is.
func hostKey(host, localhostAlias string) string {
	switch {
	case host == "":
		return ""
	case host == "localhost":
		return resolveLocalhost(localhostAlias)
	case net.ParseIP(strings.Trim(host, "[]")) != nil:
		return ""
	}
	label, _, _ := strings.Cut(host, ".")
	return label
}

// resolveLocalhost prefers the env override, then the configured alias.
func resolveLocalhost(configured string) string {
	if alias := os.Getenv("RENTAL_LOCALHOST_ALIAS"); alias != "" {
		return alias
	}
	return configured
}

// StatusFor maps resolution errors to HTTP status codes.
func StatusFor(err error) int {
	switch tenant.CodeOf(err) {
	case tenant.CodeIdentifierMissing:
		return http.StatusBadRequest
	case tenant.CodeNotFound:
		return http.StatusNotFound
	case tenant.CodeInactive:
		return http.StatusForbidden
	case tenant.CodeSubscriptionInvalid:
		return http.StatusPaymentRequired
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, tenant.ErrClosed) || errors.Is(err, tenant.ErrInvalidated) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error body.  Internal errors are not echoed to
// the client.
func WriteError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: string(tenant.CodeOf(err)), Message: err.Error()}
	if body.Error == "" {
		body.Error = strings.ReplaceAll(strings.ToUpper(http.StatusText(status)), " ", "_")
		body.Message = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
