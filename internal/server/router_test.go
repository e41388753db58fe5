package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/rentalshop/internal/database"
	"github.com/yanizio/rentalshop/internal/registry"
	"github.com/yanizio/rentalshop/internal/tenant"
)

type pingErr struct{ err error }

func (p pingErr) PingContext(context.Context) error { return p.err }

type fakeClient struct {
	database.Client
	pingErr error
}

func (c *fakeClient) PingContext(context.Context) error { return c.pingErr }
func (c *fakeClient) Close() error                      { return nil }

type fakeFactory struct{ pingErr error }

func (f fakeFactory) NewClient(context.Context, string) (database.Client, error) {
	return &fakeClient{pingErr: f.pingErr}, nil
}

type oneTenant struct{ t registry.Tenant }

func (o oneTenant) FindTenantByKey(_ context.Context, key string) (*registry.Tenant, error) {
	if key != o.t.TenantKey {
		return nil, nil
	}
	t := o.t
	return &t, nil
}

func (o oneTenant) FindTenantByID(_ context.Context, id string) (*registry.Tenant, error) {
	if id != o.t.ID {
		return nil, nil
	}
	t := o.t
	return &t, nil
}

type recordingPublisher struct {
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string) error {
	p.keys = append(p.keys, key)
	return p.err
}

func newTestRouter(t *testing.T, f fakeFactory, pub Publisher, regErr error) (http.Handler, *tenant.Manager) {
	t.Helper()
	ten := registry.Tenant{
		ID: "Ck9XyZ", TenantKey: "acme", Name: "Acme Rentals",
		Status:      registry.StatusActive,
		DatabaseURL: "postgres://secret@db/acme",
		Subscriptions: []registry.Subscription{{
			ID: "s-1", Status: registry.SubscriptionActive,
			CurrentPeriodEnd: time.Now().Add(time.Hour),
			Plan:             &registry.Plan{ID: "p-1", Name: "Pro"},
		}},
	}
	m := tenant.New(oneTenant{ten}, f, tenant.WithLogger(zap.NewNop()))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return NewRouter(Deps{
		Manager:   m,
		Registry:  pingErr{regErr},
		Publisher: pub,
		Log:       zap.NewNop(),
	}), m
}

func serve(h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, fakeFactory{}, nil, nil)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", nil).Code)

	h, _ = newTestRouter(t, fakeFactory{}, nil, errors.New("down"))
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, http.MethodGet, "/healthz", nil).Code)
}

func TestTenantInfo(t *testing.T) {
	h, _ := newTestRouter(t, fakeFactory{}, nil, nil)

	rec := serve(h, http.MethodGet, "/api/tenant", map[string]string{"X-Tenant-Key": "acme"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret@db")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body struct {
		Tenant       registry.Tenant       `json:"tenant"`
		Subscription registry.Subscription `json:"subscription"`
		Plan         registry.Plan         `json:"plan"`
		Database     string                `json:"database"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Ck9XyZ", body.Tenant.ID)
	assert.Equal(t, registry.SubscriptionActive, body.Subscription.Status)
	assert.Equal(t, "Pro", body.Plan.Name)
	assert.Equal(t, "ok", body.Database)

	rec = serve(h, http.MethodGet, "/api/tenant", map[string]string{"X-Tenant-Key": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantInfoReportsUnreachableDatabase(t *testing.T) {
	h, _ := newTestRouter(t, fakeFactory{pingErr: errors.New("refused")}, nil, nil)

	rec := serve(h, http.MethodGet, "/api/tenant", map[string]string{"X-Tenant-Key": "acme"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unreachable"`)
}

func TestInvalidate(t *testing.T) {
	pub := &recordingPublisher{}
	h, m := newTestRouter(t, fakeFactory{}, pub, nil)

	serve(h, http.MethodGet, "/api/tenant", map[string]string{"X-Tenant-Key": "acme"})
	require.Equal(t, 1, m.Len())

	rec := serve(h, http.MethodDelete, "/admin/tenants/ACME/cache", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, m.Len())
	assert.Equal(t, []string{"ACME"}, pub.keys)

	pub.err = errors.New("redis down")
	rec = serve(h, http.MethodDelete, "/admin/tenants/acme/cache", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInvalidateByIDDropsEveryCacheKey(t *testing.T) {
	h, m := newTestRouter(t, fakeFactory{}, nil, nil)

	rec := serve(h, http.MethodGet, "/api/tenant", map[string]string{"X-Tenant-ID": "Ck9XyZ"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(h, http.MethodGet, "/api/tenant", map[string]string{"X-Tenant-Key": "acme"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, m.Len())

	rec = serve(h, http.MethodDelete, "/admin/tenants/Ck9XyZ/cache", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, m.Len())
	_, ok := m.CachedTenantContext("Ck9XyZ")
	assert.False(t, ok)
}
