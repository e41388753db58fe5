package tenant

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yanizio/rentalshop/internal/database"
	"github.com/yanizio/rentalshop/internal/registry"
)

// fakeClient counts disconnects.  The embedded interface is nil; the
// manager only ever calls Close.
type fakeClient struct {
	database.Client
	url      string
	closes   atomic.Int32
	closeErr error
}

func (c *fakeClient) Close() error {
	c.closes.Add(1)
	return c.closeErr
}

type fakeFactory struct {
	mu       sync.Mutex
	built    []*fakeClient
	err      error
	closeErr error
}

func (f *fakeFactory) NewClient(_ context.Context, url string) (database.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeClient{url: url, closeErr: f.closeErr}
	f.built = append(f.built, c)
	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

func (f *fakeFactory) totalCloses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.built {
		n += int(c.closes.Load())
	}
	return n
}

type fakeRegistry struct {
	mu      sync.Mutex
	tenants map[string]registry.Tenant // by id
	byID    int
	byKey   int
	err     error
	gate    chan struct{} // when set, lookups block until closed
	entered chan struct{} // when set, signalled once each lookup has read
}

func newFakeRegistry(tenants ...registry.Tenant) *fakeRegistry {
	r := &fakeRegistry{tenants: make(map[string]registry.Tenant)}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

func (r *fakeRegistry) wait() {
	if r.entered != nil {
		select {
		case r.entered <- struct{}{}:
		default:
		}
	}
	if r.gate != nil {
		<-r.gate
	}
}

// Lookups read the map first and then wait on the gate, so a gated
// lookup holds the answer the registry gave before the gate opened.
func (r *fakeRegistry) FindTenantByID(_ context.Context, id string) (*registry.Tenant, error) {
	ten, err := r.read(func() *registry.Tenant {
		r.byID++
		if t, ok := r.tenants[id]; ok {
			return &t
		}
		return nil
	})
	r.wait()
	return ten, err
}

func (r *fakeRegistry) FindTenantByKey(_ context.Context, key string) (*registry.Tenant, error) {
	ten, err := r.read(func() *registry.Tenant {
		r.byKey++
		for _, t := range r.tenants {
			if t.TenantKey == key {
				t := t
				return &t
			}
		}
		return nil
	})
	r.wait()
	return ten, err
}

func (r *fakeRegistry) read(find func() *registry.Tenant) (*registry.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ten := find()
	if r.err != nil {
		return nil, r.err
	}
	return ten, nil
}

// set replaces a tenant while lookups may be running.
func (r *fakeRegistry) set(t registry.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
}

func (r *fakeRegistry) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID + r.byKey
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// activeTenant builds an ACTIVE tenant with a subscription valid for the
// next 30 days relative to now.
func activeTenant(id, key string, now time.Time) registry.Tenant {
	plan := &registry.Plan{ID: "plan-" + id, Name: "Starter", Currency: "EUR"}
	return registry.Tenant{
		ID:          id,
		TenantKey:   key,
		Name:        "Tenant " + key,
		Status:      registry.StatusActive,
		DatabaseURL: "postgres://" + id,
		Subscriptions: []registry.Subscription{{
			ID:                 uuid.NewString(),
			TenantID:           id,
			PlanID:             plan.ID,
			Status:             registry.SubscriptionActive,
			CurrentPeriodStart: now.Add(-24 * time.Hour),
			CurrentPeriodEnd:   now.Add(30 * 24 * time.Hour),
			CreatedAt:          now.Add(-24 * time.Hour),
			Plan:               plan,
		}},
	}
}

type harness struct {
	m       *Manager
	reg     *fakeRegistry
	factory *fakeFactory
	clock   *fakeClock
}

func newHarness(t *testing.T, tenants []registry.Tenant, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		reg:     newFakeRegistry(tenants...),
		factory: &fakeFactory{},
		clock:   newFakeClock(),
	}
	opts = append([]Option{WithClock(h.clock.Now)}, opts...)
	h.m = New(h.reg, h.factory, opts...)
	t.Cleanup(func() { _ = h.m.Shutdown(context.Background()) })
	return h
}
