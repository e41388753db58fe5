package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/rentalshop/internal/cache"
	"github.com/yanizio/rentalshop/internal/database"
	"github.com/yanizio/rentalshop/internal/metrics"
	"github.com/yanizio/rentalshop/internal/registry"
)

// Static defaults.  Override via options or the config package.
const (
	DefaultCacheTTL   = 5 * time.Minute
	DefaultMaxEntries = 50
	EvictInterval     = time.Minute

	// loadAttempts bounds how often a load overtaken by an invalidation
	// is retried.
	loadAttempts = 3
)

// Registry is the read side of the tenant registry.  *registry.Reader
// satisfies it.  Both lookups return (nil, nil) when nothing matches.
type Registry interface {
	FindTenantByKey(ctx context.Context, key string) (*registry.Tenant, error)
	FindTenantByID(ctx context.Context, id string) (*registry.Tenant, error)
}

// ClientFactory builds a fresh tenant client.  *database.Factory
// satisfies it.
type ClientFactory interface {
	NewClient(ctx context.Context, databaseURL string) (database.Client, error)
}

// Manager resolves tenants, gates them on status and subscription, and
// caches one live client per tenant.  Run one Manager per process.
type Manager struct {
	registry   Registry
	factory    ClientFactory
	log        *zap.Logger
	now        func() time.Time
	ttl        time.Duration
	maxEntries int

	cache *cache.LRU[string, *Context]
	sfg   singleflight.Group

	mu      sync.Mutex // guards flights and closed; held across cache.Add
	flights map[string]*flight
	closed  bool

	closeMu  sync.Mutex // guards draining and closing.Add
	draining bool
	closing  sync.WaitGroup // fire-and-forget disconnects in flight
}

// flight is one in-progress load.  stale is set when the cache key is
// invalidated before the load commits.
type flight struct{ stale bool }

// Option customises a Manager.
type Option func(*Manager)

// WithCacheTTL sets the idle time after which a cached tenant is dropped.
func WithCacheTTL(d time.Duration) Option { return func(m *Manager) { m.ttl = d } }

// WithMaxEntries bounds the number of cached tenants.
func WithMaxEntries(n int) Option { return func(m *Manager) { m.maxEntries = n } }

// WithLogger sets the logger.  Defaults to zap.L().
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// New constructs a Manager.  Non-positive TTL or size fall back to the
// defaults.
func New(reg Registry, factory ClientFactory, opts ...Option) *Manager {
	m := &Manager{
		registry:   reg,
		factory:    factory,
		log:        zap.L(),
		now:        time.Now,
		ttl:        DefaultCacheTTL,
		maxEntries: DefaultMaxEntries,
		flights:    make(map[string]*flight),
	}
	for _, o := range opts {
		o(m)
	}
	if m.ttl <= 0 {
		m.ttl = DefaultCacheTTL
	}
	if m.maxEntries < 1 {
		m.maxEntries = DefaultMaxEntries
	}
	m.cache = cache.New(m.maxEntries, m.ttl,
		cache.WithClock[string, *Context](m.now),
		cache.WithEvict[string, *Context](m.evicted),
	)
	return m
}

// GetTenantContext returns the tenant context for id, from cache when a
// live entry exists, otherwise by resolving it against the registry.
//
// Concurrent first lookups of the same tenant share one resolution.  The
// caller's ctx bounds only its own wait; the shared resolution is not
// interrupted.
func (m *Manager) GetTenantContext(ctx context.Context, id Identifier) (*Context, error) {
	key, err := id.CacheKey()
	if err != nil {
		metrics.TenantLoadErrorsTotal.WithLabelValues(string(CodeIdentifierMissing)).Inc()
		return nil, err
	}

	if tc, ok := m.lookup(key); ok {
		return tc, nil
	}

	ch := m.sfg.DoChan(key, func() (any, error) {
		// Double-check after the singleflight barrier.
		if tc, ok := m.cache.Get(key); ok {
			return tc, nil
		}
		return m.resolve(context.WithoutCancel(ctx), id.normalize(), key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Context).clone(m.now()), nil
	}
}

// CachedTenantContext returns the cached context for cacheKey without
// consulting the registry.  Expired entries are dropped and reported as a
// miss.
func (m *Manager) CachedTenantContext(cacheKey string) (*Context, bool) {
	return m.lookup(cacheKey)
}

// InvalidateTenant drops cacheKey and disconnects its client.  Unknown
// keys are a no-op.  A load of the same key still in progress is not
// cached; it reloads from the registry instead.
func (m *Manager) InvalidateTenant(cacheKey string) {
	m.mu.Lock()
	if f := m.flights[cacheKey]; f != nil {
		f.stale = true
	}
	m.mu.Unlock()
	m.cache.Remove(cacheKey)
}

// EvictTenant drops every cached context belonging to the tenant named by
// ref, which may be its id or its key.  A tenant resolved both by id and
// by key sits under two cache keys; both go.  Loads in progress cannot be
// matched to a tenant before the registry answers, so all of them reload.
// It returns the number of entries removed.
func (m *Manager) EvictTenant(ref string) int {
	id := strings.TrimSpace(ref)
	if id == "" {
		return 0
	}
	key := registry.NormalizeKey(ref)

	m.mu.Lock()
	for _, f := range m.flights {
		f.stale = true
	}
	m.mu.Unlock()

	return m.cache.RemoveFunc(func(k string, tc *Context) bool {
		return k == id || k == key || tc.Tenant.ID == id || tc.Tenant.TenantKey == key
	})
}

// Len reports the number of cached tenants.
func (m *Manager) Len() int { return m.cache.Len() }

// Shutdown empties the cache, disconnects every cached client
// concurrently, and waits for earlier fire-and-forget disconnects.  It
// returns the first disconnect error, or ctx.Err() if ctx ends first.
// Loads still in progress disconnect their client and fail with
// ErrClosed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	contexts := m.cache.Drain()
	metrics.ActiveTenants.Set(0)

	var g errgroup.Group
	for _, tc := range contexts {
		g.Go(tc.Client.Close)
	}
	err := g.Wait()

	m.closeMu.Lock()
	m.draining = true
	m.closeMu.Unlock()

	pending := make(chan struct{})
	go func() {
		m.closing.Wait()
		close(pending)
	}()
	select {
	case <-pending:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	m.log.Info("tenant manager shut down", zap.Int("clients", len(contexts)), zap.Error(err))
	return err
}

// lookup is the hot path: a cache hit refreshes the access time and
// never touches the registry or the factory.
func (m *Manager) lookup(key string) (*Context, bool) {
	tc, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	metrics.TenantCacheHitsTotal.Inc()
	return tc.clone(m.now()), true
}

// resolve loads, gates, and caches one tenant.  id is already
// normalised.  A load overtaken by an invalidation is thrown away and
// retried, so the cache never holds registry data read before the
// invalidation.
func (m *Manager) resolve(ctx context.Context, id Identifier, key string) (*Context, error) {
	f, err := m.track(key)
	if err != nil {
		return nil, err
	}
	defer m.untrack(key, f)

	for attempt := 1; attempt <= loadAttempts; attempt++ {
		tc, err := m.load(ctx, id)
		if err != nil {
			return nil, err
		}
		err = m.commit(key, f, tc)
		if err == nil {
			metrics.TenantLoadTotal.Inc()
			metrics.ActiveTenants.Set(float64(m.cache.Len()))
			m.log.Info("tenant loaded",
				zap.String("tenant", key),
				zap.String("tenant_id", tc.Tenant.ID),
				zap.String("subscription", string(tc.Subscription.Status)),
			)
			return tc, nil
		}
		if !errors.Is(err, ErrInvalidated) {
			return nil, err
		}
		m.log.Debug("tenant invalidated while loading", zap.String("tenant", key), zap.Int("attempt", attempt))
	}
	metrics.TenantLoadErrorsTotal.WithLabelValues("invalidated").Inc()
	return nil, fmt.Errorf("%w: %s", ErrInvalidated, key)
}

// load reads the tenant, applies the status and subscription gates, and
// builds its client.
func (m *Manager) load(ctx context.Context, id Identifier) (*Context, error) {
	ten, err := m.find(ctx, id)
	if err != nil {
		metrics.TenantLoadErrorsTotal.WithLabelValues("registry").Inc()
		return nil, err
	}
	if ten == nil {
		return nil, m.reject(&Error{Code: CodeNotFound, Identifier: id})
	}
	if ten.Status != registry.StatusActive {
		return nil, m.reject(&Error{Code: CodeInactive, Identifier: id, Status: ten.Status})
	}

	now := m.now()
	sub := ten.LatestSubscription()
	if !SubscriptionValid(sub, now) {
		e := &Error{Code: CodeSubscriptionInvalid, Identifier: id}
		if sub != nil {
			e.SubscriptionStatus = sub.Status
		}
		return nil, m.reject(e)
	}

	client, err := m.factory.NewClient(ctx, ten.DatabaseURL)
	if err != nil {
		metrics.TenantLoadErrorsTotal.WithLabelValues("client").Inc()
		return nil, err
	}
	return &Context{
		Tenant:       ten,
		Subscription: sub,
		Plan:         sub.Plan,
		Client:       client,
		LastAccessed: now,
	}, nil
}

func (m *Manager) track(key string) (*flight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	f := &flight{}
	m.flights[key] = f
	return f, nil
}

func (m *Manager) untrack(key string, f *flight) {
	m.mu.Lock()
	if m.flights[key] == f {
		delete(m.flights, key)
	}
	m.mu.Unlock()
}

// commit caches tc unless the manager shut down or key was invalidated
// since the load started.  Either way the new client is disconnected.
func (m *Manager) commit(key string, f *flight, tc *Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		m.disconnect(key, tc.Client)
		return ErrClosed
	case f.stale:
		f.stale = false
		m.mu.Unlock()
		m.disconnect(key, tc.Client)
		return ErrInvalidated
	}
	m.cache.Add(key, tc)
	m.mu.Unlock()
	return nil
}

// find tries the id first, then the key when the id matched nothing.
func (m *Manager) find(ctx context.Context, id Identifier) (*registry.Tenant, error) {
	if id.TenantID != "" {
		ten, err := m.registry.FindTenantByID(ctx, id.TenantID)
		if err != nil || ten != nil || id.TenantKey == "" {
			return ten, err
		}
	}
	return m.registry.FindTenantByKey(ctx, id.TenantKey)
}

func (m *Manager) reject(e *Error) error {
	metrics.TenantLoadErrorsTotal.WithLabelValues(string(e.Code)).Inc()
	m.log.Info("tenant rejected", zap.String("code", string(e.Code)), zap.Stringer("identifier", e.Identifier))
	return e
}
