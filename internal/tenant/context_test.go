package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/rentalshop/internal/database"
)

func TestDBFallsBackOutsideTenantScope(t *testing.T) {
	fallback := &fakeClient{url: "registry"}

	assert.Same(t, fallback, DB(context.Background(), fallback))
	assert.Nil(t, DB(context.Background(), nil))

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	_, ok = ClientFromContext(context.Background())
	assert.False(t, ok)
}

func TestWithClientNestedScopes(t *testing.T) {
	outer := &fakeClient{url: "outer"}
	inner := &fakeClient{url: "inner"}

	octx := WithClient(context.Background(), outer)
	ictx := WithClient(octx, inner)

	assert.Same(t, inner, DB(ictx, nil))
	assert.Same(t, outer, DB(octx, nil))
}

func TestWithTenantContextBindsClient(t *testing.T) {
	h := newHarness(t, nil)
	h.reg.tenants["t-1"] = activeTenant("t-1", "acme", h.clock.Now())

	got, err := WithTenantContext(context.Background(), h.m, ByKey("acme"),
		func(ctx context.Context, tc *Context) (database.Client, error) {
			bound, ok := FromContext(ctx)
			require.True(t, ok)
			assert.Equal(t, tc.Tenant.ID, bound.Tenant.ID)

			// The binding survives a goroutine hop and a suspension point.
			ch := make(chan database.Client, 1)
			go func() {
				time.Sleep(5 * time.Millisecond)
				ch <- DB(ctx, nil)
			}()
			return <-ch, nil
		})
	require.NoError(t, err)

	cached, ok := h.m.CachedTenantContext("acme")
	require.True(t, ok)
	assert.Same(t, cached.Client, got)
}

func TestWithTenantContextIsolatesConcurrentScopes(t *testing.T) {
	h := newHarness(t, nil)
	now := h.clock.Now()
	h.reg.tenants["a"] = activeTenant("a", "alpha", now)
	h.reg.tenants["b"] = activeTenant("b", "beta", now)

	var wg sync.WaitGroup
	urls := make(map[string]string)
	var mu sync.Mutex
	for _, key := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			url, err := WithTenantContext(context.Background(), h.m, ByKey(key),
				func(ctx context.Context, _ *Context) (string, error) {
					time.Sleep(5 * time.Millisecond)
					return DB(ctx, nil).(*fakeClient).url, nil
				})
			assert.NoError(t, err)
			mu.Lock()
			urls[key] = url
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	assert.Equal(t, "postgres://a", urls["alpha"])
	assert.Equal(t, "postgres://b", urls["beta"])
}

func TestWithTenantContextErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.reg.tenants["t-1"] = activeTenant("t-1", "acme", h.clock.Now())

	called := false
	_, err := WithTenantContext(context.Background(), h.m, ByKey("ghost"),
		func(context.Context, *Context) (int, error) {
			called = true
			return 0, nil
		})
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)

	boom := errors.New("handler failed")
	n, err := WithTenantContext(context.Background(), h.m, ByKey("acme"),
		func(context.Context, *Context) (int, error) { return 7, boom })
	assert.Same(t, boom, err)
	assert.Equal(t, 7, n)
}
