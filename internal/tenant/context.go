// context.go defines the resolved tenant Context and the helpers that bind
// it, and its database client, to a context.Context.  Request code reads
// the active client with DB(ctx, fallback) instead of threading a handle
// through every call.
package tenant

import (
	"context"
	"time"

	"github.com/yanizio/rentalshop/internal/database"
	"github.com/yanizio/rentalshop/internal/registry"
)

// Context is what the manager resolves and caches per tenant.  The
// manager owns Client; callers must never Close it.
type Context struct {
	Tenant       *registry.Tenant
	Subscription *registry.Subscription // most recent, nil when none
	Plan         *registry.Plan         // Subscription.Plan, nil when none
	Client       database.Client
	LastAccessed time.Time
}

// clone returns a caller-owned copy stamped with the access time.  The
// cached original is never mutated after insertion.
func (c *Context) clone(now time.Time) *Context {
	cp := *c
	cp.LastAccessed = now
	return &cp
}

type (
	contextKey struct{}
	clientKey  struct{}
)

// WithContext returns a child of ctx carrying tc and binding tc.Client as
// the active database client.
func WithContext(ctx context.Context, tc *Context) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, tc)
	return WithClient(ctx, tc.Client)
}

// FromContext returns the tenant Context bound to ctx.
func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(*Context)
	return tc, ok && tc != nil
}

// WithClient binds c as the active database client for everything that
// runs with the returned context.  Outer and sibling contexts keep their
// own binding.
func WithClient(ctx context.Context, c database.Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFromContext returns the active client, or (nil, false) when none
// is bound.
func ClientFromContext(ctx context.Context) (database.Client, bool) {
	c, ok := ctx.Value(clientKey{}).(database.Client)
	return c, ok && c != nil
}

// DB returns the active client for ctx, or fallback when none is bound.
func DB(ctx context.Context, fallback database.Client) database.Client {
	if c, ok := ClientFromContext(ctx); ok {
		return c
	}
	return fallback
}
