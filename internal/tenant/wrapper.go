package tenant

import "context"

// WithTenantContext resolves id through m and runs fn with the tenant's
// client bound to ctx, so DB(ctx, …) anywhere below fn returns that
// client.  fn's results are returned unchanged.
//
// This is the entry point request handlers should use for tenant
// isolation.
func WithTenantContext[R any](ctx context.Context, m *Manager, id Identifier, fn func(ctx context.Context, tc *Context) (R, error)) (R, error) {
	tc, err := m.GetTenantContext(ctx, id)
	if err != nil {
		var zero R
		return zero, err
	}
	return fn(WithContext(ctx, tc), tc)
}
