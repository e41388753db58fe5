// internal/registry/repository.go
//
// Registry query helpers.
//
// Context
// -------
// Reader gives the tenant manager read-only access to the registry:
//
//   - `FindTenantByKey`: resolution by human-chosen slug.
//   - `FindTenantByID`: resolution by stable id.
//   - `ListActive`: startup sanity log, admin tooling.
//
// Workflow
// --------
//  1. The caller supplies a *sqlx.DB connected to the registry database.
//  2. Tenant lookups run one SELECT on `tenants`, then one SELECT for the
//     most recent subscription joined with its plan.
//  3. A missing tenant is (nil, nil).  A tenant without subscriptions has
//     an empty Subscriptions slice.
//  4. Driver errors are returned verbatim; no retries, no logging.
//
// Notes
// -----
//   - Queries use `?` and go through Rebind, so the registry may live on
//     MySQL or PostgreSQL.
//   - Column lists match the struct tags in model.go; update both together.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

const tenantColumns = `id, tenant_key, name, status, database_url, metadata,
               created_at, updated_at`

const (
	tenantByKeyQuery = `
        SELECT ` + tenantColumns + `
        FROM   tenants
        WHERE  tenant_key = ?
        LIMIT  1`

	tenantByIDQuery = `
        SELECT ` + tenantColumns + `
        FROM   tenants
        WHERE  id = ?
        LIMIT  1`

	activeTenantsQuery = `
        SELECT ` + tenantColumns + `
        FROM   tenants
        WHERE  status = ?
        ORDER  BY tenant_key`

	latestSubscriptionQuery = `
        SELECT s.id, s.tenant_id, s.plan_id, s.status, s.trial_ends_at,
               s.current_period_start, s.current_period_end,
               s.created_at, s.updated_at,
               p.name                      AS plan_name,
               COALESCE(p.description, '') AS plan_description,
               p.base_price                AS plan_base_price,
               p.currency                  AS plan_currency,
               p.billing_interval          AS plan_billing_interval,
               p.limits                    AS plan_limits,
               p.created_at                AS plan_created_at,
               p.updated_at                AS plan_updated_at
        FROM   subscriptions s
        JOIN   plans p ON p.id = s.plan_id
        WHERE  s.tenant_id = ?
        ORDER  BY s.created_at DESC
        LIMIT  1`
)

// subscriptionRow is one subscription with plan columns flattened in.
type subscriptionRow struct {
	Subscription
	PlanName            string         `db:"plan_name"`
	PlanDescription     string         `db:"plan_description"`
	PlanBasePrice       float64        `db:"plan_base_price"`
	PlanCurrency        string         `db:"plan_currency"`
	PlanBillingInterval string         `db:"plan_billing_interval"`
	PlanLimits          types.JSONText `db:"plan_limits"`
	PlanCreatedAt       time.Time      `db:"plan_created_at"`
	PlanUpdatedAt       time.Time      `db:"plan_updated_at"`
}

func (r subscriptionRow) subscription() Subscription {
	sub := r.Subscription
	sub.Plan = &Plan{
		ID:              sub.PlanID,
		Name:            r.PlanName,
		Description:     r.PlanDescription,
		BasePrice:       r.PlanBasePrice,
		Currency:        r.PlanCurrency,
		BillingInterval: r.PlanBillingInterval,
		Limits:          r.PlanLimits,
		CreatedAt:       r.PlanCreatedAt,
		UpdatedAt:       r.PlanUpdatedAt,
	}
	return sub
}

// NormalizeKey trims and lower-cases a tenant key.  Keys are stored in
// this form, so lookups compare with plain equality.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Reader reads tenants from the registry database.
type Reader struct {
	db *sqlx.DB
}

// NewReader wraps a registry pool.
func NewReader(db *sqlx.DB) *Reader {
	return &Reader{db: db}
}

// FindTenantByKey loads the tenant whose normalised key matches, with its
// most recent subscription and plan.
func (r *Reader) FindTenantByKey(ctx context.Context, key string) (*Tenant, error) {
	return r.findTenant(ctx, tenantByKeyQuery, NormalizeKey(key))
}

// FindTenantByID loads the tenant with the given id, with its most recent
// subscription and plan.
func (r *Reader) FindTenantByID(ctx context.Context, id string) (*Tenant, error) {
	return r.findTenant(ctx, tenantByIDQuery, id)
}

// ListActive returns every ACTIVE tenant without subscriptions.  Intended
// for admin tooling and startup logging, not the request path.
func (r *Reader) ListActive(ctx context.Context) ([]Tenant, error) {
	var rows []Tenant
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(activeTenantsQuery), StatusActive); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Reader) findTenant(ctx context.Context, q string, arg string) (*Tenant, error) {
	var t Tenant
	if err := r.db.GetContext(ctx, &t, r.db.Rebind(q), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var row subscriptionRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(latestSubscriptionQuery), t.ID)
	switch {
	case err == nil:
		t.Subscriptions = []Subscription{row.subscription()}
	case errors.Is(err, sql.ErrNoRows):
		t.Subscriptions = []Subscription{}
	default:
		return nil, err
	}
	return &t, nil
}
