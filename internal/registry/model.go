// internal/registry/model.go
//
// Registry row models.
//
// Context
// -------
// The registry ("main") database lists every tenant of the platform, the
// plans on offer, and each tenant's subscription history.  Provisioning
// writes these tables; this service only reads them.
//
// Schema reference
//
//	CREATE TABLE tenants (
//	    id            VARCHAR(64)   PRIMARY KEY,
//	    tenant_key    VARCHAR(128)  NOT NULL UNIQUE,   -- stored trimmed, lower-case
//	    name          VARCHAR(256)  NOT NULL,
//	    status        VARCHAR(16)   NOT NULL,          -- ACTIVE | INACTIVE | SUSPENDED
//	    database_url  VARCHAR(1024) NOT NULL,
//	    metadata      JSON          NULL,
//	    created_at    TIMESTAMP     NOT NULL,
//	    updated_at    TIMESTAMP     NOT NULL
//	);
//
//	CREATE TABLE plans (
//	    id                VARCHAR(64)   PRIMARY KEY,
//	    name              VARCHAR(128)  NOT NULL,
//	    description       TEXT          NULL,
//	    base_price        DECIMAL(12,2) NOT NULL,
//	    currency          CHAR(3)       NOT NULL,
//	    billing_interval  VARCHAR(16)   NOT NULL,
//	    limits            JSON          NULL,
//	    created_at        TIMESTAMP     NOT NULL,
//	    updated_at        TIMESTAMP     NOT NULL
//	);
//
//	CREATE TABLE subscriptions (
//	    id                    VARCHAR(64) PRIMARY KEY,
//	    tenant_id             VARCHAR(64) NOT NULL REFERENCES tenants(id),
//	    plan_id               VARCHAR(64) NOT NULL REFERENCES plans(id),
//	    status                VARCHAR(16) NOT NULL,  -- TRIAL | ACTIVE | PAST_DUE | CANCELLED
//	    trial_ends_at         TIMESTAMP   NULL,
//	    current_period_start  TIMESTAMP   NOT NULL,
//	    current_period_end    TIMESTAMP   NOT NULL,
//	    created_at            TIMESTAMP   NOT NULL,
//	    updated_at            TIMESTAMP   NOT NULL
//	);
//
// Notes
// -----
//   - MySQL DSNs need parseTime=true so TIMESTAMP scans into time.Time.
//   - Nullable timestamps are *time.Time; callers must nil-check.
package registry

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Status is the lifecycle state of a tenant row.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// SubscriptionStatus is the billing state of a subscription row.
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "TRIAL"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// Tenant mirrors one row in `tenants`.  Subscriptions holds at most the
// single most recent subscription when loaded through Reader.
type Tenant struct {
	ID            string         `db:"id"            json:"id"`
	TenantKey     string         `db:"tenant_key"    json:"tenantKey"`
	Name          string         `db:"name"          json:"name"`
	Status        Status         `db:"status"        json:"status"`
	DatabaseURL   string         `db:"database_url"  json:"-"`
	Metadata      types.JSONText `db:"metadata"      json:"metadata,omitempty"`
	CreatedAt     time.Time      `db:"created_at"    json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at"    json:"updatedAt"`
	Subscriptions []Subscription `db:"-"             json:"subscriptions"`
}

// LatestSubscription returns the first loaded subscription, or nil.
func (t *Tenant) LatestSubscription() *Subscription {
	if t == nil || len(t.Subscriptions) == 0 {
		return nil
	}
	return &t.Subscriptions[0]
}

// Subscription mirrors one row in `subscriptions` with its plan attached.
type Subscription struct {
	ID                 string             `db:"id"                   json:"id"`
	TenantID           string             `db:"tenant_id"            json:"tenantId"`
	PlanID             string             `db:"plan_id"              json:"planId"`
	Status             SubscriptionStatus `db:"status"               json:"status"`
	TrialEndsAt        *time.Time         `db:"trial_ends_at"        json:"trialEndsAt,omitempty"`
	CurrentPeriodStart time.Time          `db:"current_period_start" json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `db:"current_period_end"   json:"currentPeriodEnd"`
	CreatedAt          time.Time          `db:"created_at"           json:"createdAt"`
	UpdatedAt          time.Time          `db:"updated_at"           json:"updatedAt"`
	Plan               *Plan              `db:"-"                    json:"plan,omitempty"`
}

// Plan mirrors one row in `plans`.  The tenant manager never inspects it;
// it is handed to request code as part of the tenant context.
type Plan struct {
	ID              string         `db:"id"               json:"id"`
	Name            string         `db:"name"             json:"name"`
	Description     string         `db:"description"      json:"description,omitempty"`
	BasePrice       float64        `db:"base_price"       json:"basePrice"`
	Currency        string         `db:"currency"         json:"currency"`
	BillingInterval string         `db:"billing_interval" json:"billingInterval"`
	Limits          types.JSONText `db:"limits"           json:"limits,omitempty"`
	CreatedAt       time.Time      `db:"created_at"       json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at"       json:"updatedAt"`
}
