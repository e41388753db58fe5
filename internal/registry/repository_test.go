// internal/registry/repository_test.go
//
// Unit-tests for registry.Reader using sqlmock.
//
// Run: go test ./internal/registry -v

package registry

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var (
	tenantCols = []string{"id", "tenant_key", "name", "status", "database_url",
		"metadata", "created_at", "updated_at"}
	subCols = []string{"id", "tenant_id", "plan_id", "status", "trial_ends_at",
		"current_period_start", "current_period_end", "created_at", "updated_at",
		"plan_name", "plan_description", "plan_base_price", "plan_currency",
		"plan_billing_interval", "plan_limits", "plan_created_at", "plan_updated_at"}
)

func newMockReader(t *testing.T) (*Reader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReader(sqlx.NewDb(db, "mysql")), mock
}

func TestFindTenantByKeyWithSubscription(t *testing.T) {
	r, mock := newMockReader(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	trialEnd := now.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM tenants WHERE tenant_key = ? LIMIT 1`)).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(tenantCols).
			AddRow("t1", "acme", "Acme Rentals", "ACTIVE", "postgres://tenant1",
				[]byte(`{"region":"eu"}`), now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subscriptions s JOIN plans p ON p.id = s.plan_id WHERE s.tenant_id = ? ORDER BY s.created_at DESC LIMIT 1`)).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(subCols).
			AddRow("s1", "t1", "p1", "TRIAL", trialEnd, now, now.Add(30*24*time.Hour), now, now,
				"Starter", "", 19.0, "EUR", "MONTHLY", []byte(`{"outlets":1}`), now, now))

	got, err := r.FindTenantByKey(context.Background(), "  ACME ")
	if err != nil {
		t.Fatalf("FindTenantByKey error: %v", err)
	}
	if got == nil || got.ID != "t1" || got.Status != StatusActive {
		t.Fatalf("unexpected tenant: %#v", got)
	}
	sub := got.LatestSubscription()
	if sub == nil || sub.Status != SubscriptionTrial {
		t.Fatalf("unexpected subscription: %#v", got.Subscriptions)
	}
	if sub.TrialEndsAt == nil || !sub.TrialEndsAt.Equal(trialEnd) {
		t.Fatalf("trial end not scanned: %v", sub.TrialEndsAt)
	}
	if sub.Plan == nil || sub.Plan.ID != "p1" || sub.Plan.Name != "Starter" {
		t.Fatalf("plan not attached: %#v", sub.Plan)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestFindTenantByIDWithoutSubscription(t *testing.T) {
	r, mock := newMockReader(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM tenants WHERE id = ? LIMIT 1`)).
		WithArgs("t2").
		WillReturnRows(sqlmock.NewRows(tenantCols).
			AddRow("t2", "bravo", "Bravo", "ACTIVE", "postgres://tenant2", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subscriptions s`)).
		WithArgs("t2").
		WillReturnRows(sqlmock.NewRows(subCols))

	got, err := r.FindTenantByID(context.Background(), "t2")
	if err != nil {
		t.Fatalf("FindTenantByID error: %v", err)
	}
	if got == nil || len(got.Subscriptions) != 0 || got.LatestSubscription() != nil {
		t.Fatalf("expected tenant without subscriptions, got %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestFindTenantNotFound(t *testing.T) {
	r, mock := newMockReader(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM tenants WHERE id = ?`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(tenantCols))

	got, err := r.FindTenantByID(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestFindTenantPropagatesDriverError(t *testing.T) {
	r, mock := newMockReader(t)
	boom := errors.New("connection refused")

	mock.ExpectQuery(regexp.QuoteMeta(`FROM tenants WHERE tenant_key = ?`)).
		WithArgs("acme").
		WillReturnError(boom)

	if _, err := r.FindTenantByKey(context.Background(), "acme"); !errors.Is(err, boom) {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestListActive(t *testing.T) {
	r, mock := newMockReader(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM tenants WHERE status = ? ORDER BY tenant_key`)).
		WithArgs("ACTIVE").
		WillReturnRows(sqlmock.NewRows(tenantCols).
			AddRow("t1", "acme", "Acme", "ACTIVE", "postgres://tenant1", nil, now, now).
			AddRow("t2", "bravo", "Bravo", "ACTIVE", "postgres://tenant2", nil, now, now))

	got, err := r.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive error: %v", err)
	}
	if len(got) != 2 || got[0].TenantKey != "acme" {
		t.Fatalf("unexpected result: %#v", got)
	}
}

func TestNormalizeKey(t *testing.T) {
	for in, want := range map[string]string{"  Foo  ": "foo", "foo": "foo", "ACME-Shop": "acme-shop"} {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}
