package tenant

import (
	"errors"
	"fmt"

	"github.com/yanizio/rentalshop/internal/registry"
)

// Code is the stable, machine-readable kind of a resolution failure.
// Request handlers map it to a response (400, 404, 403, 402).
type Code string

const (
	CodeIdentifierMissing   Code = "TENANT_IDENTIFIER_MISSING"
	CodeNotFound            Code = "TENANT_NOT_FOUND"
	CodeInactive            Code = "TENANT_INACTIVE"
	CodeSubscriptionInvalid Code = "TENANT_SUBSCRIPTION_INVALID"
)

// Error is returned by the resolution gates.  These failures are
// deterministic; retrying the same identifier gives the same answer.
type Error struct {
	Code       Code
	Identifier Identifier

	// Status is the tenant's actual status for CodeInactive.
	Status registry.Status

	// SubscriptionStatus is set for CodeSubscriptionInvalid when a
	// subscription exists; empty means the tenant has none.
	SubscriptionStatus registry.SubscriptionStatus
}

// Lifecycle failures.  Neither says anything about the tenant itself.
var (
	// ErrClosed is returned once Shutdown has started.
	ErrClosed = errors.New("tenant: manager shut down")

	// ErrInvalidated is returned when every attempt to load a tenant was
	// overtaken by an invalidation of the same cache key.
	ErrInvalidated = errors.New("tenant: invalidated while loading")
)

// Sentinels for errors.Is.  Any *Error with the same Code matches.
var (
	ErrIdentifierMissing   = &Error{Code: CodeIdentifierMissing}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrInactive            = &Error{Code: CodeInactive}
	ErrSubscriptionInvalid = &Error{Code: CodeSubscriptionInvalid}
)

func (e *Error) Error() string {
	switch e.Code {
	case CodeIdentifierMissing:
		return "tenant: identifier missing, tenant id or tenant key required"
	case CodeNotFound:
		return fmt.Sprintf("tenant: not found (%s)", e.Identifier)
	case CodeInactive:
		return fmt.Sprintf("tenant: %s is %s", e.Identifier, e.Status)
	case CodeSubscriptionInvalid:
		if e.SubscriptionStatus == "" {
			return fmt.Sprintf("tenant: %s has no subscription", e.Identifier)
		}
		return fmt.Sprintf("tenant: %s subscription %s does not grant access", e.Identifier, e.SubscriptionStatus)
	default:
		return fmt.Sprintf("tenant: %s (%s)", e.Code, e.Identifier)
	}
}

// Is matches on Code so callers can write errors.Is(err, tenant.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the Code carried by err, or "" when err is not a
// resolution failure (for example a driver error).
func CodeOf(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
