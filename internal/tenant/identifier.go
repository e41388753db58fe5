package tenant

import (
	"strings"

	"github.com/yanizio/rentalshop/internal/registry"
)

// Identifier names the tenant a request is for.  At least one field must
// be set.  TenantID wins when both are.
type Identifier struct {
	TenantID  string
	TenantKey string
}

// ByID is shorthand for Identifier{TenantID: id}.
func ByID(id string) Identifier { return Identifier{TenantID: id} }

// ByKey is shorthand for Identifier{TenantKey: key}.
func ByKey(key string) Identifier { return Identifier{TenantKey: key} }

func (id Identifier) String() string {
	switch {
	case id.TenantID != "" && id.TenantKey != "":
		return "id=" + id.TenantID + " key=" + id.TenantKey
	case id.TenantID != "":
		return "id=" + id.TenantID
	case id.TenantKey != "":
		return "key=" + id.TenantKey
	default:
		return "<none>"
	}
}

// normalize trims the id and lower-cases the key.
func (id Identifier) normalize() Identifier {
	return Identifier{
		TenantID:  strings.TrimSpace(id.TenantID),
		TenantKey: registry.NormalizeKey(id.TenantKey),
	}
}

// CacheKey returns the key a resolved context is cached under: the id
// when present, otherwise the normalised key.  Callers use it with
// CachedTenantContext and InvalidateTenant.
func (id Identifier) CacheKey() (string, error) {
	n := id.normalize()
	switch {
	case n.TenantID != "":
		return n.TenantID, nil
	case n.TenantKey != "":
		return n.TenantKey, nil
	default:
		return "", &Error{Code: CodeIdentifierMissing, Identifier: id}
	}
}
