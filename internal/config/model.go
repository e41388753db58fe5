// internal/config/model.go
//
// Typed configuration model for rentalshop.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from four layers:
//
//   - compiled-in defaults                   (lowest precedence),
//   - optional `conf/.env`                   (dotenv values),
//   - optional `conf/global.yaml`            (static file),
//   - `RENTAL_`-prefixed environment values  (highest precedence).
//
// Durations are stored as integer milliseconds, so operators can write
// `RENTAL_TENANT__CACHE_TTL_MS=60000` without learning Go duration syntax.
// Use the accessor methods to get time.Duration values.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   - The `Paths` block is filled at runtime; YAML must not try to set it.
package config

import "time"

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
	GeoIPDB    string `koanf:"geoip_db"` // optional GeoLite2 file for access logs
}

// Database holds the registry DSN and the pool limits applied to every
// tenant client.  RegistryDSN may be a `vault:` reference.
type Database struct {
	RegistryDSN             string `koanf:"registry_dsn"                validate:"required"`
	TenantMaxOpenConns      int    `koanf:"tenant_max_open_conns"       validate:"gte=1"`
	TenantMaxIdleConns      int    `koanf:"tenant_max_idle_conns"       validate:"gte=0"`
	TenantConnMaxLifetimeMS int    `koanf:"tenant_conn_max_lifetime_ms" validate:"gte=0"`
	LocalhostAlias          string `koanf:"localhost_alias"`
}

// TenantConnMaxLifetime returns TenantConnMaxLifetimeMS as a duration.
func (d Database) TenantConnMaxLifetime() time.Duration {
	return time.Duration(d.TenantConnMaxLifetimeMS) * time.Millisecond
}

// Tenant tunes the tenant manager cache.
type Tenant struct {
	CacheTTLMS      int `koanf:"cache_ttl_ms"      validate:"gte=1"`
	MaxCacheEntries int `koanf:"max_cache_entries" validate:"gte=1"`
	EvictIntervalMS int `koanf:"evict_interval_ms" validate:"gte=0"`
}

// CacheTTL returns CacheTTLMS as a duration.
func (t Tenant) CacheTTL() time.Duration { return time.Duration(t.CacheTTLMS) * time.Millisecond }

// EvictInterval returns EvictIntervalMS as a duration.  Zero disables the
// background sweep.
func (t Tenant) EvictInterval() time.Duration {
	return time.Duration(t.EvictIntervalMS) * time.Millisecond
}

// Redis configures cross-instance cache invalidation.  An empty URL
// disables it.
type Redis struct {
	URL               string `koanf:"url"                validate:"omitempty,url"`
	InvalidateChannel string `koanf:"invalidate_channel" validate:"required"`
}

// Vault toggles the secret resolver.  Address and token come from the
// standard VAULT_ADDR and VAULT_TOKEN variables.
type Vault struct {
	Enabled bool `koanf:"enabled"`
}

// Log configures the file logger.  Dir is relative to Paths.Root unless
// absolute.
type Log struct {
	Dir   string `koanf:"dir"   validate:"required"`
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // RENTAL_ROOT or discovered parent
}

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Tenant   Tenant   `koanf:"tenant"`
	Redis    Redis    `koanf:"redis"`
	Vault    Vault    `koanf:"vault"`
	Log      Log      `koanf:"log"`
	Paths    Paths    `koanf:"-"`
}

// defaults seeds the koanf tree before any file or env layer.
var defaults = map[string]any{
	"http.listen_addr":                     ":8080",
	"database.tenant_max_open_conns":       5,
	"database.tenant_max_idle_conns":       2,
	"database.tenant_conn_max_lifetime_ms": 30 * 60 * 1000,
	"tenant.cache_ttl_ms":                  5 * 60 * 1000,
	"tenant.max_cache_entries":             50,
	"tenant.evict_interval_ms":             60 * 1000,
	"redis.invalidate_channel":             "rentalshop:tenant:invalidate",
	"log.dir":                              "logs",
	"log.level":                            "info",
}
