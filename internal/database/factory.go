package database

import (
	"context"
	"fmt"
	"strings"
)

// SecretPrefix marks a connection URL stored in Vault rather than inline,
// e.g. "vault:secret/tenants/acme#database_url".
const SecretPrefix = "vault:"

// SecretResolver turns a secret reference into its plain value.
// *vault.Client satisfies it.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Factory builds one independent tenant pool per call.  It caches
// nothing; the tenant manager owns reuse and disconnects.
type Factory struct {
	Options Options
	Secrets SecretResolver // optional; required only for vault: URLs
}

// NewFactory returns a Factory using TenantOptions.
func NewFactory(secrets SecretResolver) *Factory {
	return &Factory{Options: TenantOptions, Secrets: secrets}
}

// NewClient opens a lazy pool for databaseURL.  No connection is made
// until the first query.
func (f *Factory) NewClient(ctx context.Context, databaseURL string) (Client, error) {
	url, err := f.resolve(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	db, err := open(url, f.Options)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (f *Factory) resolve(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, SecretPrefix) {
		return url, nil
	}
	if f.Secrets == nil {
		return "", fmt.Errorf("database: %q needs a secret resolver", url)
	}
	plain, err := f.Secrets.Resolve(ctx, strings.TrimPrefix(url, SecretPrefix))
	if err != nil {
		return "", fmt.Errorf("database: resolve secret: %w", err)
	}
	return plain, nil
}
