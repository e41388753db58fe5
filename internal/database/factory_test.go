package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSecrets struct {
	refs  []string
	value string
	err   error
}

func (s *stubSecrets) Resolve(_ context.Context, ref string) (string, error) {
	s.refs = append(s.refs, ref)
	return s.value, s.err
}

func TestDriver(t *testing.T) {
	cases := []struct {
		url, driver, dsn string
	}{
		{"postgres://u:p@db:5432/t1", "pgx", "postgres://u:p@db:5432/t1"},
		{"postgresql://db/t1", "pgx", "postgresql://db/t1"},
		{"mysql://u:p@tcp(db:3306)/t1", "mysql", "u:p@tcp(db:3306)/t1"},
		{"u:p@tcp(db:3306)/t1?parseTime=true", "mysql", "u:p@tcp(db:3306)/t1?parseTime=true"},
	}
	for _, tc := range cases {
		driver, dsn := Driver(tc.url)
		assert.Equal(t, tc.driver, driver, tc.url)
		assert.Equal(t, tc.dsn, dsn, tc.url)
	}
}

func TestNewClientIsLazy(t *testing.T) {
	f := NewFactory(nil)

	// Nothing listens on this host; construction must still succeed.
	c, err := f.NewClient(context.Background(), "postgres://tenant1.invalid:5432/tenant1")
	require.NoError(t, err)
	defer c.Close()

	db, ok := c.(*sqlx.DB)
	require.True(t, ok)
	assert.Equal(t, "pgx", db.DriverName())
	assert.Equal(t, TenantOptions.MaxOpenConns, db.Stats().MaxOpenConnections)
}

func TestNewClientReturnsIndependentHandles(t *testing.T) {
	f := NewFactory(nil)
	a, err := f.NewClient(context.Background(), "postgres://tenant1.invalid/t1")
	require.NoError(t, err)
	defer a.Close()
	b, err := f.NewClient(context.Background(), "postgres://tenant1.invalid/t1")
	require.NoError(t, err)
	defer b.Close()

	assert.NotSame(t, a.(*sqlx.DB), b.(*sqlx.DB))
}

func TestNewClientEmptyURL(t *testing.T) {
	_, err := NewFactory(nil).NewClient(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestNewClientResolvesVaultReference(t *testing.T) {
	secrets := &stubSecrets{value: "postgres://resolved.invalid/t1"}
	f := NewFactory(secrets)

	c, err := f.NewClient(context.Background(), "vault:secret/tenants/acme#database_url")
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, []string{"secret/tenants/acme#database_url"}, secrets.refs)
}

func TestNewClientVaultFailures(t *testing.T) {
	_, err := NewFactory(nil).NewClient(context.Background(), "vault:secret/x#y")
	assert.Error(t, err)

	boom := errors.New("sealed")
	_, err = NewFactory(&stubSecrets{err: boom}).NewClient(context.Background(), "vault:secret/x#y")
	assert.ErrorIs(t, err, boom)
}
