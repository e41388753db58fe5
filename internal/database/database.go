// Package database centralises sqlx connection helpers.  Two drivers are
// linked in: go-sql-driver/mysql (also MariaDB) and jackc/pgx for
// PostgreSQL.  The driver is picked from the connection URL.
//
// Public entry points:
//
//	Open(ctx, url, opts)        – registry pool, pings before returning.
//	Factory.NewClient(ctx, url) – per-tenant pool, lazy, never pings.
//
// Callers Close() the returned handle when done.  Tenant handles are
// owned by the tenant manager.
package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// ErrEmptyURL is returned when no connection string was supplied.
var ErrEmptyURL = errors.New("database: empty connection url")

// Client is the tenant-scoped handle handed to request code.  *sqlx.DB
// satisfies it; Close is the disconnect and belongs to the tenant manager.
type Client interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

var _ Client = (*sqlx.DB)(nil)

// Options tunes one connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RegistryOptions suit the single process-wide registry pool.
var RegistryOptions = Options{
	MaxOpenConns:    15,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
}

// TenantOptions keep per-tenant resource usage small.
var TenantOptions = Options{
	MaxOpenConns:    5,
	MaxIdleConns:    2,
	ConnMaxLifetime: 30 * time.Minute,
}

// Driver maps a connection URL to a database/sql driver name and the DSN
// that driver expects.
//
//	postgres://…, postgresql://… → pgx, unchanged
//	mysql://user:pw@tcp(h:3306)/db → mysql, scheme stripped
//	anything else                → mysql, unchanged
func Driver(url string) (driver, dsn string) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "pgx", url
	case strings.HasPrefix(url, "mysql://"):
		return "mysql", strings.TrimPrefix(url, "mysql://")
	default:
		return "mysql", url
	}
}

// Open returns a pinged *sqlx.DB.  Used for the registry database so
// bootstrap fails fast when it is unreachable.
func Open(ctx context.Context, url string, opts Options) (*sqlx.DB, error) {
	db, err := open(url, opts)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// open builds the pool without touching the network.  sql.Open only
// validates its arguments; connections are dialled on first use.
func open(url string, opts Options) (*sqlx.DB, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrEmptyURL
	}
	driver, dsn := Driver(url)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return db, nil
}
