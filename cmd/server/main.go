// cmd/server/main.go
//
// rentalshop – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load configuration (defaults → conf/.env → conf/global.yaml → env).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Optionally connect Vault so `vault:` connection URLs resolve.
//
//  4. Open the registry DB and log the active-tenant count.
//
//  5. Build the tenant manager (lazy, cached per tenant) and start the
//     idle sweep.
//
//  6. Optionally subscribe to Redis for cross-instance invalidation.
//
//  7. Serve /healthz, /metrics, /api/tenant, and the admin endpoint until
//     SIGINT or SIGTERM, then drain HTTP and disconnect every tenant.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/rentalshop/internal/config"
	"github.com/yanizio/rentalshop/internal/database"
	"github.com/yanizio/rentalshop/internal/invalidate"
	"github.com/yanizio/rentalshop/internal/logger"
	"github.com/yanizio/rentalshop/internal/registry"
	"github.com/yanizio/rentalshop/internal/requestinfo"
	"github.com/yanizio/rentalshop/internal/server"
	"github.com/yanizio/rentalshop/internal/tenant"
	"github.com/yanizio/rentalshop/internal/vault"
)

const shutdownTimeout = 20 * time.Second

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("rentalshop: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logOut, err := logger.New(logger.Options{
		Dir:   logger.Dir(cfg.Paths.Root, cfg.Log.Dir),
		Level: cfg.Log.Level,
		Tee:   runningInTTY(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 1.  Secrets ─────────────────────────────────────────────────────
	//
	var secrets database.SecretResolver
	if cfg.Vault.Enabled {
		vc, err := vault.New(ctx, logOut)
		if err != nil {
			return err
		}
		secrets = vc
		logOut.Info("vault online")
	}

	//
	// ── 2.  Registry DB connect ─────────────────────────────────────────
	//
	dsn := cfg.Database.RegistryDSN
	if strings.HasPrefix(dsn, database.SecretPrefix) {
		if secrets == nil {
			return errors.New("database.registry_dsn is a vault reference but vault.enabled is false")
		}
		if dsn, err = secrets.Resolve(ctx, strings.TrimPrefix(dsn, database.SecretPrefix)); err != nil {
			return err
		}
	}
	logOut.Info("connecting to registry DB")
	registryDB, err := database.Open(ctx, dsn, database.RegistryOptions)
	if err != nil {
		return err
	}
	defer registryDB.Close()

	reader := registry.NewReader(registryDB)
	if active, err := reader.ListActive(ctx); err != nil {
		logOut.Warn("active tenant count failed", zap.Error(err))
	} else {
		logOut.Info("registry DB online", zap.Int("active_tenants", len(active)))
	}

	//
	// ── 3.  Tenant manager ──────────────────────────────────────────────
	//
	factory := database.NewFactory(secrets)
	factory.Options = database.Options{
		MaxOpenConns:    cfg.Database.TenantMaxOpenConns,
		MaxIdleConns:    cfg.Database.TenantMaxIdleConns,
		ConnMaxLifetime: cfg.Database.TenantConnMaxLifetime(),
	}
	manager := tenant.New(reader, factory,
		tenant.WithCacheTTL(cfg.Tenant.CacheTTL()),
		tenant.WithMaxEntries(cfg.Tenant.MaxCacheEntries),
		tenant.WithLogger(logOut.Named("tenant")),
	)
	tenant.SetDefault(manager)
	if iv := cfg.Tenant.EvictInterval(); iv > 0 {
		manager.StartEvictor(ctx, iv)
	}

	//
	// ── 4.  Cross-instance invalidation ─────────────────────────────────
	//
	var publisher server.Publisher
	if cfg.Redis.URL != "" {
		rdb, err := invalidate.Connect(ctx, cfg.Redis.URL, 5, time.Second)
		if err != nil {
			return err
		}
		defer rdb.Close()
		publisher = invalidate.NewPublisher(rdb, cfg.Redis.InvalidateChannel)
		listener := invalidate.NewListener(rdb, cfg.Redis.InvalidateChannel, manager, logOut)
		go func() {
			if err := listener.Run(ctx); err != nil {
				logOut.Error("invalidation listener stopped", zap.Error(err))
			}
		}()
	}

	//
	// ── 5.  HTTP ────────────────────────────────────────────────────────
	//
	enricher, err := requestinfo.New(cfg.HTTP.GeoIPDB)
	if err != nil {
		return err
	}
	defer enricher.Close()

	srv := server.New(cfg.HTTP.ListenAddr, server.NewRouter(server.Deps{
		Manager:        manager,
		Registry:       registryDB,
		Publisher:      publisher,
		RequestInfo:    enricher,
		Log:            logOut,
		LocalhostAlias: cfg.Database.LocalhostAlias,
		ForceHTTPS:     cfg.HTTP.ForceHTTPS,
	}))

	serveErr := make(chan error, 1)
	go func() {
		logOut.Info("listening", zap.String("addr", cfg.HTTP.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	//
	// ── 6.  Graceful shutdown ───────────────────────────────────────────
	//
	logOut.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logOut.Warn("http shutdown", zap.Error(err))
	}
	if err := manager.Shutdown(sctx); err != nil {
		logOut.Warn("tenant shutdown", zap.Error(err))
	}
	return nil
}
