// evictor.go houses eviction handling for Manager.  Entries leave the
// cache when:
//
//   - a lookup finds them idle longer than the TTL
//   - the cache grows past its size limit (least recently used first)
//   - InvalidateTenant or EvictTenant removes them
//   - the optional background sweep finds them idle
//
// Each eviction is logged, updates Prometheus counters, and disconnects
// the tenant client in the background.  Disconnect failures are logged and
// dropped; they never reach the caller that triggered the eviction.
package tenant

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/rentalshop/internal/cache"
	"github.com/yanizio/rentalshop/internal/database"
	"github.com/yanizio/rentalshop/internal/metrics"
)

// StartEvictor sweeps idle tenants every interval until ctx is done.
// Lookups already expire entries lazily; the sweep releases clients of
// tenants nobody asks for any more.
func (m *Manager) StartEvictor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = EvictInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() int {
	n := m.cache.RemoveExpired()
	if n > 0 {
		m.log.Debug("tenant sweep", zap.Int("evicted", n), zap.Int("cached", m.cache.Len()))
	}
	return n
}

// evicted is the cache callback.  It runs outside the cache lock.
func (m *Manager) evicted(key string, tc *Context, reason cache.Reason) {
	metrics.TenantEvictTotal.WithLabelValues(string(reason)).Inc()
	metrics.ActiveTenants.Set(float64(m.cache.Len()))
	m.log.Info("tenant evicted", zap.String("tenant", key), zap.String("reason", string(reason)))
	m.disconnect(key, tc.Client)
}

// disconnect closes c without blocking the caller.  Once Shutdown is
// waiting on closing it closes inline instead.
func (m *Manager) disconnect(key string, c database.Client) {
	if c == nil {
		return
	}
	m.closeMu.Lock()
	if m.draining {
		m.closeMu.Unlock()
		m.closeClient(key, c)
		return
	}
	m.closing.Add(1)
	m.closeMu.Unlock()

	go func() {
		defer m.closing.Done()
		m.closeClient(key, c)
	}()
}

func (m *Manager) closeClient(key string, c database.Client) {
	if err := c.Close(); err != nil {
		metrics.TenantDisconnectErrorsTotal.Inc()
		m.log.Warn("tenant disconnect failed", zap.String("tenant", key), zap.Error(err))
	}
}
