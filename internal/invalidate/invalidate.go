// Package invalidate fans tenant cache invalidations out across every
// process sharing one registry.  An admin call on one instance publishes
// the tenant's id or key on a Redis channel; each instance's Listener
// evicts that tenant from its own tenant manager.
//
// The payload is the bare id or key.  Receiving one for a tenant that is
// not cached, including one this process published itself, is a no-op.
package invalidate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrBadURL   = errors.New("invalidate: failed to parse redis url")
	ErrNotReady = errors.New("invalidate: redis not ready")
)

// Connect parses url and pings until Redis answers, the attempts run out,
// or ctx ends.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrBadURL, err)
	}
	if attempts < 1 {
		attempts = 1
	}

	client := redis.NewClient(opts)
	for range attempts {
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(interval):
		}
	}
	_ = client.Close()
	return nil, ErrNotReady
}

// Invalidator is the part of the tenant manager the listener drives.
type Invalidator interface {
	EvictTenant(ref string) int
}

// Listener applies invalidations received on a Redis channel.
type Listener struct {
	client  redis.UniversalClient
	channel string
	target  Invalidator
	log     *zap.Logger
}

// NewListener returns a Listener; call Run to start consuming.
func NewListener(client redis.UniversalClient, channel string, target Invalidator, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.L()
	}
	return &Listener{client: client, channel: channel, target: target, log: log.Named("invalidate")}
}

// Run subscribes and blocks until ctx ends or the subscription closes.
// go-redis reconnects dropped subscriptions on its own.
func (l *Listener) Run(ctx context.Context) error {
	sub := l.client.Subscribe(ctx, l.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	l.log.Info("listening for tenant invalidations", zap.String("channel", l.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(msg.Payload)
		}
	}
}

func (l *Listener) handle(payload string) {
	ref := strings.TrimSpace(payload)
	if ref == "" {
		l.log.Warn("empty invalidation message ignored")
		return
	}
	n := l.target.EvictTenant(ref)
	l.log.Info("tenant invalidated by peer", zap.String("tenant", ref), zap.Int("evicted", n))
}

// Publisher announces invalidations to every listener on the channel.
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

func NewPublisher(client redis.UniversalClient, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish sends a tenant id or key to the channel.
func (p *Publisher) Publish(ctx context.Context, ref string) error {
	return p.client.Publish(ctx, p.channel, ref).Err()
}
