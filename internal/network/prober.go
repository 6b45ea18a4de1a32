package network

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CheckFunc reports whether the remote is reachable. A nil error means
// connected.
type CheckFunc func(ctx context.Context) error

// PoolCheck pings a pgx pool.
func PoolCheck(pool *pgxpool.Pool) CheckFunc {
	return pool.Ping
}

// RedisCheck pings a redis client.
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// Prober runs a CheckFunc on an interval and feeds the result to a Monitor.
type Prober struct {
	monitor  *Monitor
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewProber creates a Prober. Each check is bounded by the smaller of
// interval and five seconds.
func NewProber(monitor *Monitor, check CheckFunc, interval time.Duration) *Prober {
	timeout := 5 * time.Second
	if interval < timeout {
		timeout = interval
	}
	return &Prober{
		monitor:  monitor,
		check:    check,
		interval: interval,
		timeout:  timeout,
		log:      monitor.log,
	}
}

// Probe runs one check and updates the monitor.
func (p *Prober) Probe(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(checkCtx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		p.log.Debug("remote probe failed", zap.Error(err))
	}
	p.monitor.Set(err == nil)
	return err == nil
}

// Run probes immediately and then on every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
