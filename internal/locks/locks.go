// Package locks provides the lease that serializes the final status write
// for a service across concurrent workers.
package locks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/helvetia-cloud/worker/internal/clock"
	"github.com/helvetia-cloud/worker/internal/logging"
	"github.com/helvetia-cloud/worker/internal/metrics"
)

// ErrNotAcquired is returned when the retry budget is exhausted without
// winning the lease. The holder is another live job; the caller fails its
// own commit rather than waiting longer.
var ErrNotAcquired = errors.New("status lock not acquired")

const keyPrefix = "status:lock:"

// Key returns the lease key for a service.
func Key(serviceID string) string { return keyPrefix + serviceID }

// Release only deletes the key while it still holds our token, so an
// expired lease taken over by another worker is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Options bound the lease behavior. Zero values fall back to defaults.
type Options struct {
	TTL       time.Duration // lease lifetime, default 10s
	Retries   int           // acquisition attempts after the first, default 10
	BaseDelay time.Duration // delay between attempts, default 200ms
	Jitter    time.Duration // uniform ± spread on the delay, default 100ms
}

func (o *Options) applyDefaults() {
	if o.TTL == 0 {
		o.TTL = 10 * time.Second
	}
	if o.Retries == 0 {
		o.Retries = 10
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = 200 * time.Millisecond
	}
	if o.Jitter == 0 {
		o.Jitter = 100 * time.Millisecond
	}
}

// Locker acquires and releases service status leases in the shared
// key-value store.
type Locker struct {
	rdb  redis.UniversalClient
	clk  clock.Clock
	log  *logging.Logger
	opts Options
}

func New(rdb redis.UniversalClient, clk clock.Clock, log *logging.Logger, opts Options) *Locker {
	opts.applyDefaults()
	return &Locker{rdb: rdb, clk: clk, log: log, opts: opts}
}

// WithLock runs fn while holding the lease for serviceID. The lease is
// released on every exit path, including panics. Acquisition failure
// returns ErrNotAcquired without running fn.
func (l *Locker) WithLock(ctx context.Context, serviceID string, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, serviceID)
	if err != nil {
		return err
	}
	defer lease.Release(ctx)
	return fn(ctx)
}

// Acquire takes the lease for serviceID, retrying with jittered delays.
// Callers should prefer WithLock; Acquire exists for flows that need to
// hold the lease across an interface boundary.
func (l *Locker) Acquire(ctx context.Context, serviceID string) (*Lease, error) {
	key := Key(serviceID)
	token := uuid.NewString()

	attempts := l.opts.Retries + 1
	for i := 0; i < attempts; i++ {
		if i > 0 {
			metrics.LockAcquireRetries.Inc()
			if err := clock.Sleep(ctx, l.clk, l.retryDelay()); err != nil {
				return nil, fmt.Errorf("lock wait for %s: %w", serviceID, err)
			}
		}
		ok, err := l.rdb.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock attempt for %s: %w", serviceID, err)
		}
		if ok {
			return &Lease{locker: l, key: key, token: token}, nil
		}
	}
	return nil, fmt.Errorf("service %s after %d attempts: %w", serviceID, attempts, ErrNotAcquired)
}

func (l *Locker) retryDelay() time.Duration {
	d := l.opts.BaseDelay
	if j := l.opts.Jitter; j > 0 {
		d += time.Duration(rand.Int64N(int64(2*j))) - j
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Lease is a held lock. Release is idempotent.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Release drops the lease if it still carries our token. A lease that
// expired and was re-acquired elsewhere is left alone.
func (le *Lease) Release(ctx context.Context) {
	n, err := releaseScript.Run(ctx, le.locker.rdb, []string{le.key}, le.token).Int()
	if err != nil {
		le.locker.log.Warn("lock release failed", "key", le.key, "error", err)
		return
	}
	if n == 0 {
		le.locker.log.Warn("lock expired before release", "key", le.key)
	}
}
