package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Failover serves from primary until it errors, then switches to fallback
// and probes primary again after checkInterval.
type Failover struct {
	primary  Limiter
	fallback Limiter
	logger   *zerolog.Logger

	isDown        atomic.Bool
	mu            sync.Mutex
	lastCheck     time.Time
	checkInterval time.Duration
}

// NewFailover wires a primary with a fallback. Either may be nil-free; when
// no primary is configured pass the fallback as both.
func NewFailover(primary, fallback Limiter, logger *zerolog.Logger) *Failover {
	return &Failover{
		primary:       primary,
		fallback:      fallback,
		logger:        logger,
		checkInterval: time.Minute,
	}
}

func (f *Failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) >= f.checkInterval {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *Failover) markDown(err error) {
	if f.isDown.CompareAndSwap(false, true) {
		f.logger.Warn().Err(err).Msg("rate limiter primary down, using fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *Failover) markUp() {
	if f.isDown.CompareAndSwap(true, false) {
		f.logger.Info().Msg("rate limiter primary recovered")
	}
}

// Allow implements Limiter.
func (f *Failover) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if f.usePrimary() {
		ok, err := f.primary.Allow(ctx, key, limit, window)
		if err == nil {
			f.markUp()
			return ok, nil
		}
		f.markDown(err)
	}
	return f.fallback.Allow(ctx, key, limit, window)
}
