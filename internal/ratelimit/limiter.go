package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/opsplane/opsplane-backend/internal/monitor"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

const (
	defaultWindow        = time.Minute
	defaultSoftThreshold = 60
	defaultHardThreshold = 120
	defaultBlockDuration = 5 * time.Minute
	defaultSoftDelayStep = 200 * time.Millisecond
	maxSoftDelay         = 2 * time.Second
)

// Decision is the limiter verdict for one request.
type Decision struct {
	Allowed bool
	// Delay is injected before serving when the soft threshold was crossed.
	Delay time.Duration
	// RetryAfter is how long a refused client must wait.
	RetryAfter time.Duration
}

type LimiterOptions struct {
	RedisClient    redis.UniversalClient
	MonitorService monitor.MonitorServiceInterface

	Window        time.Duration
	SoftThreshold int
	HardThreshold int
	BlockDuration time.Duration
}

// Limiter keeps a sliding request window per identity plus a block bucket
// that outlives the window once the hard threshold is crossed.
type Limiter struct {
	redisClient    redis.UniversalClient
	monitorService monitor.MonitorServiceInterface

	window        time.Duration
	softThreshold int
	hardThreshold int
	blockDuration time.Duration
}

func NewLimiter(opts LimiterOptions) (*Limiter, error) {
	if opts.RedisClient == nil {
		return nil, errors.New("a redis client is required for the rate limiter")
	}
	if opts.SoftThreshold > 0 && opts.HardThreshold > 0 && opts.SoftThreshold >= opts.HardThreshold {
		return nil, errors.New("the soft threshold must be below the hard threshold")
	}

	l := &Limiter{
		redisClient:    opts.RedisClient,
		monitorService: opts.MonitorService,
		window:         opts.Window,
		softThreshold:  opts.SoftThreshold,
		hardThreshold:  opts.HardThreshold,
		blockDuration:  opts.BlockDuration,
	}
	if l.window <= 0 {
		l.window = defaultWindow
	}
	if l.softThreshold <= 0 {
		l.softThreshold = defaultSoftThreshold
	}
	if l.hardThreshold <= 0 {
		l.hardThreshold = defaultHardThreshold
	}
	if l.blockDuration <= 0 {
		l.blockDuration = defaultBlockDuration
	}
	return l, nil
}

// Allow records the request against the identity's window and decides its
// fate. Redis being unreachable fails open: throttling is protection, not a
// correctness dependency.
func (l *Limiter) Allow(ctx context.Context, identity Identity) Decision {
	blockKey := identity.BucketKey("block")
	ttl, err := l.redisClient.TTL(ctx, blockKey).Result()
	if err != nil {
		log.Ctx(ctx).WithError(err).Warnf("rate limiter block lookup failed, failing open")
		return Decision{Allowed: true}
	}
	if ttl > 0 {
		return Decision{Allowed: false, RetryAfter: ttl}
	}

	count, err := l.slideWindow(ctx, identity.BucketKey("window"))
	if err != nil {
		log.Ctx(ctx).WithError(err).Warnf("rate limiter window update failed, failing open")
		return Decision{Allowed: true}
	}

	switch {
	case count > int64(l.hardThreshold):
		if err = l.redisClient.Set(ctx, blockKey, "1", l.blockDuration).Err(); err != nil {
			log.Ctx(ctx).WithError(err).Warnf("arming rate limit block for %s", blockKey)
		}
		l.countHit(identity, "hard")
		return Decision{Allowed: false, RetryAfter: l.blockDuration}

	case count > int64(l.softThreshold):
		delay := time.Duration(count-int64(l.softThreshold)) * defaultSoftDelayStep
		if delay > maxSoftDelay {
			delay = maxSoftDelay
		}
		l.countHit(identity, "soft")
		return Decision{Allowed: true, Delay: delay}

	default:
		return Decision{Allowed: true}
	}
}

// slideWindow drops entries older than the window, records this request and
// returns the resulting count, in one round trip.
func (l *Limiter) slideWindow(ctx context.Context, key string) (int64, error) {
	now := time.Now()
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)

	pipe := l.redisClient.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("updating sliding window %s: %w", key, err)
	}
	return countCmd.Val(), nil
}

func (l *Limiter) countHit(identity Identity, level string) {
	if l.monitorService == nil {
		return
	}
	labels := map[string]string{"kind": string(identity.Kind), "level": level}
	if err := l.monitorService.MonitorCounters(monitor.RateLimitHitsTag, labels); err != nil {
		log.Errorf("recording rate limit metric: %v", err)
	}
}
