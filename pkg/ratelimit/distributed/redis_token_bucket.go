package distributed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
	"github.com/vnykmshr/dataflow/pkg/ratelimit/bucket"
)

const throttleType = "redis_token_bucket"

// minRetry keeps WaitN from spinning when the script reports no delay.
const minRetry = time.Millisecond

// ErrExceedsBurst is returned when a wait asks for more tokens than the
// bucket can ever hold.
var ErrExceedsBurst = fmt.Errorf("distributed: request exceeds burst: %w", dferrors.ErrCapacityExceeded)

// reservation is the outcome of one consume attempt.
type reservation struct {
	ok     bool
	tokens float64
	delay  time.Duration
}

// redisTokenBucket implements Throttle with a Lua script that refills and
// consumes tokens atomically.
type redisTokenBucket struct {
	config Config
	keys   keys
	log    zerolog.Logger

	mu       sync.Mutex
	burst    int
	degraded bool

	consume *redis.Script
}

func newRedisTokenBucket(config Config) (*redisTokenBucket, error) {
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().
			Str("throttle", config.Name).
			Str("instance", config.InstanceID).
			Logger()
	}

	rtb := &redisTokenBucket{
		config:  config,
		keys:    newKeys(config.Key),
		log:     logger,
		burst:   config.Burst,
		consume: redis.NewScript(luaConsume),
	}

	if err := rtb.initialize(context.Background()); err != nil {
		if config.Fallback == nil {
			return nil, fmt.Errorf("distributed: initialize token bucket: %w", err)
		}
		rtb.log.Warn().Err(err).Msg("redis unavailable at startup, using local fallback")
	}

	return rtb, nil
}

// initialize seeds the shared state if it does not exist yet and
// registers this instance.
func (rtb *redisTokenBucket) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rtb.config.RedisTimeout)
	defer cancel()

	ttl := rtb.config.KeyTTL
	pipe := rtb.config.Redis.Pipeline()
	pipe.SetNX(ctx, rtb.keys.tokens, float64(rtb.config.Burst), ttl)
	pipe.SetNX(ctx, rtb.keys.last, timeToFloat(time.Now()), ttl)
	pipe.HSetNX(ctx, rtb.keys.config, "rate", rtb.config.Rate)
	pipe.HSetNX(ctx, rtb.keys.config, "burst", rtb.config.Burst)
	pipe.Expire(ctx, rtb.keys.config, ttl)
	pipe.SAdd(ctx, rtb.keys.instances, rtb.config.InstanceID)
	pipe.Expire(ctx, rtb.keys.instances, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return &RedisError{"initialize", err}
	}
	return nil
}

func (rtb *redisTokenBucket) Allow(ctx context.Context) bool {
	r, err := rtb.reserve(ctx, 1)
	if err != nil {
		if fb := rtb.fallback(err); fb != nil {
			return fb.Allow()
		}
		return false
	}
	if !r.ok {
		rtb.recordDenied(1)
	}
	return r.ok
}

func (rtb *redisTokenBucket) Wait(ctx context.Context) error {
	return rtb.WaitN(ctx, 1)
}

// WaitN retries the consume script until it succeeds, sleeping for the
// delay the script reports between attempts. Other instances may take the
// refilled tokens first, in which case it simply waits again.
func (rtb *redisTokenBucket) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if n > rtb.currentBurst() {
		return ErrExceedsBurst
	}

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r, err := rtb.reserve(ctx, n)
		if err != nil {
			if fb := rtb.fallback(err); fb != nil {
				return fb.WaitN(ctx, n)
			}
			return err
		}
		if r.ok {
			rtb.observeWait(time.Since(start))
			return nil
		}

		timer := time.NewTimer(max(r.delay, minRetry))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			rtb.recordDenied(n)
			return ctx.Err()
		}
	}
}

// reserve runs the consume script once.
func (rtb *redisTokenBucket) reserve(ctx context.Context, n int) (reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, rtb.config.RedisTimeout)
	defer cancel()

	k := rtb.keys
	res, err := rtb.consume.Run(ctx, rtb.config.Redis,
		[]string{k.tokens, k.last, k.config, k.stats},
		n,
		timeToFloat(time.Now()),
		rtb.config.Rate,
		rtb.config.Burst,
		rtb.config.KeyTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return reservation{}, &RedisError{"consume", err}
	}

	rtb.recovered()
	return parseReservation(res)
}

// parseReservation decodes the script's {allowed, tokens, delay} reply.
func parseReservation(res []interface{}) (reservation, error) {
	if len(res) != 3 {
		return reservation{}, &RedisError{"consume", fmt.Errorf("unexpected reply %v", res)}
	}

	allowed, _ := res[0].(int64)
	tokensStr, _ := res[1].(string)
	delayStr, _ := res[2].(string)

	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		return reservation{}, &RedisError{"consume", fmt.Errorf("parse tokens: %w", err)}
	}
	delay, err := strconv.ParseFloat(delayStr, 64)
	if err != nil {
		return reservation{}, &RedisError{"consume", fmt.Errorf("parse delay: %w", err)}
	}

	return reservation{
		ok:     allowed == 1,
		tokens: tokens,
		delay:  time.Duration(delay * float64(time.Second)),
	}, nil
}

// fallback returns the local throttle to use after err, or nil when
// there is none or err is the caller's own cancellation.
func (rtb *redisTokenBucket) fallback(err error) bucket.Throttle {
	if rtb.config.Fallback == nil || errors.Is(err, context.Canceled) {
		return nil
	}

	rtb.mu.Lock()
	first := !rtb.degraded
	rtb.degraded = true
	rtb.mu.Unlock()

	if first {
		rtb.log.Warn().Err(err).Msg("redis unavailable, using local fallback")
	}
	return rtb.config.Fallback
}

func (rtb *redisTokenBucket) recovered() {
	rtb.mu.Lock()
	was := rtb.degraded
	rtb.degraded = false
	rtb.mu.Unlock()

	if was {
		rtb.log.Info().Msg("redis reachable again")
	}
}

func (rtb *redisTokenBucket) currentBurst() int {
	rtb.mu.Lock()
	defer rtb.mu.Unlock()
	return rtb.burst
}

func (rtb *redisTokenBucket) SetRate(ctx context.Context, rate float64) error {
	if rate <= 0 {
		return dferrors.NewValidationError("distributed", "Rate", rate, "must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, rtb.config.RedisTimeout)
	defer cancel()

	if err := rtb.config.Redis.HSet(ctx, rtb.keys.config, "rate", rate).Err(); err != nil {
		return &RedisError{"set_rate", err}
	}
	return nil
}

func (rtb *redisTokenBucket) SetBurst(ctx context.Context, burst int) error {
	if burst <= 0 {
		return dferrors.NewValidationError("distributed", "Burst", burst, "must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, rtb.config.RedisTimeout)
	defer cancel()

	if err := rtb.config.Redis.HSet(ctx, rtb.keys.config, "burst", burst).Err(); err != nil {
		return &RedisError{"set_burst", err}
	}

	rtb.mu.Lock()
	rtb.burst = burst
	rtb.mu.Unlock()
	return nil
}

func (rtb *redisTokenBucket) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, rtb.config.RedisTimeout)
	defer cancel()

	pipe := rtb.config.Redis.Pipeline()
	tokensCmd := pipe.Get(ctx, rtb.keys.tokens)
	lastCmd := pipe.Get(ctx, rtb.keys.last)
	configCmd := pipe.HGetAll(ctx, rtb.keys.config)
	statsCmd := pipe.HGetAll(ctx, rtb.keys.stats)
	instancesCmd := pipe.SMembers(ctx, rtb.keys.instances)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, &RedisError{"stats", err}
	}

	tokens, _ := strconv.ParseFloat(tokensCmd.Val(), 64)
	last, _ := strconv.ParseFloat(lastCmd.Val(), 64)

	cfg := configCmd.Val()
	rate, _ := strconv.ParseFloat(cfg["rate"], 64)
	burst, _ := strconv.Atoi(cfg["burst"])

	counters := statsCmd.Val()
	total, _ := strconv.ParseInt(counters["total_requests"], 10, 64)
	allowed, _ := strconv.ParseInt(counters["allowed_requests"], 10, 64)
	denied, _ := strconv.ParseInt(counters["denied_requests"], 10, 64)

	return &Stats{
		Rate:            rate,
		Burst:           burst,
		Tokens:          tokens,
		LastRefill:      floatToTime(last),
		TotalRequests:   total,
		AllowedRequests: allowed,
		DeniedRequests:  denied,
		ActiveInstances: instancesCmd.Val(),
	}, nil
}

func (rtb *redisTokenBucket) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rtb.config.RedisTimeout)
	defer cancel()

	if err := rtb.config.Redis.Del(ctx, rtb.keys.all()...).Err(); err != nil {
		return &RedisError{"reset", err}
	}

	rtb.mu.Lock()
	rtb.burst = rtb.config.Burst
	rtb.mu.Unlock()
	return rtb.initialize(ctx)
}

func (rtb *redisTokenBucket) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), rtb.config.RedisTimeout)
	defer cancel()

	if err := rtb.config.Redis.SRem(ctx, rtb.keys.instances, rtb.config.InstanceID).Err(); err != nil {
		return &RedisError{"close", err}
	}
	return nil
}

func (rtb *redisTokenBucket) observeWait(d time.Duration) {
	if m := rtb.config.Metrics; m != nil {
		m.ThrottleWaitDuration.WithLabelValues(throttleType, rtb.config.Name).Observe(d.Seconds())
	}
}

func (rtb *redisTokenBucket) recordDenied(n int) {
	if m := rtb.config.Metrics; m != nil {
		m.ThrottleDenied.WithLabelValues(throttleType, rtb.config.Name).Add(float64(n))
	}
}

// luaConsume refills the shared bucket for the time elapsed since the last
// call and takes the requested tokens if they are there. The rate and burst
// stored in the config hash win over the caller's, so SetRate and SetBurst
// reach every instance.
//
// KEYS: tokens, last_refill, config, stats
// ARGV: requested, now (s), rate, burst, ttl (ms)
// Reply: {allowed, tokens_after, delay_seconds}
const luaConsume = `
local requested = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local capacity = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local cfg_rate = redis.call('HGET', KEYS[3], 'rate')
if cfg_rate then rate = tonumber(cfg_rate) end
local cfg_burst = redis.call('HGET', KEYS[3], 'burst')
if cfg_burst then capacity = tonumber(cfg_burst) end

local tokens = tonumber(redis.call('GET', KEYS[1]) or capacity)
local last = tonumber(redis.call('GET', KEYS[2]) or now)

local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed * rate)

redis.call('HINCRBY', KEYS[4], 'total_requests', 1)

local allowed = 0
local delay = 0
if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
  redis.call('HINCRBY', KEYS[4], 'allowed_requests', 1)
else
  delay = (requested - tokens) / rate
  redis.call('HINCRBY', KEYS[4], 'denied_requests', 1)
end

redis.call('SET', KEYS[1], tostring(tokens), 'PX', ttl)
redis.call('SET', KEYS[2], tostring(now), 'PX', ttl)
redis.call('PEXPIRE', KEYS[4], ttl)

return {allowed, tostring(tokens), tostring(delay)}
`
