package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// sendLimitKey is the sorted set backing the global send throttle.
const sendLimitKey = "outreach:send_rl"

// RateLimiter throttles outbound sends across every worker process using a
// sliding window in Redis. Each sent message is a member of a sorted set
// scored by its timestamp; a Lua script atomically trims the window, checks
// the count, and admits or denies.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	limit       int
}

// 1. Remove entries older than the window
// 2. Count remaining entries
// 3. If under the limit, add a new entry and return 1 (allowed)
// 4. If at/over the limit, return 0 (denied)
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

-- Remove entries outside the sliding window
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

-- Count current entries in the window
local count = redis.call('ZCARD', key)

if count < limit then
    -- Under the limit: add this request and allow
    redis.call('ZADD', key, now, member)
    -- Set TTL so the key auto-expires after the window
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    -- At the limit: deny
    return 0
end
`)

// NewRateLimiter creates a throttle of limit sends per second. A limit of
// zero or less means unlimited.
func NewRateLimiter(redisClient *redis.Client, limit int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		limit:       limit,
	}
}

// Allow reports whether another send fits in the current window.
func (rl *RateLimiter) Allow(ctx context.Context) bool {
	if rl.limit <= 0 {
		return true // No rate limit configured
	}

	now := time.Now().UnixMilli()
	window := int64(1000) // 1 second window in milliseconds
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000) // unique member

	result, err := rl.script.Run(ctx, rl.redisClient, []string{sendLimitKey},
		now, window, rl.limit, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err)
		return true // Fail open — send anyway if Redis fails
	}

	if result == 0 {
		rl.logger.Debug("send rate limited", "limit", rl.limit)
		return false
	}

	return true
}
