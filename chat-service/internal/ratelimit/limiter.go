package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

const (
	DefaultLimit  = 5
	DefaultWindow = 60 * time.Second
)

// consumeScript checks, increments and arms the window TTL in one step.
// Returns 1 when the request is allowed.
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return 0
end
current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// Limiter is a per-sender fixed window counter.
type Limiter interface {
	TryConsume(ctx context.Context, senderID string) (bool, error)
}

// RedisLimiter implements Limiter on a Redis counter per sender.
type RedisLimiter struct {
	client redis.Scripter
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client redis.Scripter, limit int64, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) BuildKey(senderID string) string {
	return "rateLimit:" + senderID
}

// TryConsume takes one slot of the sender's window. When Redis is
// unreachable the request is allowed and the error returned for logging.
func (l *RedisLimiter) TryConsume(ctx context.Context, senderID string) (bool, error) {
	allowed, err := consumeScript.Run(ctx, l.client,
		[]string{l.BuildKey(senderID)}, l.limit, l.window.Milliseconds()).Int()
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, senderID).Msg("rate limiter unavailable, allowing message")
		return true, fmt.Errorf("rate limit check: %w", err)
	}
	return allowed == 1, nil
}
