package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
)

const (
	DefaultRecentSize = 50
	DefaultTTL        = time.Hour
)

// warmScript writes the list only when the key is absent, so a fill
// computed from an older read never clobbers appends made meanwhile.
var warmScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 3, #ARGV do
  redis.call('RPUSH', KEYS[1], ARGV[i])
end
redis.call('LTRIM', KEYS[1], -tonumber(ARGV[1]), -1)
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisRecentCache implements RecentMessageCache on Redis lists.
type RedisRecentCache struct {
	client *redis.Client
	size   int
	ttl    time.Duration
}

func NewRedisRecentCache(client *redis.Client, size int, ttl time.Duration) *RedisRecentCache {
	if size <= 0 {
		size = DefaultRecentSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRecentCache{client: client, size: size, ttl: ttl}
}

func (c *RedisRecentCache) BuildKey(chatID string) string {
	return fmt.Sprintf("chat:%s:recentMessages", chatID)
}

func (c *RedisRecentCache) Recent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 || limit > c.size {
		limit = c.size
	}

	raw, err := c.client.LRange(ctx, c.BuildKey(chatID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent messages: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrCacheMiss
	}

	msgs := make([]*domain.Message, 0, len(raw))
	for _, item := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("skipping undecodable cache entry")
			continue
		}
		msgs = append(msgs, &m)
	}
	// Concurrent sends can reach RPUSH out of creation order.
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

func (c *RedisRecentCache) Append(ctx context.Context, chatID string, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	key := c.BuildKey(chatID)
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-c.size), -1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to recent messages: %w", err)
	}
	return nil
}

func (c *RedisRecentCache) Warm(ctx context.Context, chatID string, msgs []*domain.Message) (bool, error) {
	if len(msgs) == 0 {
		return false, nil
	}
	if len(msgs) > c.size {
		msgs = msgs[len(msgs)-c.size:]
	}

	args := make([]interface{}, 0, len(msgs)+2)
	args = append(args, c.size, c.ttl.Milliseconds())
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return false, fmt.Errorf("failed to marshal cache data: %w", err)
		}
		args = append(args, data)
	}

	written, err := warmScript.Run(ctx, c.client, []string{c.BuildKey(chatID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to warm recent messages: %w", err)
	}
	return written == 1, nil
}

func (c *RedisRecentCache) Delete(ctx context.Context, chatID string) error {
	return c.client.Del(ctx, c.BuildKey(chatID)).Err()
}
