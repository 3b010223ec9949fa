package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

const minGenerationTTL = time.Minute

// storeIfCurrent writes the list only while the user's generation still
// equals the one read before the list was assembled.
var storeIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[1])
if not gen then gen = '0' end
if gen ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// ListCache keeps each user's assembled task list in Redis. Every mutation
// evicts the lists of all participants and bumps their generation; a list
// assembled before the bump is never written back.
type ListCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewListCache creates a cache using the provided Redis client and TTL. A nil
// client or zero TTL disables caching.
func NewListCache(client *redis.Client, ttl time.Duration) *ListCache {
	if ttl < 0 {
		ttl = 0
	}
	return &ListCache{redis: client, ttl: ttl}
}

// Load returns the cached list for userID if present.
func (c *ListCache) Load(ctx context.Context, userID string) (domain.TaskList, bool) {
	if c == nil || c.redis == nil {
		return domain.TaskList{}, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return domain.TaskList{}, false
	}
	var list domain.TaskList
	if err := json.Unmarshal(data, &list); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return domain.TaskList{}, false
	}
	return list, true
}

// Generation returns the user's current cache generation. It returns -1 when
// the generation cannot be read, which makes the following Store a no-op.
func (c *ListCache) Generation(ctx context.Context, userID string) int64 {
	if c == nil || c.redis == nil {
		return -1
	}
	gen, err := c.redis.Get(ctx, generationKey(userID)).Int64()
	switch {
	case err == redis.Nil:
		return 0
	case err != nil:
		return -1
	}
	return gen
}

// Store caches the list for userID unless the user's lists were evicted
// after gen was read.
func (c *ListCache) Store(ctx context.Context, userID string, gen int64, list domain.TaskList) {
	if c == nil || c.redis == nil || c.ttl == 0 || gen < 0 {
		return
	}
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	keys := []string{generationKey(userID), tasksCacheKey(userID)}
	_ = storeIfCurrent.Run(ctx, c.redis, keys, strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds()).Err()
}

// Evict drops the cached lists of the given users and bumps their
// generations.
func (c *ListCache) Evict(ctx context.Context, userIDs ...string) {
	if c == nil || c.redis == nil || len(userIDs) == 0 {
		return
	}
	genTTL := 2 * c.ttl
	if genTTL < minGenerationTTL {
		genTTL = minGenerationTTL
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			if id == "" {
				continue
			}
			pipe.Del(ctx, tasksCacheKey(id))
			pipe.Incr(ctx, generationKey(id))
			pipe.Expire(ctx, generationKey(id), genTTL)
		}
		return nil
	})
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func generationKey(userID string) string {
	return "tasks:gen:" + userID
}
