package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"propel/engine/internal/util"
)

const (
	redisIndexKey   = "syncq:index"
	redisItemPrefix = "syncq:item:"
)

// priorityWeight spaces priority bands far enough apart that the enqueue
// timestamp (milliseconds) can never promote an item across bands. Both
// terms stay well inside float64's exact-integer range.
const priorityWeight = 1e15

// Redis is a durable queue shared by multiple worker processes. A sorted
// set orders debounce keys by priority-then-time; item payloads live in
// plain keys next to it.
type Redis struct {
	client *redis.Client
}

func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client, mainly for tests.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Enqueue(ctx context.Context, item Item) error {
	if item.ID == "" {
		item.ID = util.NewID("syn")
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}

	key := item.Key()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisItemPrefix+key, payload, 0)
	pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: score(item), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Claim(ctx context.Context) (*Item, error) {
	popped, err := r.client.ZPopMin(ctx, redisIndexKey, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("claim queue item: %w", err)
	}
	if len(popped) == 0 {
		return nil, nil
	}

	key, _ := popped[0].Member.(string)
	payload, err := r.client.GetDel(ctx, redisItemPrefix+key).Result()
	if err == redis.Nil {
		// Item payload already removed (e.g. concurrent Remove); treat the
		// claim as a miss.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load claimed item %s: %w", key, err)
	}

	var item Item
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return nil, fmt.Errorf("unmarshal claimed item %s: %w", key, err)
	}
	return &item, nil
}

func (r *Redis) Pending(ctx context.Context, documentID string) ([]Item, error) {
	keys, err := r.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read queue index: %w", err)
	}

	prefix := documentID + "|"
	var pending []Item
	for _, key := range keys {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		payload, err := r.client.Get(ctx, redisItemPrefix+key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read queue item %s: %w", key, err)
		}
		var item Item
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return nil, fmt.Errorf("unmarshal queue item %s: %w", key, err)
		}
		pending = append(pending, item)
	}
	return pending, nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	count, err := r.client.ZCard(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(count), nil
}

func (r *Redis) Remove(ctx context.Context, documentID string) (int, error) {
	keys, err := r.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read queue index: %w", err)
	}

	prefix := documentID + "|"
	removed := 0
	for _, key := range keys {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		pipe := r.client.TxPipeline()
		zrem := pipe.ZRem(ctx, redisIndexKey, key)
		pipe.Del(ctx, redisItemPrefix+key)
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("remove queue item %s: %w", key, err)
		}
		if zrem.Val() > 0 {
			removed++
		}
	}
	return removed, nil
}

func score(item Item) float64 {
	return float64(item.Priority)*priorityWeight + float64(item.EnqueuedAt.UnixMilli())
}
