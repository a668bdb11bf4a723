package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xelth-com/eckchat/internal/models"
)

const defaultTTL = 30 * time.Second

// Redis is a ChatListCache on a redis server. Entries expire after ttl
// even without an explicit invalidation.
type Redis struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ ChatListCache = (*Redis)(nil)

// NewRedisFromURL connects to redisURL and pings it.
func NewRedisFromURL(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return NewRedis(client, ttl), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *goredis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func chatsKey(identity string) string      { return "chatlist:" + identity + ":personal" }
func groupChatsKey(identity string) string { return "chatlist:" + identity + ":groups" }

func (c *Redis) Available() bool { return true }

func getJSON[T any](ctx context.Context, c *Redis, key string) ([]T, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rows := []T{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func setJSON[T any](ctx context.Context, c *Redis, key string, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *Redis) GetChats(ctx context.Context, identity string) ([]models.ChatSummary, error) {
	return getJSON[models.ChatSummary](ctx, c, chatsKey(identity))
}

func (c *Redis) SetChats(ctx context.Context, identity string, rows []models.ChatSummary) error {
	return setJSON(ctx, c, chatsKey(identity), rows)
}

func (c *Redis) GetGroupChats(ctx context.Context, identity string) ([]models.GroupChatSummary, error) {
	return getJSON[models.GroupChatSummary](ctx, c, groupChatsKey(identity))
}

func (c *Redis) SetGroupChats(ctx context.Context, identity string, rows []models.GroupChatSummary) error {
	return setJSON(ctx, c, groupChatsKey(identity), rows)
}

func (c *Redis) Invalidate(ctx context.Context, identities ...string) error {
	if len(identities) == 0 {
		return nil
	}
	keys := make([]string, 0, 2*len(identities))
	for _, id := range identities {
		keys = append(keys, chatsKey(id), groupChatsKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close releases the client.
func (c *Redis) Close() error {
	return c.client.Close()
}
