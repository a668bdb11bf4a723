// Package cache keeps derived chat-list summaries per identity so repeated
// list requests skip the per-counterpart aggregation.
package cache

import (
	"context"
	"fmt"

	"github.com/xelth-com/eckchat/internal/config"
	"github.com/xelth-com/eckchat/internal/models"
)

// ChatListCache stores personal and group chat-list rows per identity.
// Get methods return nil, nil on a miss.
type ChatListCache interface {
	Available() bool
	GetChats(ctx context.Context, identity string) ([]models.ChatSummary, error)
	SetChats(ctx context.Context, identity string, rows []models.ChatSummary) error
	GetGroupChats(ctx context.Context, identity string) ([]models.GroupChatSummary, error)
	SetGroupChats(ctx context.Context, identity string, rows []models.GroupChatSummary) error
	// Invalidate drops both lists of every identity.
	Invalidate(ctx context.Context, identities ...string) error
}

// Open returns the cache selected by cfg.CacheType.
func Open(ctx context.Context, cfg *config.Config) (ChatListCache, error) {
	switch cfg.CacheType {
	case config.CacheNone, "":
		return Noop{}, nil
	case config.CacheRedis:
		return NewRedisFromURL(ctx, cfg.RedisURL, cfg.ChatListCacheTTL)
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.CacheType)
	}
}

// Noop caches nothing.
type Noop struct{}

var _ ChatListCache = Noop{}

func (Noop) Available() bool { return false }
func (Noop) GetChats(context.Context, string) ([]models.ChatSummary, error) {
	return nil, nil
}
func (Noop) SetChats(context.Context, string, []models.ChatSummary) error { return nil }
func (Noop) GetGroupChats(context.Context, string) ([]models.GroupChatSummary, error) {
	return nil, nil
}
func (Noop) SetGroupChats(context.Context, string, []models.GroupChatSummary) error { return nil }
func (Noop) Invalidate(context.Context, ...string) error                            { return nil }
