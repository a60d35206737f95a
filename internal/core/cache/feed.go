package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"photory/internal/domain"
)

// FeedViews 按动态 ID 缓存动态快照，修改/删除时失效。
// 失效会递增版本键，和失效并发的回源结果不会写回缓存。
type FeedViews struct {
	c   *Cache
	ttl time.Duration
	log *zap.Logger
}

func NewFeedViews(c *Cache, ttl time.Duration, log *zap.Logger) *FeedViews {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FeedViews{c: c, ttl: ttl, log: log}
}

func feedKey(id string) string { return "photory:feed:" + id }

func feedVersionKey(id string) string { return "photory:feed:ver:" + id }

func (f *FeedViews) Feed(ctx context.Context, id string, load func(ctx context.Context) (*domain.FeedView, error)) (*domain.FeedView, error) {
	return GetOrLoadJSON[domain.FeedView](ctx, f.c, feedKey(id), feedVersionKey(id), f.ttl, load)
}

func (f *FeedViews) Invalidate(ctx context.Context, id string) {
	if err := f.c.Bump(ctx, feedKey(id), feedVersionKey(id)); err != nil {
		f.log.Warn("feed cache invalidate failed", zap.String("feed_id", id), zap.Error(err))
	}
}
