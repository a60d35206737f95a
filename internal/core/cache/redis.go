package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// 版本键的存活时间，只需长于任何一次回源
const versionTTL = time.Hour

var errStaleLoad = errors.New("cache: version changed during load")

type Cache struct {
	RDB *redis.Client
	sf  singleflight.Group
}

func New(addr, pass string, db int) *Cache {
	return &Cache{
		RDB: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
	}
}

// GetOrLoad 读缓存，未命中时回源并回写。
// verKey 非空时，只有回源期间 verKey 没被 Bump 过才回写，防止删除后被旧数据写回。
func (c *Cache) GetOrLoad(ctx context.Context, key, verKey string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	// 先读缓存；redis 不可用时直接回源
	if b, err := c.RDB.Get(ctx, key).Bytes(); err == nil {
		return b, nil
	}
	// single flight 合并回源
	v, err, _ := c.sf.Do(key, func() (any, error) {
		ver, verErr := "", error(nil)
		if verKey != "" {
			ver, verErr = c.RDB.Get(ctx, verKey).Result()
			if errors.Is(verErr, redis.Nil) {
				ver, verErr = "", nil
			}
		}
		b, e := load(ctx)
		if e != nil {
			return nil, e
		}
		switch {
		case verKey == "":
			_ = c.RDB.Set(ctx, key, b, ttl).Err()
		case verErr == nil:
			_ = c.setIfVersion(ctx, key, verKey, ver, b, ttl)
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// setIfVersion WATCH verKey，版本不变才在同一事务里写入
func (c *Cache) setIfVersion(ctx context.Context, key, verKey, ver string, b []byte, ttl time.Duration) error {
	return c.RDB.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, verKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != ver {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, ttl)
			return nil
		})
		return err
	}, verKey)
}

// Bump 递增版本并删除数据键；进行中的回源因此不会写回
func (c *Cache) Bump(ctx context.Context, key, verKey string) error {
	_, err := c.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, verKey)
		p.Expire(ctx, verKey, versionTTL)
		p.Del(ctx, key)
		return nil
	})
	return err
}

func (c *Cache) Close() error { return c.RDB.Close() }
