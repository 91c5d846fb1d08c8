package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

const scanCount int64 = 200

// keyStore is the part of *redis.Client used for invalidation.
type keyStore interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis drops every redis key stored under the invalidated key prefix.
type Redis struct {
	store keyStore
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{store: client}
}

// Connect opens and pings a redis client.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping to redis %v", addr)
	}
	log.Infof("redis connected to %v", addr)
	return client, nil
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	return r.deleteFromPrefix(ctx, key)
}

func (r *Redis) deleteFromPrefix(ctx context.Context, prefix string) error {
	var (
		cursor  uint64
		match   = fmt.Sprintf("%v*", prefix)
		deleted int64
	)
	log.Debugf("deleting cache pattern %v", match)
	for {
		keys, c, err := r.store.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return errors.WrapAndReport(err, "scan caches")
		}
		cursor = c
		if len(keys) > 0 {
			n, err := r.store.Del(ctx, keys...).Result()
			if err != nil {
				return errors.WrapAndReport(err, "delete caches")
			}
			deleted += n
		}
		if c == 0 {
			log.Debugf("deleted %v cache keys under %v", deleted, prefix)
			return nil
		}
	}
}
