package netcoord

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hyquery/pkg/config"
)

// RedisStore adapts go-redis to the StoreClient interface.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(cfg *config.RedisConfig) *RedisStore {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  time.Duration(cfg.ConnectTimeoutMillis) * time.Millisecond,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutMillis) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.ReadTimeoutMillis) * time.Millisecond,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &RedisStore{rdb: redis.NewClient(opts)}
}

func (s *RedisStore) ConnectAndValidate(ctx context.Context) error {
	pong, err := s.rdb.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	if !strings.EqualFold(pong, "PONG") {
		return fmt.Errorf("redis health check failed: unexpected PING response %q", pong)
	}
	return nil
}

func (s *RedisStore) PublishSnapshot(ctx context.Context, serverKey, indexKey string, ttlSeconds, updatedAtMillis int64, serverID, snapshotJSON string) error {
	pipe := s.rdb.TxPipeline()
	pipe.SetEx(ctx, serverKey, snapshotJSON, time.Duration(max(1, ttlSeconds))*time.Second)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(updatedAtMillis), Member: serverID})
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) EvictStaleServers(ctx context.Context, indexKey string, cutoffMillis int64) (int64, error) {
	return s.rdb.ZRemRangeByScore(ctx, indexKey, "-inf", strconv.FormatInt(cutoffMillis, 10)).Result()
}

func (s *RedisStore) GetActiveServerIDs(ctx context.Context, indexKey string, cutoffMillis int64) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoffMillis, 10),
		Max: "+inf",
	}).Result()
}

func (s *RedisStore) GetSnapshots(ctx context.Context, serverKeys []string) ([]string, error) {
	if len(serverKeys) == 0 {
		return nil, nil
	}
	vals, err := s.rdb.MGet(ctx, serverKeys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[i] = str
		}
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
