package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/chat-core/internal/config"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RoomCache maps a member key onto the id of the room that owns it. Rooms
// never change their member set, so entries are never invalidated.
type RoomCache interface {
	Get(ctx context.Context, memberKey string) (domain.RoomID, error)
	Set(ctx context.Context, memberKey string, roomID domain.RoomID, ttl time.Duration) error
	Close() error
}

type RedisRoomCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRoomCache(cfg config.RedisConfig, prefix string) (*RedisRoomCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRoomCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisRoomCache) keyFor(memberKey string) string {
	return fmt.Sprintf("%s:members:%s", c.prefix, memberKey)
}

func (c *RedisRoomCache) Get(ctx context.Context, memberKey string) (domain.RoomID, error) {
	val, err := c.client.Get(ctx, c.keyFor(memberKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("failed to get from redis: %w", err)
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse cached room id: %w", err)
	}
	return domain.RoomID(id), nil
}

func (c *RedisRoomCache) Set(ctx context.Context, memberKey string, roomID domain.RoomID, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keyFor(memberKey), roomID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisRoomCache) Close() error {
	return c.client.Close()
}

// NoopRoomCache always misses. Used when Redis is disabled.
type NoopRoomCache struct{}

func (NoopRoomCache) Get(context.Context, string) (domain.RoomID, error) {
	return 0, ErrCacheMiss
}

func (NoopRoomCache) Set(context.Context, string, domain.RoomID, time.Duration) error {
	return nil
}

func (NoopRoomCache) Close() error {
	return nil
}
