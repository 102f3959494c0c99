package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/chat-core/internal/config"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

type RedisRegistry struct {
	client            *redis.Client
	instance          string
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration
	counts            *refCounts // members with a connection on this instance
	cancel            context.CancelFunc
}

func NewRedisRegistry(redisCfg config.RedisConfig, cfg config.RegistryConfig, instance string) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Address,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisRegistry(client, cfg, instance), nil
}

func newRedisRegistry(client *redis.Client, cfg config.RegistryConfig, instance string) *RedisRegistry {
	return &RedisRegistry{
		client:            client,
		instance:          instance,
		prefix:            cfg.Prefix,
		keyTTL:            cfg.KeyTTL,
		heartbeatInterval: cfg.HeartbeatInterval,
		counts:            newRefCounts(),
	}
}

func (r *RedisRegistry) keyFor(member domain.MemberID) string {
	return fmt.Sprintf("%s:member:%d", r.prefix, member)
}

// MarkOnline advertises the member on its first connection to this instance.
func (r *RedisRegistry) MarkOnline(ctx context.Context, member domain.MemberID) error {
	if !r.counts.inc(member) {
		return nil
	}
	if err := r.client.Set(ctx, r.keyFor(member), r.instance, r.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark member online: %w", err)
	}

	l := log.L()
	l.Debug().Int64(log.FieldMemberID, int64(member)).Str("instance", r.instance).Msg("member online")
	return nil
}

// MarkOffline withdraws the member once its last connection here is gone.
// A key taken over by another instance is left alone.
func (r *RedisRegistry) MarkOffline(ctx context.Context, member domain.MemberID) error {
	if !r.counts.dec(member) {
		return nil
	}
	key := r.keyFor(member)
	owner, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark member offline: %w", err)
	}
	if owner != r.instance {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to mark member offline: %w", err)
	}

	l := log.L()
	l.Debug().Int64(log.FieldMemberID, int64(member)).Msg("member offline")
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, member domain.MemberID) (string, error) {
	instance, err := r.client.Get(ctx, r.keyFor(member)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotOnline
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup member: %w", err)
	}
	return instance, nil
}

func (r *RedisRegistry) StartHeartbeat(ctx context.Context) error {
	if r.heartbeatInterval <= 0 {
		return fmt.Errorf("invalid heartbeat interval %s", r.heartbeatInterval)
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.heartbeatLoop(ctx)
	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("registry heartbeat started")
	return nil
}

func (r *RedisRegistry) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshKeys(ctx)
		}
	}
}

func (r *RedisRegistry) refreshKeys(ctx context.Context) {
	for _, member := range r.counts.members() {
		if err := r.client.Set(ctx, r.keyFor(member), r.instance, r.keyTTL).Err(); err != nil {
			l := log.L()
			l.Error().Int64(log.FieldMemberID, int64(member)).Err(err).Msg("failed to refresh key")
		}
	}
}

func (r *RedisRegistry) StopHeartbeat() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *RedisRegistry) Close() error {
	r.StopHeartbeat()
	return r.client.Close()
}
