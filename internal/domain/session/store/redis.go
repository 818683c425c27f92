package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"signage-agent-go/internal/domain/session/model"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed session store. Useful when several
// agent processes on one appliance share a local redis.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "signage:agent:"
	}
	return &redisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(k string) string {
	return s.prefix + k
}

func (s *redisStore) SaveCredentials(ctx context.Context, creds model.Credentials) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(KeyUsername), creds.Username, 0)
	pipe.Set(ctx, s.key(KeyPassword), creds.Password, 0)
	pipe.Set(ctx, s.key(KeyScreenName), creds.ScreenName, 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) LoadCredentials(ctx context.Context) (model.Credentials, bool, error) {
	values, err := s.client.MGet(ctx,
		s.key(KeyUsername),
		s.key(KeyPassword),
		s.key(KeyScreenName),
	).Result()
	if err != nil {
		return model.Credentials{}, false, err
	}

	creds := model.Credentials{
		Username:   asString(values[0]),
		Password:   asString(values[1]),
		ScreenName: asString(values[2]),
	}
	if !creds.Complete() {
		return model.Credentials{}, false, nil
	}
	return creds, true, nil
}

func (s *redisStore) ClearCredentials(ctx context.Context) error {
	return s.client.Del(ctx,
		s.key(KeyUsername),
		s.key(KeyPassword),
		s.key(KeyScreenName),
	).Err()
}

func (s *redisStore) SetLogoutSentinel(ctx context.Context) error {
	return s.client.Set(ctx, s.key(KeyLogoutSentinel), "true", 0).Err()
}

func (s *redisStore) HasLogoutSentinel(ctx context.Context) (bool, error) {
	raw, err := s.client.Get(ctx, s.key(KeyLogoutSentinel)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return raw == "true", nil
}

func (s *redisStore) ClearLogoutSentinel(ctx context.Context) error {
	return s.client.Del(ctx, s.key(KeyLogoutSentinel)).Err()
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "redis",
		"total": size,
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
