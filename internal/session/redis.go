package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "memberhub:sess:"

// RedisStore keeps each session as a JSON string whose redis TTL matches ExpiresAt.
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.Key = key

	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.Key == "" {
		return errors.New("session key is required")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, sess.Key)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.rdb.Set(ctx, redisKeyPrefix+sess.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
