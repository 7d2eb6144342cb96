package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-console/internal/infra"
)

// Store: сессии в Redis. Ключ живет столько же, сколько токен.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Create(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, infra.SessionKey(sessionID), userID, ttl).Err(); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// Active реализует auth.SessionChecker.
func (s *Store) Active(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, infra.SessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("session: lookup: %w", err)
	}
	return n == 1, nil
}

// Revoke удаляет сессию и оповещает все инстансы консоли ("session_id:true").
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, infra.SessionKey(sessionID))
	pipe.Publish(ctx, infra.RedisChanSessionRevoked, sessionID+":true")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}
