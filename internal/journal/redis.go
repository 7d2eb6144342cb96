package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-console/internal/infra"
	"github.com/xela07ax/spaceai-console/internal/presence"
)

var ErrNotFound = errors.New("journal: no justification for user")

// RedisStore хранит последнее объяснение пользователя под justification_inactivity:<user>.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, record presence.JustificationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis store: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, infra.JustificationKey(record.UserIdentity), data, 0).Err(); err != nil {
		return fmt.Errorf("redis store: set: %w", err)
	}
	return nil
}

// WriteBatch перезаписывает последнее объяснение каждого пользователя из пачки.
func (s *RedisStore) WriteBatch(ctx context.Context, records []presence.JustificationRecord) error {
	if len(records) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("redis store: marshal: %w", err)
		}
		pipe.Set(ctx, infra.JustificationKey(r.UserIdentity), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store: pipeline: %w", err)
	}
	return nil
}

// Latest читает последнее объяснение пользователя.
func (s *RedisStore) Latest(ctx context.Context, user string) (presence.JustificationRecord, error) {
	var record presence.JustificationRecord

	data, err := s.rdb.Get(ctx, infra.JustificationKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return record, ErrNotFound
	}
	if err != nil {
		return record, fmt.Errorf("redis store: get: %w", err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("redis store: corrupted record for %s: %w", user, err)
	}
	return record, nil
}
