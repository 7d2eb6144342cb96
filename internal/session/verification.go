package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-console/internal/infra"
	"go.uber.org/zap"
)

const verificationID = "system"

// Verification: флаг системной проверки, общий для всех инстансов.
// Пока он поднят, сигналы активности отбрасываются.
type Verification struct {
	rdb    *redis.Client
	logger *zap.Logger
	flag   atomic.Bool
}

func NewVerification(rdb *redis.Client, logger *zap.Logger) *Verification {
	return &Verification{rdb: rdb, logger: logger.Named("verification")}
}

// Verifying читается из Environment каждой сессии.
func (v *Verification) Verifying() bool {
	return v.flag.Load()
}

// Set сохраняет флаг в Redis и оповещает остальные инстансы.
func (v *Verification) Set(ctx context.Context, on bool) error {
	value, status := "0", "off"
	if on {
		value, status = "1", "on"
	}
	pipe := v.rdb.Pipeline()
	pipe.Set(ctx, infra.RedisKeyVerification, value, 0)
	pipe.Publish(ctx, infra.RedisChanVerification, verificationID+":"+status)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("verification: set: %w", err)
	}
	v.apply(on)
	return nil
}

// Sync перечитывает флаг из Redis (старт и переподключение подписки).
func (v *Verification) Sync(ctx context.Context) error {
	val, err := v.rdb.Get(ctx, infra.RedisKeyVerification).Result()
	if errors.Is(err, redis.Nil) {
		v.apply(false)
		return nil
	}
	if err != nil {
		return fmt.Errorf("verification: sync: %w", err)
	}
	v.apply(val == "1")
	return nil
}

// Listen держит подписку до отмены ctx.
func (v *Verification) Listen(ctx context.Context) {
	ListenResilient(ctx, v.rdb, v.logger, infra.RedisChanVerification, v.Sync, func(id string, status bool) {
		if id != verificationID {
			return
		}
		v.apply(status)
	})
}

func (v *Verification) apply(on bool) {
	if v.flag.Swap(on) != on {
		v.logger.Info("system verification changed", zap.Bool("verifying", on))
	}
}
