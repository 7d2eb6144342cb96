package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/spaceai-console/internal/presence"
)

// LatestWriter: синхронное хранилище последнего объяснения (RedisStore).
type LatestWriter interface {
	Save(ctx context.Context, record presence.JustificationRecord) error
}

// Sink принимает объяснения из окна подтверждения. Последняя запись пишется сразу,
// архив (Postgres, Kafka) уходит в журнал.
type Sink struct {
	Latest  LatestWriter
	Archive *Journal
}

func (s *Sink) Persist(ctx context.Context, record presence.JustificationRecord) error {
	var errs []error
	if s.Latest != nil {
		if err := s.Latest.Save(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("latest: %w", err))
		}
	}
	if s.Archive != nil {
		if err := s.Archive.Log(record); err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
	}
	return errors.Join(errs...)
}
