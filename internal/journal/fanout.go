package journal

import (
	"context"
	"errors"

	"github.com/xela07ax/spaceai-console/internal/presence"
)

// Fanout пишет пачку во все хранилища; отказ одного не мешает остальным.
type Fanout []Storage

func (f Fanout) WriteBatch(ctx context.Context, records []presence.JustificationRecord) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.WriteBatch(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
