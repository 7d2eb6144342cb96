package journal

/*
Журнал объяснений простоя.

- Log не блокирует вызывающего: запись уходит в буферизованный канал, при переполнении
  возвращается ErrBufferFull (Load Shedding), окно подтверждения от этого не зависает.
- Воркер копит пачку и пишет ее в Storage по таймеру или при достижении batchSize.
- Stop закрывает вход и дожидается финального flush (Drain Pattern).
*/

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xela07ax/spaceai-console/internal/presence"
	"go.uber.org/zap"
)

var (
	ErrClosed     = errors.New("journal: stopped")
	ErrBufferFull = errors.New("journal: buffer overflow")
)

// Storage определяет, куда физически сохраняются объяснения.
type Storage interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []presence.JustificationRecord) error
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Clock         clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

type Journal struct {
	ch     chan presence.JustificationRecord
	repo   Storage
	opts   Options
	logger *zap.Logger

	// mu защищает закрытие канала от конкурентного Log
	mu       sync.RWMutex
	isClosed atomic.Bool
	started  atomic.Bool
	wg       sync.WaitGroup
}

func New(repo Storage, opts Options, logger *zap.Logger) *Journal {
	opts = opts.withDefaults()
	return &Journal{
		ch:     make(chan presence.JustificationRecord, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.Named("journal"),
	}
}

func (j *Journal) Start() {
	if !j.started.CompareAndSwap(false, true) {
		return
	}
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.isClosed.Swap(true) {
		j.mu.Unlock()
		return
	}
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.mu.Unlock()

	if j.started.Load() {
		j.wg.Wait()
	}
	j.logger.Info("journal stopped gracefully")
}

// Log ставит запись в очередь без ожидания.
func (j *Journal) Log(record presence.JustificationRecord) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.isClosed.Load() {
		j.logger.Warn("justification dropped: journal is stopping", zap.String("id", record.ID))
		return ErrClosed
	}

	select {
	case j.ch <- record:
		return nil
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("user", record.UserIdentity),
			zap.String("id", record.ID),
		)
		return ErrBufferFull
	}
}

// Persist: приемник окна подтверждения.
func (j *Journal) Persist(_ context.Context, record presence.JustificationRecord) error {
	return j.Log(record)
}

// Pending: сколько записей ждет воркера.
func (j *Journal) Pending() int {
	return len(j.ch)
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]presence.JustificationRecord, 0, j.opts.BatchSize)
	ticker := j.opts.Clock.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к моменту остановки уже закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case record, ok := <-j.ch:
			if !ok {
				flush() // Финальный сброс
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, record)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.Chan():
			flush()
		}
	}
}
