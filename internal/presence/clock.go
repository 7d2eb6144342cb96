package presence

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock: часы активности. Единственный компонент, который пишет в ActivityState.
type Clock struct {
	mu    sync.Mutex
	clk   clockwork.Clock
	state ActivityState
}

func NewClock(clk clockwork.Clock, threshold time.Duration) *Clock {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if threshold <= 0 {
		threshold = DefaultInactivityThreshold
	}
	return &Clock{
		clk: clk,
		state: ActivityState{
			LastActivityAt: clk.Now(),
			Threshold:      threshold,
		},
	}
}

// Reset фиксирует активность "сейчас" и снимает флаг срабатывания.
func (c *Clock) Reset() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.state.LastActivityAt = now
	c.state.HasFired = false
	return now
}

// Tick: сколько осталось до порога. Ничего не меняет.
func (c *Clock) Tick() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked(c.clk.Now())
}

func (c *Clock) IsExpired() bool {
	return c.Tick() == 0
}

// Elapsed: сколько прошло с последней активности.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clk.Now().Sub(c.state.LastActivityAt)
}

func (c *Clock) State() ActivityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Clock) Threshold() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Threshold
}

func (c *Clock) remainingLocked(now time.Time) time.Duration {
	remaining := c.state.Threshold - now.Sub(c.state.LastActivityAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// fireRequest описывает попытку перевода Active -> Fired.
type fireRequest struct {
	cause FireCause
	// idle > 0: длительность простоя задана снаружи (рабочий статус, ручной режим).
	idle time.Duration
}

// fire атомарно проверяет условие и ставит HasFired. Проверка и запись под одной блокировкой,
// поэтому Reset, пришедший раньше, всегда подавляет срабатывание.
func (c *Clock) fire(req fireRequest) (InactivityEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.HasFired {
		return InactivityEvent{}, false
	}

	now := c.clk.Now()
	switch req.cause {
	case CauseClock:
		if c.remainingLocked(now) > 0 {
			return InactivityEvent{}, false
		}
	case CauseForced:
		// Делаем вид, что активность была threshold+1s назад.
		c.state.LastActivityAt = now.Add(-req.idle)
	case CauseWorkStatus:
		if req.idle < c.state.Threshold {
			return InactivityEvent{}, false
		}
	}

	c.state.HasFired = true

	idle := now.Sub(c.state.LastActivityAt)
	last := c.state.LastActivityAt
	if req.cause == CauseWorkStatus {
		idle = req.idle
		last = now.Add(-req.idle)
	}

	return InactivityEvent{
		FiredAt:        now,
		IdleDuration:   idle,
		LastActivityAt: last,
		Cause:          req.cause,
	}, true
}

// restart создает состояние заново (включение мониторинга).
func (c *Clock) restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.LastActivityAt = c.clk.Now()
	c.state.HasFired = false
}
