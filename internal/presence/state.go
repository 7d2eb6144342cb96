package presence

/*
Пакет presence отслеживает активность пользователя консоли и решает, когда сессию
считать простаивающей.

Состав:
- Clock: единственный владелец ActivityState (время последней активности, флаг срабатывания).
- Collector: нормализует разнородные сигналы (ввод, сеть, видимость вкладки, явный сброс,
  рабочий статус) в один вызов Clock.Reset() с учетом политики исключений.
- Arbiter: политика: два состояния Active/Fired, не более одного InactivityEvent на переход.
- Workflow: окно подтверждения: продолжить / объяснить / выйти.
- Tracker: собирает всё вместе, держит тикер и жизненный цикл.
*/

import (
	"math"
	"time"
)

// ActivityState: состояние часов активности. Меняется только через Clock.
type ActivityState struct {
	LastActivityAt time.Time     `json:"last_activity_at"`
	Threshold      time.Duration `json:"threshold"`
	HasFired       bool          `json:"has_fired"`
}

// FireCause: какой путь детекции простоя сработал.
type FireCause string

const (
	CauseClock      FireCause = "clock"       // опрос часов дошел до нуля
	CauseWorkStatus FireCause = "work_status" // эвристика рабочего статуса
	CauseForced     FireCause = "forced"      // ручное срабатывание (поддержка/тесты)
)

// InactivityEvent: неизменяемый снимок, передается в Workflow.
type InactivityEvent struct {
	FiredAt        time.Time     `json:"fired_at"`
	IdleDuration   time.Duration `json:"idle_duration"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	Cause          FireCause     `json:"cause"`
}

// IdleDurationMs возвращает длительность простоя в миллисекундах.
func (e InactivityEvent) IdleDurationMs() int64 {
	return e.IdleDuration.Milliseconds()
}

// MinutesInactive округляет вверх: неполная минута не должна занижать простой в глазах пользователя.
func (e InactivityEvent) MinutesInactive() int {
	return int(math.Ceil(e.IdleDuration.Minutes()))
}

// JustificationRecord: объяснение простоя для HR. Трекер его не хранит.
type JustificationRecord struct {
	ID           string        `json:"id"`
	Reason       string        `json:"reason"`
	CapturedAt   time.Time     `json:"captured_at"`
	UserIdentity string        `json:"user_identity"`
	SessionID    string        `json:"session_id,omitempty"`
	IdleDuration time.Duration `json:"idle_duration"`
}

// Countdown: оставшееся время для отображения. Округление всегда вниз.
type Countdown struct {
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

func countdownOf(remaining time.Duration) Countdown {
	if remaining < 0 {
		remaining = 0
	}
	total := int(remaining / time.Second)
	return Countdown{Minutes: total / 60, Seconds: total % 60}
}

// Status: то, что трекер отдает наружу по запросу (GetStatus).
type Status struct {
	Enabled   bool             `json:"enabled"`
	Suspended bool             `json:"suspended"` // пользователь на исключенном маршруте или отсутствует
	State     ActivityState    `json:"state"`
	Remaining time.Duration    `json:"remaining"`
	Countdown Countdown        `json:"countdown"`
	Stage     Stage            `json:"stage"`
	Event     *InactivityEvent `json:"event,omitempty"`
}
