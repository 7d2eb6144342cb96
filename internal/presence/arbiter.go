package presence

import "time"

// ArbiterState: Active (HasFired=false) или Fired (HasFired=true).
type ArbiterState string

const (
	StateActive ArbiterState = "active"
	StateFired  ArbiterState = "fired"
)

// Arbiter решает, когда поднимать событие простоя. Само состояние хранится в Clock,
// поэтому два пути детекции (часы и рабочий статус) не могут выстрелить дважды.
type Arbiter struct {
	clock *Clock
}

func NewArbiter(clock *Clock) *Arbiter {
	return &Arbiter{clock: clock}
}

func (a *Arbiter) State() ArbiterState {
	if a.clock.State().HasFired {
		return StateFired
	}
	return StateActive
}

// Evaluate вызывается на каждом тике. Событие возвращается ровно один раз на переход.
func (a *Arbiter) Evaluate() (InactivityEvent, bool) {
	return a.clock.fire(fireRequest{cause: CauseClock})
}

// ReportWorkIdle: альтернативный путь, эвристика рабочего статуса насчитала простой.
// Сравнение идет в целых минутах, как их отдает эвристика.
func (a *Arbiter) ReportWorkIdle(idleMinutes int) (InactivityEvent, bool) {
	if idleMinutes <= 0 {
		return InactivityEvent{}, false
	}
	return a.clock.fire(fireRequest{
		cause: CauseWorkStatus,
		idle:  time.Duration(idleMinutes) * time.Minute,
	})
}

// ForceInactivity синтезирует событие так, будто порог истек секунду назад.
// В состоянии Fired ничего не делает.
func (a *Arbiter) ForceInactivity() (InactivityEvent, bool) {
	return a.clock.fire(fireRequest{
		cause: CauseForced,
		idle:  a.clock.Threshold() + time.Second,
	})
}
