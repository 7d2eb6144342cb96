package presence

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// WorkStatus: эвристика "работает ли пользователь с данными". Считает только изменяющие
// вызовы к бизнес-ресурсам, в отличие от сетевого сигнала, которому подходит любой запрос.
type WorkStatus struct {
	mu         sync.Mutex
	clk        clockwork.Clock
	prefixes   []string
	lastWorkAt time.Time
	idle       bool
	idleAfter  time.Duration
}

// workIdleAfter: через сколько без изменений данных статус считается idle.
const workIdleAfter = time.Minute

func NewWorkStatus(clk clockwork.Clock, cfg WorkStatusConfig) *WorkStatus {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	prefixes := make([]string, 0, len(cfg.BusinessPrefixes))
	for _, p := range cfg.BusinessPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, strings.TrimSuffix(p, "/"))
		}
	}
	return &WorkStatus{
		clk:        clk,
		prefixes:   prefixes,
		lastWorkAt: clk.Now(),
		idleAfter:  workIdleAfter,
	}
}

// IsBusinessCall: изменяющий метод к бизнес-ресурсу.
func (w *WorkStatus) IsBusinessCall(method, path string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	if len(w.prefixes) == 0 {
		return true
	}
	for _, p := range w.prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Observe учитывает вызов. Возвращает true, если статус перешел из idle в active.
func (w *WorkStatus) Observe(method, path string) bool {
	if !w.IsBusinessCall(method, path) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clk.Now()
	wasIdle := w.idle || now.Sub(w.lastWorkAt) >= w.idleAfter
	w.lastWorkAt = now
	w.idle = false
	return wasIdle
}

// IdleMinutes: накопленный простой в целых минутах (вниз).
func (w *WorkStatus) IdleMinutes() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := w.clk.Now().Sub(w.lastWorkAt)
	if elapsed >= w.idleAfter {
		w.idle = true
	}
	return int(elapsed / time.Minute)
}

// Active: были ли изменения данных за последнюю минуту.
func (w *WorkStatus) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.idle && w.clk.Now().Sub(w.lastWorkAt) < w.idleAfter
}

// Restart обнуляет накопленный простой (явное решение пользователя, включение мониторинга).
func (w *WorkStatus) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastWorkAt = w.clk.Now()
	w.idle = false
}
