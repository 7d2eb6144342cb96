package presence

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Deps: всё, что трекер получает от хоста.
type Deps struct {
	// Env: текущий пользователь, маршрут и флаг системной проверки.
	Env          EnvironmentFunc
	UserIdentity string
	SessionID    string
	Sink         JustificationSink
	Logout       LogoutFunc

	// OnFire вызывается вне блокировки после открытия окна подтверждения.
	OnFire func(event InactivityEvent)
	// Notify: неблокирующие уведомления хосту (PersistenceError, LogoutError, SignalAttachmentError).
	Notify func(err error)
}

type Option func(*Tracker)

func WithClock(clk clockwork.Clock) Option {
	return func(t *Tracker) { t.clk = clk }
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// Tracker: единый компонент, который владеет одним ActivityState и всеми путями детекции.
// Все операции сериализуются мьютексом: сброс, пришедший до оценки тика, всегда применяется первым.
type Tracker struct {
	cfg     Config
	deps    Deps
	clk     clockwork.Clock
	logger  *zap.Logger
	metrics *Metrics

	mu         sync.Mutex
	clock      *Clock
	collector  *Collector
	arbiter    *Arbiter
	work       *WorkStatus
	workflow   *Workflow
	monitoring bool // последнее вычисленное: идет ли отсчет
	halted     bool // после Stop или logout: ничего не делаем до Start

	// parent задан между Start и Stop. Тикер крутится, только пока идет отсчет.
	parent  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped []chan struct{} // горутины тикера, остановленные под мьютексом
}

func New(cfg Config, deps Deps, opts ...Option) *Tracker {
	cfg = cfg.withDefaults()
	t := &Tracker{cfg: cfg, deps: deps}
	for _, opt := range opts {
		opt(t)
	}
	if t.clk == nil {
		t.clk = clockwork.NewRealClock()
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	t.logger = t.logger.Named("presence")
	if t.metrics == nil {
		t.metrics = NewMetrics(nil)
	}
	if t.deps.Env == nil {
		t.deps.Env = func() Environment { return Environment{UserPresent: true} }
	}

	t.clock = NewClock(t.clk, cfg.InactivityThreshold)
	t.collector = NewCollector(cfg, t.clock)
	t.arbiter = NewArbiter(t.clock)
	t.work = NewWorkStatus(t.clk, cfg.WorkStatus)
	t.monitoring = t.collector.Monitoring(t.deps.Env())
	return t
}

// Start включает трекер. Тикер запускается, если мониторинг уже идет.
// Повторный вызов на работающем трекере ничего не делает.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.release(nil)

	if t.parent != nil {
		return
	}
	t.halted = false
	t.parent = ctx
	// Отсчет начинается с момента запуска.
	t.monitoring = false
	t.syncMonitoringLocked(t.deps.Env())

	t.metrics.ActiveTrackers.Inc()
	t.logger.Info("activity tracking started",
		zap.String("session_id", t.deps.SessionID),
		zap.Duration("threshold", t.cfg.InactivityThreshold),
		zap.Duration("tick", t.cfg.TickInterval))
}

func (t *Tracker) loop(ctx context.Context, ticker clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.tick(done)
		}
	}
}

// startTickerLocked поднимает горутину тикера, если трекер запущен и она еще не крутится.
func (t *Tracker) startTickerLocked() {
	if t.parent == nil || t.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(t.parent)
	done := make(chan struct{})
	t.cancel, t.done = cancel, done

	ticker := t.clk.NewTicker(t.cfg.TickInterval)
	go t.loop(runCtx, ticker, done)
}

// stopTickerLocked отменяет горутину тикера. Ждать ее выхода можно только без мьютекса,
// поэтому done откладывается до release.
func (t *Tracker) stopTickerLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.stopped = append(t.stopped, t.done)
	t.cancel, t.done = nil, nil
}

// release отпускает мьютекс и дожидается остановленных под ним горутин тикера.
// self: горутина, которая вызывает release сама и себя не ждет.
func (t *Tracker) release(self chan struct{}) {
	pending := t.stopped
	t.stopped = nil
	t.mu.Unlock()

	for _, done := range pending {
		if done != self {
			<-done
		}
	}
}

// Stop детерминированно останавливает тикер и ждет выхода горутины.
// После Stop трекер не стреляет и не принимает сигналы.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.haltLocked()
	t.release(nil)
}

// haltLocked очищает локальное состояние и останавливает тикер.
func (t *Tracker) haltLocked() {
	t.halted = true
	t.workflow = nil
	// Состояние пересоздается при следующем включении мониторинга.
	t.monitoring = false
	t.stopTickerLocked()

	if t.parent != nil {
		t.parent = nil
		t.metrics.ActiveTrackers.Dec()
		t.logger.Info("activity tracking stopped", zap.String("session_id", t.deps.SessionID))
	}
}

// SetEnabled: главный выключатель. Выключение останавливает тикер,
// повторное включение начинает отсчет заново.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.release(nil)
	t.collector.enabled = enabled
	t.syncMonitoringLocked(t.deps.Env())
}

// Refresh перечитывает окружение хоста (маршрут, пользователь) без сигнала активности.
func (t *Tracker) Refresh() {
	t.mu.Lock()
	defer t.release(nil)
	if t.halted {
		return
	}
	t.syncMonitoringLocked(t.deps.Env())
}

// syncMonitoringLocked создает состояние и тикер при включении мониторинга,
// сбрасывает их при выключении.
func (t *Tracker) syncMonitoringLocked(env Environment) bool {
	on := t.collector.Monitoring(env)
	switch {
	case on && !t.monitoring:
		t.clock.restart()
		t.work.Restart()
		t.startTickerLocked()
		t.debug("monitoring enabled", zap.String("route", env.Route))
	case !on && t.monitoring:
		t.clock.restart()
		t.work.Restart()
		t.workflow = nil
		t.stopTickerLocked()
		t.debug("monitoring suspended", zap.String("route", env.Route), zap.Bool("user_present", env.UserPresent))
	}
	t.monitoring = on
	return on
}

// Signal передает наблюдение коллектору. Принятый сигнал сбрасывает часы синхронно.
func (t *Tracker) Signal(sig Signal) Outcome {
	t.mu.Lock()
	defer t.release(nil)
	return t.signalLocked(sig, t.deps.Env())
}

func (t *Tracker) signalLocked(sig Signal, env Environment) Outcome {
	if t.halted {
		t.metrics.SignalsTotal.WithLabelValues(sig.Kind.String(), string(OutcomeDisabled)).Inc()
		return OutcomeDisabled
	}
	t.syncMonitoringLocked(env)

	outcome := t.collector.Observe(sig, env)
	if outcome == OutcomeAccepted && sig.Kind == SignalExplicit {
		t.work.Restart()
	}
	t.metrics.SignalsTotal.WithLabelValues(sig.Kind.String(), string(outcome)).Inc()
	t.debug("signal observed", zap.Stringer("source", sig.Kind), zap.String("outcome", string(outcome)))
	return outcome
}

// ObserveCall вызывается сетевым перехватчиком: сетевой сигнал и, для изменений данных,
// переход рабочего статуса idle -> active.
func (t *Tracker) ObserveCall(method, path string) {
	t.mu.Lock()
	defer t.release(nil)

	env := t.deps.Env()
	t.signalLocked(Signal{Kind: SignalNetwork}, env)
	if t.halted {
		return
	}

	if t.collector.Admit(Signal{Kind: SignalWorkStatus}, env, t.clock.State()) != OutcomeAccepted {
		return
	}
	if t.work.Observe(method, path) {
		t.signalLocked(Signal{Kind: SignalWorkStatus}, env)
	}
}

// AttachHTTPClient подключает сетевой источник к клиенту. Ошибка не фатальна:
// трекер продолжает работать на остальных источниках.
func (t *Tracker) AttachHTTPClient(client *http.Client) error {
	if err := Attach(client, t, ""); err != nil {
		t.logger.Warn("network signal source unavailable, continuing without it", zap.Error(err))
		t.notify(err)
		return err
	}
	return nil
}

// Reset: явный сброс (операция reset). Снимает и простой рабочего статуса.
// Открытое окно подтверждения снимается только выбором, поэтому тогда Reset отклоняется.
func (t *Tracker) Reset() Outcome {
	t.mu.Lock()
	defer t.release(nil)
	return t.signalLocked(Signal{Kind: SignalExplicit}, t.deps.Env())
}

// Tick: одна оценка. Вызывается тикером, доступна и напрямую.
func (t *Tracker) Tick() (InactivityEvent, bool) {
	return t.tick(nil)
}

func (t *Tracker) tick(self chan struct{}) (InactivityEvent, bool) {
	t.mu.Lock()
	event, fired := t.tickLocked()
	t.release(self)

	if fired {
		t.emit(event)
	}
	return event, fired
}

func (t *Tracker) tickLocked() (InactivityEvent, bool) {
	if t.halted || !t.syncMonitoringLocked(t.deps.Env()) {
		return InactivityEvent{}, false
	}

	event, fired := t.arbiter.Evaluate()
	if !fired && t.cfg.Sources.WorkStatus {
		event, fired = t.arbiter.ReportWorkIdle(t.work.IdleMinutes())
	}
	if fired {
		t.openLocked(event)
	}
	return event, fired
}

// ForceInactivity: ручное срабатывание для поддержки и тестов. Не стреляет повторно.
func (t *Tracker) ForceInactivity() (InactivityEvent, bool) {
	t.mu.Lock()
	var (
		event InactivityEvent
		fired bool
	)
	if !t.halted && t.syncMonitoringLocked(t.deps.Env()) {
		event, fired = t.arbiter.ForceInactivity()
		if fired {
			t.openLocked(event)
		}
	}
	t.release(nil)

	if fired {
		t.emit(event)
	}
	return event, fired
}

func (t *Tracker) openLocked(event InactivityEvent) {
	var wf *Workflow
	wf = NewWorkflow(event, WorkflowDeps{
		UserIdentity: t.deps.UserIdentity,
		SessionID:    t.deps.SessionID,
		Clock:        t.clk,
		Sink:         t.deps.Sink,
		Logout:       t.deps.Logout,
		Notify:       t.notify,
		OnResolve:    func(choice Choice) { t.resolved(wf, choice) },
	})
	t.workflow = wf
	t.metrics.FiredTotal.WithLabelValues(string(event.Cause)).Inc()
}

func (t *Tracker) emit(event InactivityEvent) {
	t.logger.Info("inactivity detected",
		zap.String("session_id", t.deps.SessionID),
		zap.String("user", t.deps.UserIdentity),
		zap.String("cause", string(event.Cause)),
		zap.Duration("idle", event.IdleDuration))
	if t.deps.OnFire != nil {
		t.deps.OnFire(event)
	}
}

// resolved: обратный вызов окна. Continue/Justify возвращают в Active, Logout гасит трекер.
func (t *Tracker) resolved(wf *Workflow, choice Choice) {
	t.metrics.ResolutionsTotal.WithLabelValues(string(choice)).Inc()

	t.mu.Lock()
	if t.workflow != wf {
		// Окно уже снято (смена маршрута, Stop): состояние не трогаем.
		t.mu.Unlock()
		return
	}
	t.workflow = nil

	if choice != ChoiceLogout {
		t.clock.Reset()
		t.work.Restart()
		t.mu.Unlock()
		t.debug("prompt resolved", zap.String("choice", string(choice)))
		return
	}

	t.haltLocked()
	t.release(nil)
}

// Workflow возвращает открытое окно подтверждения.
func (t *Tracker) Workflow() (*Workflow, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.halted {
		return nil, ErrTrackerStopped
	}
	if t.workflow == nil {
		return nil, ErrNoPrompt
	}
	return t.workflow, nil
}

// Status: снимок для отображения.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := t.clock.Tick()
	st := Status{
		Enabled:   t.collector.enabled && !t.halted,
		Suspended: !t.monitoring,
		State:     t.clock.State(),
		Remaining: remaining,
		Countdown: countdownOf(remaining),
		Stage:     StageClosed,
	}
	if t.workflow != nil {
		st.Stage = t.workflow.Stage()
		ev := t.workflow.Event()
		st.Event = &ev
	}
	return st
}

// Running: крутится ли горутина тикера.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Tracker) notify(err error) {
	var (
		persistErr *PersistenceError
		logoutErr  *LogoutError
		attachErr  *SignalAttachmentError
	)
	switch {
	case errors.As(err, &persistErr):
		t.metrics.FailuresTotal.WithLabelValues("persistence").Inc()
		t.logger.Warn("justification not persisted", zap.String("user", persistErr.Record.UserIdentity), zap.Error(err))
	case errors.As(err, &logoutErr):
		t.metrics.FailuresTotal.WithLabelValues("logout").Inc()
		t.logger.Warn("logout failed, local state cleared anyway", zap.Error(err))
	case errors.As(err, &attachErr):
		t.metrics.FailuresTotal.WithLabelValues("attachment").Inc()
	}
	if t.deps.Notify != nil {
		t.deps.Notify(err)
	}
}

func (t *Tracker) debug(msg string, fields ...zap.Field) {
	if t.cfg.Debug {
		t.logger.Debug(msg, fields...)
	}
}
