package presence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Stage: экран окна подтверждения.
type Stage string

const (
	StageClosed     Stage = "closed"     // окна нет
	StagePrompt     Stage = "prompt"     // три варианта
	StageJustifying Stage = "justifying" // открыто поле причины
	StageResolved   Stage = "resolved"   // выбор сделан
)

// Choice: решение пользователя.
type Choice string

const (
	ChoiceContinue Choice = "continue"
	ChoiceJustify  Choice = "justify"
	ChoiceLogout   Choice = "logout"
)

// JustificationSink принимает объяснение. Вызов не должен блокировать (fire-and-forget).
type JustificationSink interface {
	Persist(ctx context.Context, record JustificationRecord) error
}

// LogoutFunc завершает сессию на стороне хоста.
type LogoutFunc func(ctx context.Context) error

// WorkflowDeps: внешние участники окна подтверждения.
type WorkflowDeps struct {
	UserIdentity string
	SessionID    string
	Clock        clockwork.Clock
	Sink         JustificationSink
	Logout       LogoutFunc

	// OnResolve вызывается ровно один раз, после внешних побочных эффектов.
	OnResolve func(choice Choice)
	// Notify получает неблокирующие уведомления (PersistenceError, LogoutError).
	Notify func(err error)
}

// Workflow: окно подтверждения на одно срабатывание.
type Workflow struct {
	mu     sync.Mutex
	event  InactivityEvent
	stage  Stage
	choice Choice
	deps   WorkflowDeps
}

func NewWorkflow(event InactivityEvent, deps WorkflowDeps) *Workflow {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Workflow{event: event, stage: StagePrompt, deps: deps}
}

func (w *Workflow) Event() InactivityEvent { return w.event }

func (w *Workflow) Stage() Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

func (w *Workflow) Choice() Choice {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.choice
}

// Dismiss всегда отклоняется: простой нужно разрешить одним из трех вариантов.
func (w *Workflow) Dismiss() error {
	return ErrDismissNotAllowed
}

// Continue закрывает окно и сбрасывает часы.
func (w *Workflow) Continue() error {
	if err := w.resolve(ChoiceContinue); err != nil {
		return err
	}
	w.finish(ChoiceContinue)
	return nil
}

// BeginJustify открывает поле причины.
func (w *Workflow) BeginJustify() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.stage {
	case StagePrompt:
		w.stage = StageJustifying
		return nil
	case StageJustifying:
		return nil
	default:
		return ErrWorkflowClosed
	}
}

// CanSubmit: состояние кнопки отправки.
func CanSubmit(reason string) bool {
	return ValidateReason(reason) == nil
}

// ValidateReason: от 1 до 500 символов после обрезки пробелов.
func ValidateReason(reason string) error {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return ErrReasonEmpty
	}
	if utf8.RuneCountInString(trimmed) > MaxReasonLength {
		return ErrReasonTooLong
	}
	return nil
}

// SubmitJustification строит запись, отдает ее приемнику, закрывает окно и сбрасывает часы.
// Отказ приемника не мешает закрытию: он уходит в Notify как PersistenceError.
func (w *Workflow) SubmitJustification(ctx context.Context, reason string) (JustificationRecord, error) {
	if err := ValidateReason(reason); err != nil {
		return JustificationRecord{}, err
	}

	w.mu.Lock()
	if w.stage != StageJustifying {
		w.mu.Unlock()
		if w.stage == StagePrompt {
			return JustificationRecord{}, ErrJustifyNotStarted
		}
		return JustificationRecord{}, ErrWorkflowClosed
	}
	w.stage = StageResolved
	w.choice = ChoiceJustify
	w.mu.Unlock()

	record := JustificationRecord{
		ID:           uuid.New().String(),
		Reason:       strings.TrimSpace(reason),
		CapturedAt:   w.deps.Clock.Now(),
		UserIdentity: w.deps.UserIdentity,
		SessionID:    w.deps.SessionID,
		IdleDuration: w.event.IdleDuration,
	}

	if w.deps.Sink != nil {
		if err := safeCall(func() error { return w.deps.Sink.Persist(ctx, record) }); err != nil {
			w.notify(&PersistenceError{Record: record, Cause: err})
		}
	}

	w.finish(ChoiceJustify)
	return record, nil
}

// Logout закрывает окно и вызывает logout хоста. Ошибка logout возвращается как LogoutError,
// но локальное состояние очищается в любом случае.
func (w *Workflow) Logout(ctx context.Context) error {
	if err := w.resolve(ChoiceLogout); err != nil {
		return err
	}

	var logoutErr error
	if w.deps.Logout != nil {
		if err := safeCall(func() error { return w.deps.Logout(ctx) }); err != nil {
			logoutErr = &LogoutError{Cause: err}
			w.notify(logoutErr)
		}
	}

	w.finish(ChoiceLogout)
	return logoutErr
}

func (w *Workflow) resolve(choice Choice) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage != StagePrompt && w.stage != StageJustifying {
		return ErrWorkflowClosed
	}
	w.stage = StageResolved
	w.choice = choice
	return nil
}

func (w *Workflow) finish(choice Choice) {
	if w.deps.OnResolve != nil {
		w.deps.OnResolve(choice)
	}
}

func (w *Workflow) notify(err error) {
	if w.deps.Notify != nil {
		w.deps.Notify(err)
	}
}

// safeCall превращает панику внешнего участника в ошибку.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collaborator panic: %v", r)
		}
	}()
	return fn()
}
