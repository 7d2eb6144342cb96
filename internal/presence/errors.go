package presence

import (
	"errors"
	"fmt"
)

var (
	ErrDismissNotAllowed = errors.New("presence: inactivity prompt must be resolved explicitly")
	ErrReasonEmpty       = errors.New("presence: justification reason is empty")
	ErrReasonTooLong     = errors.New("presence: justification reason is too long")
	ErrNoPrompt          = errors.New("presence: no inactivity prompt is open")
	ErrWorkflowClosed    = errors.New("presence: workflow already resolved")
	ErrJustifyNotStarted = errors.New("presence: justification field is not revealed")
	ErrTrackerStopped    = errors.New("presence: tracker is not running")
)

// SignalAttachmentError: источник сигналов не удалось подключить. Не фатально.
type SignalAttachmentError struct {
	Source SignalKind
	Cause  error
}

func (e *SignalAttachmentError) Error() string {
	return fmt.Sprintf("presence: signal source %s not attached: %v", e.Source, e.Cause)
}

func (e *SignalAttachmentError) Unwrap() error { return e.Cause }

// PersistenceError: приемник объяснений отказал. Окно все равно закрывается.
type PersistenceError struct {
	Record JustificationRecord
	Cause  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("presence: justification for %s not persisted: %v", e.Record.UserIdentity, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// LogoutError: logout хоста завершился ошибкой. Локальное состояние уже очищено.
type LogoutError struct {
	Cause error
}

func (e *LogoutError) Error() string {
	return fmt.Sprintf("presence: logout failed: %v", e.Cause)
}

func (e *LogoutError) Unwrap() error { return e.Cause }
