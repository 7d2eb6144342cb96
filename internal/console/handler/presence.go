package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/xela07ax/spaceai-console/internal/domain"
	"github.com/xela07ax/spaceai-console/internal/infra/auth"
	"github.com/xela07ax/spaceai-console/internal/presence"
	"github.com/xela07ax/spaceai-console/internal/session"
	"go.uber.org/zap"
)

// Sessions: реестр трекеров по сессиям.
type Sessions interface {
	Acquire(id domain.Identity) *session.Entry
	Lookup(sessionID string) (*session.Entry, bool)
	Drop(sessionID string)
}

type PresenceHandler struct {
	sessions Sessions
	logger   *zap.Logger
}

func NewPresenceHandler(s Sessions, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{sessions: s, logger: logger.Named("presence-api")}
}

type SignalRequest struct {
	Kind    string `json:"kind"`
	Route   string `json:"route"`
	Visible bool   `json:"visible"`
}

type SignalResponse struct {
	Outcome presence.Outcome `json:"outcome"`
	Status  StatusView       `json:"status"`
}

// StatusView: статус для SPA, длительности в миллисекундах.
type StatusView struct {
	Enabled        bool               `json:"enabled"`
	Suspended      bool               `json:"suspended"`
	LastActivityAt time.Time          `json:"last_activity_at"`
	ThresholdMs    int64              `json:"threshold_ms"`
	RemainingMs    int64              `json:"remaining_ms"`
	Countdown      presence.Countdown `json:"countdown"`
	Stage          presence.Stage     `json:"stage"`
	Prompt         *PromptView        `json:"prompt,omitempty"`
}

// PromptView: окно подтверждения. Закрыть его без выбора нельзя.
type PromptView struct {
	FiredAt         time.Time          `json:"fired_at"`
	LastActivityAt  time.Time          `json:"last_activity_at"`
	IdleMs          int64              `json:"idle_ms"`
	MinutesInactive int                `json:"minutes_inactive"`
	Cause           presence.FireCause `json:"cause"`
	Dismissible     bool               `json:"dismissible"`
	MaxReasonLength int                `json:"max_reason_length"`
}

func viewOf(st presence.Status) StatusView {
	v := StatusView{
		Enabled:        st.Enabled,
		Suspended:      st.Suspended,
		LastActivityAt: st.State.LastActivityAt,
		ThresholdMs:    st.State.Threshold.Milliseconds(),
		RemainingMs:    st.Remaining.Milliseconds(),
		Countdown:      st.Countdown,
		Stage:          st.Stage,
	}
	if st.Event != nil {
		v.Prompt = promptOf(*st.Event)
	}
	return v
}

func promptOf(ev presence.InactivityEvent) *PromptView {
	return &PromptView{
		FiredAt:         ev.FiredAt,
		LastActivityAt:  ev.LastActivityAt,
		IdleMs:          ev.IdleDurationMs(),
		MinutesInactive: ev.MinutesInactive(),
		Cause:           ev.Cause,
		MaxReasonLength: presence.MaxReasonLength,
	}
}

func (h *PresenceHandler) entry(w http.ResponseWriter, r *http.Request) (*session.Entry, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return h.sessions.Acquire(id), true
}

// Signal принимает сигнал активности от SPA (ввод, сеть, видимость вкладки).
func (h *PresenceHandler) Signal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := presence.ParseSignalKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	if req.Route != "" {
		e.SetRoute(req.Route)
	}

	outcome := e.Tracker.Signal(presence.Signal{Kind: kind, Visible: req.Visible})
	writeJSON(w, http.StatusOK, SignalResponse{Outcome: outcome, Status: viewOf(e.Tracker.Status())})
}

// Status: обратный отсчет и открытое окно подтверждения.
func (h *PresenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e.Tracker.Status()))
}

type ForceRequest struct {
	SessionID string `json:"session_id"`
}

// Force: ручное срабатывание (поддержка). Без session_id срабатывает своя сессия.
func (h *PresenceHandler) Force(w http.ResponseWriter, r *http.Request) {
	var req ForceRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var e *session.Entry
	if req.SessionID != "" {
		found, ok := h.sessions.Lookup(req.SessionID)
		if !ok {
			writeError(w, http.StatusNotFound, "session is not tracked")
			return
		}
		e = found
	} else {
		own, ok := h.entry(w, r)
		if !ok {
			return
		}
		e = own
	}

	ev, fired := e.Tracker.ForceInactivity()
	if !fired {
		writeError(w, http.StatusConflict, "inactivity already fired or tracking suspended")
		return
	}
	h.logger.Info("inactivity forced", zap.String("session_id", e.Identity.SessionID))
	writeJSON(w, http.StatusOK, promptOf(ev))
}

// Dismiss всегда отклоняется: окно закрывается только выбором.
func (h *PresenceHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	wf, err := e.Tracker.Workflow()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeError(w, http.StatusConflict, wf.Dismiss().Error())
}

func (h *PresenceHandler) Continue(w http.ResponseWriter, r *http.Request) {
	e, wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	if err := wf.Continue(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e.Tracker.Status()))
}

type JustifyRequest struct {
	Reason *string `json:"reason"`
}

type JustifyResponse struct {
	Record *presence.JustificationRecord `json:"record,omitempty"`
	Status StatusView                    `json:"status"`
}

// Justify: без reason открывает поле причины, с reason отправляет объяснение.
func (h *PresenceHandler) Justify(w http.ResponseWriter, r *http.Request) {
	var req JustifyRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, wf, ok := h.workflow(w, r)
	if !ok {
		return
	}

	if err := wf.BeginJustify(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if req.Reason == nil {
		writeJSON(w, http.StatusAccepted, JustifyResponse{Status: viewOf(e.Tracker.Status())})
		return
	}

	record, err := wf.SubmitJustification(r.Context(), *req.Reason)
	switch {
	case errors.Is(err, presence.ErrReasonEmpty), errors.Is(err, presence.ErrReasonTooLong):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, JustifyResponse{Record: &record, Status: viewOf(e.Tracker.Status())})
}

// Logout из окна: сессия отзывается, трекер гасится даже если отзыв не удался.
func (h *PresenceHandler) Logout(w http.ResponseWriter, r *http.Request) {
	e, wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	err := wf.Logout(r.Context())
	if errors.Is(err, presence.ErrWorkflowClosed) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.sessions.Drop(e.Identity.SessionID)

	var lerr *presence.LogoutError
	if errors.As(err, &lerr) {
		writeError(w, http.StatusBadGateway, "signed out locally, session revoke failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PresenceHandler) workflow(w http.ResponseWriter, r *http.Request) (*session.Entry, *presence.Workflow, bool) {
	e, ok := h.entry(w, r)
	if !ok {
		return nil, nil, false
	}
	wf, err := e.Tracker.Workflow()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return nil, nil, false
	}
	return e, wf, true
}
