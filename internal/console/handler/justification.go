package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/xela07ax/spaceai-console/internal/infra/auth"
	"github.com/xela07ax/spaceai-console/internal/journal"
	"github.com/xela07ax/spaceai-console/internal/presence"
	"go.uber.org/zap"
)

// LatestReader: последнее объяснение пользователя (Redis).
type LatestReader interface {
	Latest(ctx context.Context, user string) (presence.JustificationRecord, error)
}

// HistoryReader: архив объяснений (Postgres). Может отсутствовать.
type HistoryReader interface {
	ListByUser(ctx context.Context, user string, limit int) ([]presence.JustificationRecord, error)
}

type JustificationHandler struct {
	latest  LatestReader
	history HistoryReader
	logger  *zap.Logger
}

func NewJustificationHandler(latest LatestReader, history HistoryReader, logger *zap.Logger) *JustificationHandler {
	return &JustificationHandler{latest: latest, history: history, logger: logger.Named("justification-api")}
}

type JustificationsResponse struct {
	User    string                         `json:"user"`
	Latest  *presence.JustificationRecord  `json:"latest,omitempty"`
	History []presence.JustificationRecord `json:"history"`
}

// List отдает объяснения пользователя. Чужие: только с scope hr.
func (h *JustificationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user := r.URL.Query().Get("user")
	if user == "" {
		user = id.Username
	}
	if user != id.Username && !id.HasScope("hr") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	resp := JustificationsResponse{User: user, History: []presence.JustificationRecord{}}

	latest, err := h.latest.Latest(r.Context(), user)
	switch {
	case err == nil:
		resp.Latest = &latest
	case errors.Is(err, journal.ErrNotFound):
	default:
		h.logger.Error("latest justification lookup failed", zap.String("user", user), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	if h.history != nil {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := h.history.ListByUser(r.Context(), user, limit)
		if err != nil {
			// Архив вторичен: отдаем то, что есть
			h.logger.Warn("justification history unavailable", zap.String("user", user), zap.Error(err))
		} else if list != nil {
			resp.History = list
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
