package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/spaceai-console/internal/domain"
	"github.com/xela07ax/spaceai-console/internal/infra/auth"
)

// AuthService: выдача токена и отзыв сессии.
type AuthService interface {
	GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error)
	Logout(ctx context.Context, sessionID string) error
}

type AuthHandler struct {
	service  AuthService
	sessions Sessions
}

func NewAuthHandler(s AuthService, sessions Sessions) *AuthHandler {
	return &AuthHandler{service: s, sessions: sessions}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		// не уточняем, что именно неверно (логин или пароль) для защиты от перебора
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Logout: обычный выход из меню. Трекер сессии гасится сразу, остальные инстансы узнают по Pub/Sub.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	err := h.service.Logout(r.Context(), id.SessionID)
	h.sessions.Drop(id.SessionID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "signed out locally, session revoke failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
