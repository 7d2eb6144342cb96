package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/spaceai-console/internal/infra/auth"
	"go.uber.org/zap"
)

// VerificationSwitch: флаг системной проверки.
type VerificationSwitch interface {
	Set(ctx context.Context, on bool) error
	Verifying() bool
}

type VerificationHandler struct {
	flag   VerificationSwitch
	logger *zap.Logger
}

func NewVerificationHandler(flag VerificationSwitch, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{flag: flag, logger: logger.Named("verification-api")}
}

type VerificationRequest struct {
	Enabled bool `json:"enabled"`
}

type VerificationResponse struct {
	Verifying bool `json:"verifying"`
}

func (h *VerificationHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, VerificationResponse{Verifying: h.flag.Verifying()})
}

func (h *VerificationHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.flag.Set(r.Context(), req.Enabled); err != nil {
		h.logger.Error("verification switch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update verification flag")
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	h.logger.Info("verification switched", zap.Bool("enabled", req.Enabled), zap.String("by", id.Username))
	writeJSON(w, http.StatusOK, VerificationResponse{Verifying: req.Enabled})
}
