package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/rglive/internal/middleware"
	"github.com/hitoshi/rglive/internal/repository"
)

// defaultPingTimeout はヘルスチェック時のストア疎通確認のタイムアウト。
const defaultPingTimeout = 3 * time.Second

// HealthHandler はストアへの疎通確認を返すハンドラー。
type HealthHandler struct {
	store       repository.Pinger
	logger      *slog.Logger
	pingTimeout time.Duration
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(store repository.Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:       store,
		logger:      logger,
		pingTimeout: defaultPingTimeout,
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health はストアに到達できれば200、できなければ503を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.pingTimeout)
	defer cancel()

	if err := h.store.PingContext(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "database is not reachable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}
