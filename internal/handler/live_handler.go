package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/rglive/internal/middleware"
	"github.com/hitoshi/rglive/internal/model"
	"github.com/hitoshi/rglive/internal/repository"
)

// LiveHandler はストアに記録された現在のライブ状態を返すハンドラー。
type LiveHandler struct {
	repo   repository.LiveStatusRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewLiveHandler はLiveHandlerを生成する。
func NewLiveHandler(repo repository.LiveStatusRepository, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// liveResponse は現在のライブ状態のAPIレスポンス。
// membersとlive_membersは常に配列で返す（nullにしない）。
type liveResponse struct {
	Total       int                    `json:"total"`
	LiveCount   int                    `json:"live_count"`
	Members     []model.MemberOverview `json:"members"`
	LiveMembers []model.MemberOverview `json:"live_members"`
	Timestamp   string                 `json:"timestamp"`
}

// ListLive は活動中メンバー全員と、そのうち配信中のメンバーを返す。
// GET /live
func (h *LiveHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	members, err := h.repo.ListOverview(r.Context(), model.PlatformPandaTV)
	if err != nil {
		h.logger.Error("failed to list live status", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	resp := liveResponse{
		Members:     make([]model.MemberOverview, 0, len(members)),
		LiveMembers: []model.MemberOverview{},
		Timestamp:   h.now().UTC().Format(time.RFC3339),
	}
	for _, m := range members {
		resp.Members = append(resp.Members, m)
		if m.IsLive {
			resp.LiveMembers = append(resp.LiveMembers, m)
		}
	}
	resp.Total = len(resp.Members)
	resp.LiveCount = len(resp.LiveMembers)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(resp)
}
