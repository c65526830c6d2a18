package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/geodle/internal/leaderboard"
	"github.com/hitoshi/geodle/internal/middleware"
	"github.com/hitoshi/geodle/internal/model"
)

// LeaderboardServiceInterface はリーダーボードハンドラーが必要とするサービスインターフェース。
type LeaderboardServiceInterface interface {
	Get(ctx context.Context, userID int64) (*model.LeaderboardEntry, error)
	Update(ctx context.Context, userID int64, update leaderboard.EntryUpdate) (*model.LeaderboardEntry, error)
	Top(ctx context.Context, limit, offset int) ([]leaderboard.RankedEntry, error)
}

// LeaderboardHandler はリーダーボードのHTTPハンドラー。
type LeaderboardHandler struct {
	service LeaderboardServiceInterface
}

// NewLeaderboardHandler はLeaderboardHandlerを生成する。
func NewLeaderboardHandler(service LeaderboardServiceInterface) *LeaderboardHandler {
	return &LeaderboardHandler{
		service: service,
	}
}

// entryResponse はリーダーボードエントリのAPIレスポンス。
type entryResponse struct {
	UserID                int64   `json:"user_id"`
	DailyStreak           int     `json:"daily_streak"`
	LongestDailyStreak    int     `json:"longest_daily_streak"`
	AverageDailyGuesses   float64 `json:"average_daily_guesses"`
	AverageDailyTime      float64 `json:"average_daily_time"`
	LongestSurvivalStreak int     `json:"longest_survival_streak"`
}

// rankedEntryResponse は順位とユーザー名付きのエントリレスポンス。
type rankedEntryResponse struct {
	Rank     int    `json:"rank"`
	UserName string `json:"user_name"`
	entryResponse
}

// updateEntryRequest はエントリ更新リクエストのボディ。nilのフィールドは変更しない。
type updateEntryRequest struct {
	DailyStreak           *int     `json:"daily_streak,omitempty"`
	LongestDailyStreak    *int     `json:"longest_daily_streak,omitempty"`
	AverageDailyGuesses   *float64 `json:"average_daily_guesses,omitempty"`
	AverageDailyTime      *float64 `json:"average_daily_time,omitempty"`
	LongestSurvivalStreak *int     `json:"longest_survival_streak,omitempty"`
}

// toEntryResponse はmodel.LeaderboardEntryからAPIレスポンスに変換する。
func toEntryResponse(entry *model.LeaderboardEntry) entryResponse {
	return entryResponse{
		UserID:                entry.UserID,
		DailyStreak:           entry.DailyStreak,
		LongestDailyStreak:    entry.LongestDailyStreak,
		AverageDailyGuesses:   entry.AverageDailyGuesses,
		AverageDailyTime:      entry.AverageDailyTime,
		LongestSurvivalStreak: entry.LongestSurvivalStreak,
	}
}

// Top は最長デイリーストリーク降順の上位一覧を返す。
// GET /v2/leaderboard?limit=10&offset=0
func (h *LeaderboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	ranked, err := h.service.Top(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]rankedEntryResponse, len(ranked))
	for i, re := range ranked {
		resp[i] = rankedEntryResponse{
			Rank:          re.Rank,
			UserName:      re.UserName,
			entryResponse: toEntryResponse(re.Entry),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Me は認証済みユーザー自身のエントリを返す。
// GET /v2/leaderboard/me
func (h *LeaderboardHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	entry, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

// UpdateMe は認証済みユーザー自身のエントリを部分更新する。
// PATCH /v2/leaderboard/me
func (h *LeaderboardHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	var req updateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	entry, err := h.service.Update(r.Context(), userID, leaderboard.EntryUpdate{
		DailyStreak:           req.DailyStreak,
		LongestDailyStreak:    req.LongestDailyStreak,
		AverageDailyGuesses:   req.AverageDailyGuesses,
		AverageDailyTime:      req.AverageDailyTime,
		LongestSurvivalStreak: req.LongestSurvivalStreak,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}
