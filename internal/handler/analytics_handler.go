package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/geodle/internal/model"
)

// AnalyticsServiceInterface はセッション分析ハンドラーが必要とするサービスインターフェース。
type AnalyticsServiceInterface interface {
	DayStats(ctx context.Context, date time.Time) (*model.DayStatsSummary, error)
	RangeStats(ctx context.Context, since time.Time) (*model.RangeStatsSummary, error)
}

// AnalyticsHandler はセッション統計クエリのHTTPハンドラー。
type AnalyticsHandler struct {
	service AnalyticsServiceInterface
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(service AnalyticsServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// dateParamLayout は日付クエリパラメータの形式。
const dateParamLayout = "2006-01-02"

// sessionLengthResponse はセッション長統計のレスポンス。値は秒。
type sessionLengthResponse struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
}

// dayStatsResponse は1日分の統計レスポンス。
type dayStatsResponse struct {
	Date          string                `json:"date"`
	SessionLength sessionLengthResponse `json:"session_length"`
	ActiveUsers   struct {
		Current int `json:"current"`
		Max     int `json:"max"`
	} `json:"active_users"`
}

// rangeStatsResponse は期間平均の統計レスポンス。
type rangeStatsResponse struct {
	Since         string                `json:"since"`
	Days          int                   `json:"days"`
	SessionLength sessionLengthResponse `json:"session_length"`
	ActiveUsers   struct {
		Current float64 `json:"current"`
		Max     float64 `json:"max"`
	} `json:"active_users"`
}

// Stats は日次またはレンジのセッション統計を返す。
// onとsinceは同時には指定できない。どちらも省略した場合は今日（UTC）の日次統計を返す。
// GET /v2/analytics
// GET /v2/analytics?on=2026-03-16
// GET /v2/analytics?since=2026-03-10
func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	on := r.URL.Query().Get("on")
	since := r.URL.Query().Get("since")

	if on != "" && since != "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "onとsinceは同時に指定できません。",
			Category: "validation",
			Action:   "クエリパラメータを確認してください。",
		})
		return
	}

	if since == "" {
		// 日次統計。on省略時は今日（UTC）が対象
		date := time.Now().UTC()
		if on != "" {
			var err error
			date, err = time.Parse(dateParamLayout, on)
			if err != nil {
				writeInvalidDateError(w, on)
				return
			}
		}

		summary, err := h.service.DayStats(r.Context(), date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := dayStatsResponse{
			Date: summary.Date.Format(dateParamLayout),
			SessionLength: sessionLengthResponse{
				Min:    summary.Min.Seconds(),
				Max:    summary.Max.Seconds(),
				Mean:   summary.Mean.Seconds(),
				Median: summary.Median.Seconds(),
				P95:    summary.P95.Seconds(),
			},
		}
		resp.ActiveUsers.Current = summary.CurrentActiveUsers
		resp.ActiveUsers.Max = summary.MaxActiveUsers

		writeJSON(w, http.StatusOK, resp)
		return
	}

	date, err := time.Parse(dateParamLayout, since)
	if err != nil {
		writeInvalidDateError(w, since)
		return
	}

	summary, err := h.service.RangeStats(r.Context(), date)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := rangeStatsResponse{
		Since: summary.Since.Format(dateParamLayout),
		Days:  summary.Days,
		SessionLength: sessionLengthResponse{
			Min:    summary.Min.Seconds(),
			Max:    summary.Max.Seconds(),
			Mean:   summary.Mean.Seconds(),
			Median: summary.Median.Seconds(),
			P95:    summary.P95.Seconds(),
		},
	}
	resp.ActiveUsers.Current = summary.CurrentActiveUsers
	resp.ActiveUsers.Max = summary.MaxActiveUsers

	writeJSON(w, http.StatusOK, resp)
}

// writeInvalidDateError は日付パラメータの形式エラーを書き込む。
func writeInvalidDateError(w http.ResponseWriter, value string) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "日付の形式が正しくありません: " + value,
		Category: "validation",
		Action:   "YYYY-MM-DD形式で指定してください。",
	})
}
