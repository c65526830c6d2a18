package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/geodle/internal/middleware"
	"github.com/hitoshi/geodle/internal/model"
)

// FriendsServiceInterface はフレンドハンドラーが必要とするサービスインターフェース。
type FriendsServiceInterface interface {
	SendRequest(ctx context.Context, requestorID, requesteeID int64) (*model.FriendRequest, error)
	Respond(ctx context.Context, userID, requestID int64, decision string) (*model.FriendRequest, error)
	ListFriends(ctx context.Context, userID int64) ([]*model.User, error)
	ListIncoming(ctx context.Context, userID int64) ([]*model.FriendRequest, error)
	ListOutgoing(ctx context.Context, userID int64) ([]*model.FriendRequest, error)
	Unfriend(ctx context.Context, userID, otherID int64) error
}

// FriendsHandler はフレンド管理のHTTPハンドラー。
type FriendsHandler struct {
	service FriendsServiceInterface
}

// NewFriendsHandler はFriendsHandlerを生成する。
func NewFriendsHandler(service FriendsServiceInterface) *FriendsHandler {
	return &FriendsHandler{
		service: service,
	}
}

// sendRequestRequest はフレンドリクエスト送信のボディ。
type sendRequestRequest struct {
	RequesteeID int64 `json:"requestee_id"`
}

// respondRequest はフレンドリクエスト回答のボディ。
type respondRequest struct {
	Decision string `json:"decision"`
}

// friendRequestResponse はフレンドリクエストのAPIレスポンス。
type friendRequestResponse struct {
	ID          int64     `json:"id"`
	RequestorID int64     `json:"requestor_id"`
	RequesteeID int64     `json:"requestee_id"`
	Status      string    `json:"status"`
	SentAt      time.Time `json:"sent_at"`
}

// toFriendRequestResponse はmodel.FriendRequestからAPIレスポンスに変換する。
func toFriendRequestResponse(req *model.FriendRequest) friendRequestResponse {
	return friendRequestResponse{
		ID:          req.ID,
		RequestorID: req.RequestorID,
		RequesteeID: req.RequesteeID,
		Status:      string(req.Status),
		SentAt:      req.SentAt,
	}
}

// SendRequest はフレンドリクエストを送信する。
// POST /v2/friend-requests
func (h *FriendsHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	var req sendRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	created, err := h.service.SendRequest(r.Context(), userID, req.RequesteeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFriendRequestResponse(created))
}

// ListRequests は未回答のフレンドリクエスト一覧を返す。
// direction=outgoingで送信済み、それ以外は受信分を返す。
// GET /v2/friend-requests?direction=incoming|outgoing
func (h *FriendsHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	var reqs []*model.FriendRequest
	if r.URL.Query().Get("direction") == "outgoing" {
		reqs, err = h.service.ListOutgoing(r.Context(), userID)
	} else {
		reqs, err = h.service.ListIncoming(r.Context(), userID)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]friendRequestResponse, len(reqs))
	for i, req := range reqs {
		resp[i] = toFriendRequestResponse(req)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Respond はフレンドリクエストに回答する。
// PATCH /v2/friend-requests/{id}
func (h *FriendsHandler) Respond(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	requestID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストIDは数値で指定してください。",
			Category: "validation",
			Action:   "リクエストIDを確認してください。",
		})
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	updated, err := h.service.Respond(r.Context(), userID, requestID, req.Decision)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFriendRequestResponse(updated))
}

// ListFriends はフレンド一覧を返す。
// GET /v2/friends
func (h *FriendsHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	friends, err := h.service.ListFriends(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]userResponse, len(friends))
	for i, f := range friends {
		resp[i] = toUserResponse(f)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Unfriend はフレンド関係を解除する。冪等。
// DELETE /v2/friends/{id}
func (h *FriendsHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	otherID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "ユーザーIDは数値で指定してください。",
			Category: "validation",
			Action:   "ユーザーIDを確認してください。",
		})
		return
	}

	if err := h.service.Unfriend(r.Context(), userID, otherID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
