package model

import "time"

// FriendRequestStatus はフレンドリクエストの状態を表す。
type FriendRequestStatus string

const (
	// FriendRequestPending は未回答のリクエストを示す。
	FriendRequestPending FriendRequestStatus = "pending"
	// FriendRequestAccepted は承認済みのリクエスト（=フレンド関係）を示す。
	FriendRequestAccepted FriendRequestStatus = "accepted"
	// FriendRequestDeclined は拒否されたリクエストを示す。
	FriendRequestDeclined FriendRequestStatus = "declined"
)

// FriendRequest は2ユーザー間のフレンドリクエストを表す。
// (requestor_id, requestee_id)の組はUNIQUE制約で一意。
type FriendRequest struct {
	ID          int64
	RequestorID int64
	RequesteeID int64
	Status      FriendRequestStatus
	SentAt      time.Time
}
