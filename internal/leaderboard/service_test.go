package leaderboard

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/geodle/internal/model"
)

// --- モック ---

type mockLeaderboardRepo struct {
	entries map[int64]*model.LeaderboardEntry
	listFn  func(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error)
}

func newMockLeaderboardRepo() *mockLeaderboardRepo {
	return &mockLeaderboardRepo{entries: make(map[int64]*model.LeaderboardEntry)}
}

func (m *mockLeaderboardRepo) EnsureEntry(ctx context.Context, userID int64) error {
	if _, ok := m.entries[userID]; !ok {
		m.entries[userID] = &model.LeaderboardEntry{ID: userID, UserID: userID}
	}
	return nil
}
func (m *mockLeaderboardRepo) FindByUserID(ctx context.Context, userID int64) (*model.LeaderboardEntry, error) {
	return m.entries[userID], nil
}
func (m *mockLeaderboardRepo) Update(ctx context.Context, entry *model.LeaderboardEntry) error {
	m.entries[entry.UserID] = entry
	return nil
}
func (m *mockLeaderboardRepo) ListTop(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}

type mockUserRepo struct {
	users map[int64]*model.User
}

func newMockUserRepo(ids ...int64) *mockUserRepo {
	users := make(map[int64]*model.User)
	for _, id := range ids {
		users[id] = &model.User{ID: id, Name: "user-" + string(rune('a'+id-1))}
	}
	return &mockUserRepo{users: users}
}

func (m *mockUserRepo) Create(ctx context.Context, name, email string, passwordHash []byte) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return m.users[id], nil
}
func (m *mockUserRepo) FindByName(ctx context.Context, name string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) { return nil, nil }
func (m *mockUserRepo) Update(ctx context.Context, id int64, name, email *string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash []byte) error {
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id int64) (bool, error) { return false, nil }

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返されるべき: %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %s, want %s", apiErr.Code, code)
	}
}

// --- テスト ---

// TestService_Get はエントリの取得を検証する。
func TestService_Get(t *testing.T) {
	lbRepo := newMockLeaderboardRepo()
	lbRepo.entries[1] = &model.LeaderboardEntry{ID: 1, UserID: 1, DailyStreak: 5}

	svc := NewService(lbRepo, newMockUserRepo(1))

	entry, err := svc.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if entry.DailyStreak != 5 {
		t.Errorf("DailyStreak = %d, want 5", entry.DailyStreak)
	}
}

// TestService_Get_UnknownUser は存在しないユーザーのエラーを検証する。
func TestService_Get_UnknownUser(t *testing.T) {
	svc := NewService(newMockLeaderboardRepo(), newMockUserRepo())

	_, err := svc.Get(context.Background(), 99)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

// TestService_Get_NoEntry はエントリのないユーザーのエラーを検証する。
func TestService_Get_NoEntry(t *testing.T) {
	svc := NewService(newMockLeaderboardRepo(), newMockUserRepo(1))

	_, err := svc.Get(context.Background(), 1)
	assertAPIErrorCode(t, err, model.ErrCodeEntryNotFound)
}

// TestService_Update は部分更新とエントリの自動作成を検証する。
func TestService_Update(t *testing.T) {
	lbRepo := newMockLeaderboardRepo()
	svc := NewService(lbRepo, newMockUserRepo(1))

	streak := 7
	avgTime := 42.5
	entry, err := svc.Update(context.Background(), 1, EntryUpdate{
		DailyStreak:      &streak,
		AverageDailyTime: &avgTime,
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if entry.DailyStreak != 7 {
		t.Errorf("DailyStreak = %d, want 7", entry.DailyStreak)
	}
	if entry.AverageDailyTime != 42.5 {
		t.Errorf("AverageDailyTime = %v, want 42.5", entry.AverageDailyTime)
	}
	// 指定しなかったフィールドはゼロ値のまま
	if entry.LongestDailyStreak != 0 {
		t.Errorf("LongestDailyStreak = %d, want 0", entry.LongestDailyStreak)
	}
}

// TestService_Update_PartialKeepsExisting は未指定フィールドが保持されることを検証する。
func TestService_Update_PartialKeepsExisting(t *testing.T) {
	lbRepo := newMockLeaderboardRepo()
	lbRepo.entries[1] = &model.LeaderboardEntry{ID: 1, UserID: 1, DailyStreak: 3, LongestDailyStreak: 9}

	svc := NewService(lbRepo, newMockUserRepo(1))

	streak := 4
	entry, err := svc.Update(context.Background(), 1, EntryUpdate{DailyStreak: &streak})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if entry.DailyStreak != 4 {
		t.Errorf("DailyStreak = %d, want 4", entry.DailyStreak)
	}
	if entry.LongestDailyStreak != 9 {
		t.Errorf("LongestDailyStreakは保持されるべき: %d", entry.LongestDailyStreak)
	}
}

// TestService_Top は順位とユーザー名の付与を検証する。
func TestService_Top(t *testing.T) {
	lbRepo := newMockLeaderboardRepo()
	lbRepo.listFn = func(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error) {
		return []*model.LeaderboardEntry{
			{ID: 1, UserID: 2, LongestDailyStreak: 10},
			{ID: 2, UserID: 1, LongestDailyStreak: 7},
		}, nil
	}

	svc := NewService(lbRepo, newMockUserRepo(1, 2))

	ranked, err := svc.Top(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("Top returned error: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("len = %d, want 2", len(ranked))
	}
	if ranked[0].Rank != 1 || ranked[1].Rank != 2 {
		t.Errorf("順位 = %d, %d, want 1, 2", ranked[0].Rank, ranked[1].Rank)
	}
	if ranked[0].Entry.UserID != 2 {
		t.Errorf("1位のUserID = %d, want 2", ranked[0].Entry.UserID)
	}
	if ranked[0].UserName == "" {
		t.Error("ユーザー名が付与されるべき")
	}
}

// TestService_Top_OffsetShiftsRank はオフセットが順位に反映されることを検証する。
func TestService_Top_OffsetShiftsRank(t *testing.T) {
	lbRepo := newMockLeaderboardRepo()
	lbRepo.listFn = func(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error) {
		return []*model.LeaderboardEntry{{ID: 3, UserID: 1, LongestDailyStreak: 1}}, nil
	}

	svc := NewService(lbRepo, newMockUserRepo(1))

	ranked, err := svc.Top(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("Top returned error: %v", err)
	}
	if ranked[0].Rank != 21 {
		t.Errorf("Rank = %d, want 21", ranked[0].Rank)
	}
}

// TestService_Top_DefaultLimit はlimit未指定時のデフォルトを検証する。
func TestService_Top_DefaultLimit(t *testing.T) {
	var gotLimit int
	lbRepo := newMockLeaderboardRepo()
	lbRepo.listFn = func(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error) {
		gotLimit = limit
		return nil, nil
	}

	svc := NewService(lbRepo, newMockUserRepo())

	if _, err := svc.Top(context.Background(), 0, 0); err != nil {
		t.Fatalf("Top returned error: %v", err)
	}
	if gotLimit != defaultLimit {
		t.Errorf("limit = %d, want %d", gotLimit, defaultLimit)
	}
}
