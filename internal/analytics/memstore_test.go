package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/geodle/internal/model"
	"github.com/hitoshi/geodle/internal/repository"
)

// memStore はインメモリのAnalyticsRepository実装。
// カウンタ更新・min/maxの畳み込み・meanの再計算をPostgres実装と同じ
// 意味論で行い、サービス経由の一連の操作後の集計値を検証するために使う。
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*model.AnalyticsSession
	days     map[string]*model.DayStats
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[int64]*model.AnalyticsSession),
		days:     make(map[string]*model.DayStats),
	}
}

func dayKey(t time.Time) string {
	return model.DateOf(t).Format("2006-01-02")
}

func (m *memStore) ensureDayLocked(date time.Time) *model.DayStats {
	key := dayKey(date)
	if d, ok := m.days[key]; ok {
		return d
	}
	d := &model.DayStats{Date: model.DateOf(date)}
	m.days[key] = d
	return d
}

// latestLiveLocked は指定ユーザーの最新（開始降順）のLiveセッションを返す。
func (m *memStore) latestLiveLocked(userID int64) *model.AnalyticsSession {
	var latest *model.AnalyticsSession
	for _, s := range m.sessions {
		if s.End != nil || s.UserID == nil || *s.UserID != userID {
			continue
		}
		if latest == nil || s.Start.After(latest.Start) {
			latest = s
		}
	}
	return latest
}

// terminatedLengthsLocked はその日の終了済みセッション長を返す。
func (m *memStore) terminatedLengthsLocked(date time.Time) []time.Duration {
	key := dayKey(date)
	var lengths []time.Duration
	for _, s := range m.sessions {
		if s.End == nil || dayKey(s.Date) != key {
			continue
		}
		lengths = append(lengths, *s.Length)
	}
	return lengths
}

func (m *memStore) EnsureDay(ctx context.Context, date time.Time) (*model.DayStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureDayLocked(date), nil
}

func (m *memStore) CreateSession(ctx context.Context, userID *int64, date, start time.Time) (*model.AnalyticsSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.days[dayKey(date)]; !ok {
		return nil, model.ErrDayNotFound
	}

	m.nextID++
	s := &model.AnalyticsSession{
		ID:     m.nextID,
		UserID: userID,
		Date:   model.DateOf(date),
		Start:  start.UTC(),
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) OpenSession(ctx context.Context, userID *int64, start time.Time) (*model.AnalyticsSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := m.ensureDayLocked(start)

	m.nextID++
	s := &model.AnalyticsSession{
		ID:     m.nextID,
		UserID: userID,
		Date:   model.DateOf(start),
		Start:  start.UTC(),
	}
	m.sessions[s.ID] = s

	day.CurrentActiveUsers++
	if day.CurrentActiveUsers > day.MaxActiveUsers {
		day.MaxActiveUsers = day.CurrentActiveUsers
	}

	return s, nil
}

func (m *memStore) RenewSession(ctx context.Context, userID int64, now time.Time, ttl time.Duration) (*model.AnalyticsSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.latestLiveLocked(userID)
	if s == nil {
		return nil, nil
	}

	projected := now.UTC().Add(ttl).Sub(s.Start)
	s.Length = &projected

	day := m.ensureDayLocked(s.Date)
	if day.MaxSessionLength == nil || projected > *day.MaxSessionLength {
		v := projected
		day.MaxSessionLength = &v
	}

	return s, nil
}

func (m *memStore) TerminateSession(ctx context.Context, sessionID int64, end time.Time) (*model.AnalyticsSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return m.terminateLocked(s, end)
}

func (m *memStore) TerminateUserSession(ctx context.Context, userID int64, end time.Time) (*model.AnalyticsSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.latestLiveLocked(userID)
	if s == nil {
		return nil, nil
	}
	return m.terminateLocked(s, end)
}

func (m *memStore) terminateLocked(s *model.AnalyticsSession, end time.Time) (*model.AnalyticsSession, error) {
	if s.End != nil {
		return nil, model.ErrSessionAlreadyEnded
	}

	endUTC := end.UTC()
	length := endUTC.Sub(s.Start)
	s.End = &endUTC
	s.Length = &length

	day := m.ensureDayLocked(s.Date)

	// current_active_usersは0でクランプし、min/maxを畳み込む
	if day.CurrentActiveUsers > 0 {
		day.CurrentActiveUsers--
	}
	if day.MinSessionLength == nil || length < *day.MinSessionLength {
		v := length
		day.MinSessionLength = &v
	}
	if day.MaxSessionLength == nil || length > *day.MaxSessionLength {
		v := length
		day.MaxSessionLength = &v
	}

	// meanは終了済みセッション全体から再計算する
	lengths := m.terminatedLengthsLocked(s.Date)
	var sum time.Duration
	for _, l := range lengths {
		sum += l
	}
	mean := time.Duration(int64(sum) / int64(len(lengths)))
	day.MeanSessionLength = &mean

	return s, nil
}

func (m *memStore) FindSessionByID(ctx context.Context, id int64) (*model.AnalyticsSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (m *memStore) FindLiveSessionByUser(ctx context.Context, userID int64) (*model.AnalyticsSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestLiveLocked(userID), nil
}

func (m *memStore) GetDay(ctx context.Context, date time.Time) (*model.DayStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.days[dayKey(date)]
	if !ok {
		return nil, nil
	}
	return d, nil
}

func (m *memStore) PercentileSessionLength(ctx context.Context, date time.Time, p float64) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return repository.Percentile(m.terminatedLengthsLocked(date), p), nil
}

func (m *memStore) ListStaleLiveSessions(ctx context.Context, olderThan time.Time, limit int) ([]*model.AnalyticsSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*model.AnalyticsSession
	for _, s := range m.sessions {
		if s.End == nil && s.Start.Before(olderThan) {
			stale = append(stale, s)
		}
		if len(stale) == limit {
			break
		}
	}
	return stale, nil
}

// compile-time interface check
var _ repository.AnalyticsRepository = (*memStore)(nil)
