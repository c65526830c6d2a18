package model

import "time"

// AnalyticsSession はユーザー（または匿名）の連続アクティビティ期間を表す。
// EndがnilのセッションをLiveセッションと呼ぶ。
// 不変条件: Endが設定されている ⇔ Lengthが設定されている。
// Liveの間はLengthに「現在時刻+TTL-Start」の見込み値が入ることがあるが、
// 終了時に確定値で上書きされる。
type AnalyticsSession struct {
	ID     int64
	UserID *int64 // 匿名セッションの場合はnil
	Date   time.Time
	Start  time.Time
	End    *time.Time
	Length *time.Duration
}

// Live はセッションが終了していないかどうかを返す。
func (s *AnalyticsSession) Live() bool {
	return s.End == nil
}

// DayStats は1暦日（UTC）あたりの集計統計を表す。
// 最初のセッション作成時に遅延生成され、日付をキーとして一意。
// Min/Max/MeanSessionLengthはその日に1件もセッションが終了していない間はnil。
type DayStats struct {
	Date               time.Time
	MinSessionLength   *time.Duration
	MaxSessionLength   *time.Duration
	MeanSessionLength  *time.Duration
	CurrentActiveUsers int
	MaxActiveUsers     int
}

// DayStatsSummary は1日分の統計のクエリ結果。
// 集計が存在しない日はすべてゼロ値になる。
type DayStatsSummary struct {
	Date               time.Time
	Min                time.Duration
	Max                time.Duration
	Mean               time.Duration
	Median             time.Duration
	P95                time.Duration
	CurrentActiveUsers int
	MaxActiveUsers     int
}

// RangeStatsSummary は複数日の統計を日単位で平均した結果。
// 日ごとの集計値の単純平均であり、全セッションの再集計ではない
// （日によってセッション数が異なる場合は近似になる）。
type RangeStatsSummary struct {
	Since              time.Time
	Days               int
	Min                time.Duration
	Max                time.Duration
	Mean               time.Duration
	Median             time.Duration
	P95                time.Duration
	CurrentActiveUsers float64
	MaxActiveUsers     float64
}

// DateOf は任意の時刻をUTC暦日（UTC午前0時）に正規化する。
// セッションの所属日の決定と日次集計のキーに使用する。
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
