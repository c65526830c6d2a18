package model

// LeaderboardEntry はユーザーごとのゲーム成績を表す。
// デイリーモードと サバイバルモードの両方の記録を1行で保持する。
type LeaderboardEntry struct {
	ID                    int64
	UserID                int64
	DailyStreak           int     // 現在のデイリー連続クリア数
	LongestDailyStreak    int     // デイリー連続クリアの最高記録
	AverageDailyGuesses   float64 // デイリー1回あたりの平均推測回数
	AverageDailyTime      float64 // デイリークリアまでの平均時間（秒）
	LongestSurvivalStreak int     // サバイバルモードの最高連続正解数
}
