package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// testRateLimiterConfig はテスト用の小さなレート制限設定を返す。
func testRateLimiterConfig(burst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // 補充をほぼ無効化してバーストのみで検証
		GeneralBurst:    burst,
		AuthRate:        rate.Limit(0.001),
		AuthBurst:       burst,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_AllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(3))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v2/leaderboard", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), 42))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("リクエスト%d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
}

func TestGeneralMiddleware_RejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v2/leaderboard", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), 42))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)

		if i == 2 {
			if rec.Code != http.StatusTooManyRequests {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
			}
			if rec.Header().Get("Retry-After") == "" {
				t.Error("Retry-Afterヘッダーが設定されていない")
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("レスポンスのデコードに失敗: %v", err)
			}
			if body["code"] != "rate_limit_exceeded" {
				t.Errorf("code = %q, want %q", body["code"], "rate_limit_exceeded")
			}
		}
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("バースト内のリクエストは許可されるべき: %v", statuses)
	}
}

func TestGeneralMiddleware_SeparateLimitsPerUser(t *testing.T) {
	// ユーザーごとに独立したリミッターを持つ
	rl := NewRateLimiter(testRateLimiterConfig(1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// ユーザー1がバーストを使い切る
	req1 := httptest.NewRequest(http.MethodGet, "/v2/leaderboard", nil)
	req1 = req1.WithContext(ContextWithUserID(req1.Context(), 1))
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	// ユーザー2は影響を受けない
	req2 := httptest.NewRequest(http.MethodGet, "/v2/leaderboard", nil)
	req2 = req2.WithContext(ContextWithUserID(req2.Context(), 2))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Errorf("別ユーザーのstatus = %d, want %d", rec2.Code, http.StatusOK)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("リミッターのエントリ数 = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddleware_RequiresUserID(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v2/leaderboard", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_KeyedByClientIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1))
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	// 同一IPからの2回目は拒否
	req1 := httptest.NewRequest(http.MethodPost, "/v2/authentications", nil)
	req1.RemoteAddr = "192.0.2.1:5000"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest(http.MethodPost, "/v2/authentications", nil)
	req2.RemoteAddr = "192.0.2.1:5001" // ポートが違っても同一IP
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec1.Code != http.StatusOK {
		t.Errorf("1回目のstatus = %d, want %d", rec1.Code, http.StatusOK)
	}
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("2回目のstatus = %d, want %d", rec2.Code, http.StatusTooManyRequests)
	}

	// 別IPは独立
	req3 := httptest.NewRequest(http.MethodPost, "/v2/authentications", nil)
	req3.RemoteAddr = "192.0.2.2:5000"
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req3)

	if rec3.Code != http.StatusOK {
		t.Errorf("別IPのstatus = %d, want %d", rec3.Code, http.StatusOK)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    1,
		AuthRate:        rate.Limit(1),
		AuthBurst:       1,
		CleanupInterval: 10 * time.Millisecond,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v2/leaderboard", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), 42))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("エントリ数 = %d, want 1", rl.GeneralLimiterCount())
	}

	// CleanupInterval*2を超えてアクセスがないエントリは削除される
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rl.GeneralLimiterCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("期限切れエントリがクリーンアップされていない")
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.AuthBurst != 10 {
		t.Errorf("AuthBurst = %d, want 10", cfg.AuthBurst)
	}
	if cfg.GeneralRate != rate.Limit(2.0) {
		t.Errorf("GeneralRate = %v, want 2.0", cfg.GeneralRate)
	}
}
