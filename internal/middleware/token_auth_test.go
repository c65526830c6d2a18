package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockValidator はTokenValidatorのモック実装。
type mockValidator struct {
	ValidateFn func(ctx context.Context, tokenString string) (int64, error)
}

func (m *mockValidator) Validate(ctx context.Context, tokenString string) (int64, error) {
	return m.ValidateFn(ctx, tokenString)
}

func TestTokenAuthMiddleware_ValidToken(t *testing.T) {
	validator := &mockValidator{
		ValidateFn: func(ctx context.Context, tokenString string) (int64, error) {
			if tokenString != "valid-token" {
				t.Errorf("token = %q, want %q", tokenString, "valid-token")
			}
			return 42, nil
		},
	}

	var gotUserID int64
	handler := NewTokenAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Fatalf("UserIDFromContext() error = %v", err)
		}
		gotUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v2/users/me", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotUserID != 42 {
		t.Errorf("userID = %d, want 42", gotUserID)
	}
}

func TestTokenAuthMiddleware_MissingHeader(t *testing.T) {
	validator := &mockValidator{
		ValidateFn: func(ctx context.Context, tokenString string) (int64, error) {
			t.Fatal("Validateが呼ばれるべきではない")
			return 0, nil
		},
	}

	handler := NewTokenAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("ハンドラーが呼ばれるべきではない")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v2/users/me", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if body.Code != "UNAUTHORIZED" {
		t.Errorf("code = %q, want %q", body.Code, "UNAUTHORIZED")
	}
}

func TestTokenAuthMiddleware_MalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "Bearerプレフィックスなし", header: "valid-token"},
		{name: "Basic認証形式", header: "Basic dXNlcjpwYXNz"},
		{name: "トークン部が空", header: "Bearer "},
		{name: "小文字のbearer", header: "bearer valid-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := &mockValidator{
				ValidateFn: func(ctx context.Context, tokenString string) (int64, error) {
					t.Fatal("Validateが呼ばれるべきではない")
					return 0, nil
				},
			}

			handler := NewTokenAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("ハンドラーが呼ばれるべきではない")
			}))

			req := httptest.NewRequest(http.MethodGet, "/v2/users/me", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestTokenAuthMiddleware_InvalidToken(t *testing.T) {
	validator := &mockValidator{
		ValidateFn: func(ctx context.Context, tokenString string) (int64, error) {
			return 0, fmt.Errorf("トークンの検証に失敗しました")
		},
	}

	handler := NewTokenAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("ハンドラーが呼ばれるべきではない")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v2/users/me", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestUserIDFromContext_NotSet(t *testing.T) {
	_, err := UserIDFromContext(context.Background())
	if err == nil {
		t.Error("未設定のコンテキストではエラーを返すべき")
	}
}

func TestContextWithUserID(t *testing.T) {
	ctx := ContextWithUserID(context.Background(), 7)

	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("UserIDFromContext() error = %v", err)
	}
	if userID != 7 {
		t.Errorf("userID = %d, want 7", userID)
	}
}
