package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/geodle/internal/middleware"
	"github.com/hitoshi/geodle/internal/model"
)

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	RegisterFn       func(ctx context.Context, name, email, password string) (*model.User, error)
	GetFn            func(ctx context.Context, id int64) (*model.User, error)
	ListFn           func(ctx context.Context) ([]*model.User, error)
	UpdateFn         func(ctx context.Context, id int64, name, email *string) (*model.User, error)
	ChangePasswordFn func(ctx context.Context, id int64, current, updated string) error
	DeleteFn         func(ctx context.Context, id int64) error
}

func (m *mockUserService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	return m.RegisterFn(ctx, name, email, password)
}

func (m *mockUserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return m.GetFn(ctx, id)
}

func (m *mockUserService) List(ctx context.Context) ([]*model.User, error) {
	return m.ListFn(ctx)
}

func (m *mockUserService) Update(ctx context.Context, id int64, name, email *string) (*model.User, error) {
	return m.UpdateFn(ctx, id, name, email)
}

func (m *mockUserService) ChangePassword(ctx context.Context, id int64, current, updated string) error {
	return m.ChangePasswordFn(ctx, id, current, updated)
}

func (m *mockUserService) Delete(ctx context.Context, id int64) error {
	return m.DeleteFn(ctx, id)
}

// authedRequest は認証済みコンテキスト付きのリクエストを生成する。
func authedRequest(method, target string, body []byte, userID int64) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

func TestRegister_Success(t *testing.T) {
	service := &mockUserService{
		RegisterFn: func(ctx context.Context, name, email, password string) (*model.User, error) {
			return &model.User{ID: 1, Name: name, Email: email}, nil
		},
	}
	h := NewUserHandler(service)

	body, _ := json.Marshal(map[string]string{
		"name":     "alice",
		"email":    "alice@example.com",
		"password": "secret",
	})
	req := httptest.NewRequest(http.MethodPost, "/v2/users", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.ID != 1 || resp.Name != "alice" {
		t.Errorf("resp = %+v", resp)
	}

	// パスワードハッシュがレスポンスに漏れていないこと
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("レスポンスにパスワード関連フィールドが含まれている")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	service := &mockUserService{
		RegisterFn: func(ctx context.Context, name, email, password string) (*model.User, error) {
			return nil, model.NewDuplicateUserError()
		},
	}
	h := NewUserHandler(service)

	body, _ := json.Marshal(map[string]string{
		"name":     "alice",
		"email":    "alice@example.com",
		"password": "secret",
	})
	req := httptest.NewRequest(http.MethodPost, "/v2/users", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodPost, "/v2/users", strings.NewReader("{invalid"))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	service := &mockUserService{
		GetFn: func(ctx context.Context, id int64) (*model.User, error) {
			return nil, model.NewUserNotFoundError(id)
		},
	}
	h := NewUserHandler(service)

	// chiのURLパラメータを経由させるためルーター越しに呼ぶ
	r := chi.NewRouter()
	r.Get("/v2/users/{id}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/v2/users/999", nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetUser_NonNumericID(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	r := chi.NewRouter()
	r.Get("/v2/users/{id}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/v2/users/abc", nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListUsers(t *testing.T) {
	service := &mockUserService{
		ListFn: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{
				{ID: 1, Name: "alice", Email: "alice@example.com"},
				{ID: 2, Name: "bob", Email: "bob@example.com"},
			}, nil
		},
	}
	h := NewUserHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/v2/users", nil)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp []userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp) != 2 {
		t.Errorf("len(resp) = %d, want 2", len(resp))
	}
}

func TestMe_ReturnsOwnUser(t *testing.T) {
	service := &mockUserService{
		GetFn: func(ctx context.Context, id int64) (*model.User, error) {
			if id != 42 {
				t.Errorf("id = %d, want 42", id)
			}
			return &model.User{ID: 42, Name: "alice", Email: "alice@example.com"}, nil
		},
	}
	h := NewUserHandler(service)

	req := authedRequest(http.MethodGet, "/v2/users/me", nil, 42)
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.ID != 42 {
		t.Errorf("id = %d, want 42", resp.ID)
	}
}

func TestUpdateMe_PartialUpdate(t *testing.T) {
	service := &mockUserService{
		UpdateFn: func(ctx context.Context, id int64, name, email *string) (*model.User, error) {
			if name == nil || *name != "alice2" {
				t.Errorf("name = %v, want alice2", name)
			}
			if email != nil {
				t.Errorf("email = %v, want nil", *email)
			}
			return &model.User{ID: id, Name: *name, Email: "alice@example.com"}, nil
		},
	}
	h := NewUserHandler(service)

	body, _ := json.Marshal(map[string]string{"name": "alice2"})
	req := authedRequest(http.MethodPatch, "/v2/users/me", body, 42)
	rec := httptest.NewRecorder()

	h.UpdateMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	service := &mockUserService{
		ChangePasswordFn: func(ctx context.Context, id int64, current, updated string) error {
			return model.NewInvalidPasswordError()
		},
	}
	h := NewUserHandler(service)

	body, _ := json.Marshal(map[string]string{
		"current_password": "wrong",
		"new_password":     "next",
	})
	req := authedRequest(http.MethodPut, "/v2/users/me/password", body, 42)
	rec := httptest.NewRecorder()

	h.ChangePassword(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestDeleteMe_Success(t *testing.T) {
	deleted := false
	service := &mockUserService{
		DeleteFn: func(ctx context.Context, id int64) error {
			if id != 42 {
				t.Errorf("id = %d, want 42", id)
			}
			deleted = true
			return nil
		},
	}
	h := NewUserHandler(service)

	req := authedRequest(http.MethodDelete, "/v2/users/me", nil, 42)
	rec := httptest.NewRecorder()

	h.DeleteMe(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if !deleted {
		t.Error("Deleteが呼ばれていない")
	}
}
