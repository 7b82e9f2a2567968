package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elsaedy55/revoai/internal/medical"
	"github.com/elsaedy55/revoai/internal/model"
	"github.com/elsaedy55/revoai/internal/user"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	profileFn       func(ctx context.Context, userID string) (*user.Profile, error)
	updateProfileFn func(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	withdrawFn      func(ctx context.Context, userID string) error
}

func (m *mockUserService) Profile(ctx context.Context, userID string) (*user.Profile, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

func testUser() *model.User {
	birth := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	return &model.User{
		ID:        "user-123",
		FullName:  "ليلى أحمد",
		Email:     "layla@example.com",
		Phone:     "+201234567890",
		BirthDate: &birth,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// --- GET /api/users/profile テスト ---

func TestUserHandler_GetProfile_Success(t *testing.T) {
	svc := &mockUserService{
		profileFn: func(ctx context.Context, userID string) (*user.Profile, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return &user.Profile{
				User: testUser(),
				Records: &medical.Records{
					Conditions: []model.Condition{
						{ID: "c-1", Name: "السكري", StartDate: time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)},
					},
				},
			}, nil
		},
	}

	h := NewUserHandler(svc)
	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/users/profile", nil), "user-123")
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody[profileResponse](t, w)
	if resp.User.Email != "layla@example.com" {
		t.Errorf("email = %q", resp.User.Email)
	}
	if resp.User.BirthDate == nil || *resp.User.BirthDate != "1990-05-01" {
		t.Errorf("birth_date = %v, want 1990-05-01", resp.User.BirthDate)
	}
	if len(resp.MedicalData.Conditions) != 1 || resp.MedicalData.Conditions[0].StartDate != "2019-03-01" {
		t.Errorf("conditions = %+v", resp.MedicalData.Conditions)
	}
	// 空の病歴はnullではなく空配列で返す
	if resp.MedicalData.Medications == nil || resp.MedicalData.Surgeries == nil {
		t.Errorf("medications/surgeries should be empty arrays: %+v", resp.MedicalData)
	}
}

func TestUserHandler_GetProfile_NotFound(t *testing.T) {
	svc := &mockUserService{
		profileFn: func(ctx context.Context, userID string) (*user.Profile, error) {
			return nil, model.NewUserNotFoundError()
		},
	}

	h := NewUserHandler(svc)
	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/users/profile", nil), "user-123")
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- PUT /api/users/profile テスト ---

// 省略したフィールドはnilのままサービスに渡る
func TestUserHandler_UpdateProfile_PartialBody(t *testing.T) {
	var got user.ProfileInput
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error) {
			got = in
			return testUser(), nil
		},
	}

	h := NewUserHandler(svc)
	req := withUserID(jsonRequest(http.MethodPut, "/api/users/profile", `{"phone":"+201234567890"}`), "user-123")
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Phone == nil || *got.Phone != "+201234567890" {
		t.Errorf("Phone = %v", got.Phone)
	}
	if got.FullName != nil || got.BirthDate != nil || got.Address != nil {
		t.Errorf("omitted fields should be nil: %+v", got)
	}
}

func TestUserHandler_UpdateProfile_InvalidJSON(t *testing.T) {
	h := NewUserHandler(&mockUserService{})
	req := withUserID(jsonRequest(http.MethodPut, "/api/users/profile", `{"phone":`), "user-123")
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeValidationFailed {
		t.Errorf("code = %q", body["code"])
	}
}

func TestUserHandler_UpdateProfile_ValidationError(t *testing.T) {
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error) {
			return nil, model.NewValidationError("電話番号の形式が正しくありません")
		},
	}

	h := NewUserHandler(svc)
	req := withUserID(jsonRequest(http.MethodPut, "/api/users/profile", `{"phone":"abc"}`), "user-123")
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- POST /api/auth/register テスト ---

func TestUserHandler_Register_ReturnsCreated(t *testing.T) {
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error) {
			if in.FullName == nil || *in.FullName != "ليلى أحمد" {
				t.Errorf("FullName = %v", in.FullName)
			}
			return testUser(), nil
		},
	}

	h := NewUserHandler(svc)
	req := withUserID(jsonRequest(http.MethodPost, "/api/auth/register", `{"full_name":"ليلى أحمد","birth_date":"1990-05-01"}`), "user-123")
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	resp := decodeBody[userResponse](t, w)
	if resp.ID != "user-123" {
		t.Errorf("id = %q", resp.ID)
	}
}

// --- DELETE /api/users/me テスト ---

func TestUserHandler_Withdraw_Success(t *testing.T) {
	withdrawCalled := false
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			withdrawCalled = true
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return nil
		},
	}

	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	if !withdrawCalled {
		t.Error("expected Withdraw to be called")
	}
}

func TestUserHandler_Withdraw_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	// ユーザーIDを注入しない
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestUserHandler_Withdraw_UserNotFound(t *testing.T) {
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			return model.NewUserNotFoundError()
		},
	}

	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestUserHandler_Withdraw_InternalError(t *testing.T) {
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			return errors.New("transaction failed")
		},
	}

	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}
