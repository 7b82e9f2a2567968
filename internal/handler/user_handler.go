package handler

import (
	"context"
	"net/http"

	"github.com/elsaedy55/revoai/internal/model"
	"github.com/elsaedy55/revoai/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Profile はユーザー本人と病歴一式を返す。
	Profile(ctx context.Context, userID string) (*user.Profile, error)
	// UpdateProfile はプロフィールを部分更新する。
	UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	// 病歴と分析履歴はCASCADEで削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー本人向けのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// profileRequest はプロフィール更新リクエストのボディ。
// 省略したフィールドは変更しない。
type profileRequest struct {
	FullName  *string `json:"full_name"`
	Phone     *string `json:"phone"`
	BirthDate *string `json:"birth_date"`
	Address   *string `json:"address"`
}

func (p profileRequest) input() user.ProfileInput {
	return user.ProfileInput{
		FullName:  p.FullName,
		Phone:     p.Phone,
		BirthDate: p.BirthDate,
		Address:   p.Address,
	}
}

type profileResponse struct {
	User        userResponse        `json:"user"`
	MedicalData medicalDataResponse `json:"medical_data"`
}

// Register は認証基盤で作成済みのアカウントにプロフィールを登録する。
// ユーザー行は認証ミドルウェアが初回アクセス時に作成している。
// POST /api/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.updateProfile(w, r, http.StatusCreated)
}

// GetProfile はプロフィールと病歴を返す。
// GET /api/users/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Profile(r.Context(), principal.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		User:        toUserResponse(profile.User),
		MedicalData: toMedicalDataResponse(profile.Records),
	})
}

// UpdateProfile はプロフィールを部分更新する。
// PUT /api/users/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	h.updateProfile(w, r, http.StatusOK)
}

func (h *UserHandler) updateProfile(w http.ResponseWriter, r *http.Request, status int) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), principal.UserID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, status, toUserResponse(updated))
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), principal.UserID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
