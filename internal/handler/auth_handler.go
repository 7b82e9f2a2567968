// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/elsaedy55/revoai/internal/auth"
	"github.com/elsaedy55/revoai/internal/middleware"
	"github.com/elsaedy55/revoai/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// いずれもFirebase IDトークンを受け取り、アプリケーションJWTを発行する。
type AuthServiceInterface interface {
	ExchangeToken(ctx context.Context, idToken string) (*auth.IssuedToken, error)
	AdminLogin(ctx context.Context, idToken string) (*auth.IssuedToken, error)
}

// AuthHandler はトークン発行のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

// Token はFirebase IDトークンをアプリケーションJWTに交換する。
// POST /api/auth/token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, h.service.ExchangeToken)
}

// AdminLogin は管理者ユーザーにのみJWTを発行する。
// POST /api/auth/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, h.service.AdminLogin)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, issueFn func(context.Context, string) (*auth.IssuedToken, error)) {
	idToken, ok := middleware.BearerToken(r)
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	issued, err := issueFn(r.Context(), idToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      toUserResponse(issued.User),
	})
}
