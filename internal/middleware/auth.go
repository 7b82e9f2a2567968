// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elsaedy55/revoai/internal/auth"
	"github.com/elsaedy55/revoai/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var principalContextKey = contextKey("principal")

// Authenticator はBearerトークンから呼び出し元を解決するインターフェース。
// auth.Serviceが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*model.Principal, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みユーザーをリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無い・不正な場合は401、有効期限切れは401 TOKEN_EXPIREDを返す。
func NewAuthMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
				case errors.Is(err, auth.ErrInvalidToken):
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				default:
					var apiErr *model.APIError
					if errors.As(err, &apiErr) {
						WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
						return
					}
					slog.Error("authentication failed",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
				}
				return
			}

			recordUserID(r.Context(), principal.UserID)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin は管理者以外のリクエストに403 ADMIN_REQUIREDを返すミドルウェア。
// NewAuthMiddlewareの後に配置する。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := PrincipalFromContext(r.Context())
		if err != nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		if !principal.IsAdmin {
			slog.Warn("admin access denied",
				slog.String("user_id", principal.UserID),
				slog.String("path", r.URL.Path),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewAdminRequiredError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	return token, token != ""
}

// PrincipalFromContext はリクエストコンテキストから認証済みユーザーを取得する。
func PrincipalFromContext(ctx context.Context) (*model.Principal, error) {
	principal, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || principal == nil || principal.UserID == "" {
		return nil, fmt.Errorf("principal not found in context")
	}
	return principal, nil
}

// ContextWithPrincipal はコンテキストに認証済みユーザーを注入する。
func ContextWithPrincipal(ctx context.Context, principal *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("user ID not found in context")
	}
	return principal.UserID, nil
}

// ContextWithUserID はコンテキストに一般ユーザーとしてユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithPrincipal(ctx, &model.Principal{UserID: userID})
}
