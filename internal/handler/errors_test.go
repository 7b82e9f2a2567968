package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elsaedy55/revoai/internal/auth"
	"github.com/elsaedy55/revoai/internal/model"
)

func TestHandleServiceError_MapsErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"入力検証", model.NewValidationError("x"), http.StatusBadRequest, model.ErrCodeValidationFailed},
		{"自分自身の変更", model.NewSelfModificationError(), http.StatusBadRequest, model.ErrCodeSelfModification},
		{"ユーザー不在", model.NewUserNotFoundError(), http.StatusNotFound, model.ErrCodeUserNotFound},
		{"分析不在", model.NewAnalysisNotFoundError("a-1"), http.StatusNotFound, model.ErrCodeAnalysisNotFound},
		{"持病不在", model.NewRecordNotFoundError(model.ErrCodeConditionNotFound, "c-1"), http.StatusNotFound, model.ErrCodeConditionNotFound},
		{"重複", model.NewDuplicateUserError(), http.StatusConflict, model.ErrCodeDuplicateUser},
		{"管理者権限", model.NewAdminRequiredError(), http.StatusForbidden, model.ErrCodeAdminRequired},
		{"ラップされたAPIError", fmt.Errorf("wrapped: %w", model.NewUserNotFoundError()), http.StatusNotFound, model.ErrCodeUserNotFound},
		{"診断エンジン障害", &model.EngineError{Err: errors.New("timeout")}, http.StatusBadGateway, model.ErrCodeAnalysisFailed},
		{"保存失敗", &model.StorageError{Err: errors.New("tx aborted")}, http.StatusInternalServerError, model.ErrCodeStorageFailed},
		{"トークン期限切れ", auth.ErrTokenExpired, http.StatusUnauthorized, model.ErrCodeTokenExpired},
		{"不正なトークン", auth.ErrInvalidToken, http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"想定外のエラー", errors.New("boom"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()

			handleServiceError(w, req, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := parseAPIErrorResponse(t, w)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
		})
	}
}

// 開発環境では内部エラーの文字列がdetailに入り、本番環境では入らない
func TestHandleServiceError_DetailOnlyWhenEnabled(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		t.Run(fmt.Sprintf("enabled=%v", enabled), func(t *testing.T) {
			h := ErrorDetailMiddleware(enabled)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handleServiceError(w, r, errors.New("pq: connection refused"))
			}))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			body := parseAPIErrorResponse(t, w)
			got := body["detail"]
			if enabled && got != "pq: connection refused" {
				t.Errorf("detail = %q, want internal error text", got)
			}
			if !enabled && got != "" {
				t.Errorf("detail = %q, want empty", got)
			}
		})
	}
}

// APIErrorにはdetailを付けない
func TestHandleServiceError_APIErrorHasNoDetail(t *testing.T) {
	h := ErrorDetailMiddleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleServiceError(w, r, model.NewUserNotFoundError())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if body := parseAPIErrorResponse(t, w); body["detail"] != "" {
		t.Errorf("detail = %q, want empty", body["detail"])
	}
}
