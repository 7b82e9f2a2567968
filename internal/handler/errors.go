package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/elsaedy55/revoai/internal/auth"
	"github.com/elsaedy55/revoai/internal/middleware"
	"github.com/elsaedy55/revoai/internal/model"
)

type errorDetailKey struct{}

// ErrorDetailMiddleware は内部エラーの詳細をレスポンスのdetailに含めるかを
// リクエストコンテキストに設定する。本番環境ではfalseを渡す。
func ErrorDetailMiddleware(enabled bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), errorDetailKey{}, enabled)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func errorDetailEnabled(ctx context.Context) bool {
	enabled, _ := ctx.Value(errorDetailKey{}).(bool)
	return enabled
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外はログに記録し、開発環境ではdetailに元のエラー文字列を含める。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var (
		status int
		body   *model.APIError
	)
	var engineErr *model.EngineError
	var storageErr *model.StorageError
	switch {
	case errors.As(err, &engineErr):
		status, body = http.StatusBadGateway, model.NewAnalysisFailedError()
	case errors.As(err, &storageErr):
		status, body = http.StatusInternalServerError, model.NewStorageFailedError()
	case errors.Is(err, auth.ErrTokenExpired):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
		return
	case errors.Is(err, auth.ErrInvalidToken):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	default:
		status, body = http.StatusInternalServerError, model.NewInternalError()
	}

	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("code", body.Code),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	}
	if userID, uerr := middleware.UserIDFromContext(r.Context()); uerr == nil {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	slog.Error("request failed", attrs...)

	var detail string
	if errorDetailEnabled(r.Context()) {
		detail = err.Error()
	}
	middleware.WriteErrorResponseWithDetail(w, status, body, detail)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed, model.ErrCodeSelfModification:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeTokenExpired:
		return http.StatusUnauthorized
	case model.ErrCodeAdminRequired:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeAnalysisNotFound,
		model.ErrCodeConditionNotFound, model.ErrCodeMedicationNotFound, model.ErrCodeSurgeryNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateUser:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeAnalysisFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// invalidBodyError はリクエストボディを解析できない場合のエラー。
func invalidBodyError() *model.APIError {
	return &model.APIError{
		Code:     model.ErrCodeValidationFailed,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

type dateParamError string

func (e dateParamError) Error() string { return string(e) }

var errDateOrder = dateParamError("start_dateはend_date以前の日付を指定してください")

func errInvalidDate(param string) error {
	return dateParamError(param + "はYYYY-MM-DDまたはRFC3339形式で指定してください")
}
