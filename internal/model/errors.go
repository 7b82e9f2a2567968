// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, analysis, medical, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeAdminRequired      = "ADMIN_REQUIRED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeAnalysisNotFound   = "ANALYSIS_NOT_FOUND"
	ErrCodeConditionNotFound  = "CONDITION_NOT_FOUND"
	ErrCodeMedicationNotFound = "MEDICATION_NOT_FOUND"
	ErrCodeSurgeryNotFound    = "SURGERY_NOT_FOUND"
	ErrCodeAnalysisFailed     = "ANALYSIS_FAILED"
	ErrCodeStorageFailed      = "STORAGE_FAILED"
	ErrCodeSelfModification   = "SELF_MODIFICATION"
	ErrCodeDuplicateUser      = "DUPLICATE_USER"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewTokenExpiredError は認証トークンの有効期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "認証トークンの有効期限が切れています。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterで指定された時間の経過後に再度お試しください。",
	}
}

// NewAdminRequiredError は管理者権限不足エラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminRequired,
		Message:  "管理者権限が必要です。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAnalysisNotFoundError は症状分析が見つからない場合のエラーを生成する。
// 他ユーザーの分析IDが指定された場合もこのエラーを返し、存在を漏らさない。
func NewAnalysisNotFoundError(analysisID string) *APIError {
	return &APIError{
		Code:     ErrCodeAnalysisNotFound,
		Message:  fmt.Sprintf("指定された分析が見つかりません: %s", analysisID),
		Category: "analysis",
		Action:   "分析IDを確認してください。",
	}
}

// NewRecordNotFoundError は病歴レコード（持病・服薬・手術）が見つからない場合のエラーを生成する。
func NewRecordNotFoundError(code, recordID string) *APIError {
	return &APIError{
		Code:     code,
		Message:  fmt.Sprintf("指定されたレコードが見つかりません: %s", recordID),
		Category: "medical",
		Action:   "レコードIDを確認してください。",
	}
}

// NewSelfModificationError は管理者が自分自身の権限変更・削除を試みた場合のエラーを生成する。
func NewSelfModificationError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfModification,
		Message:  "自分自身のアカウントに対してこの操作は実行できません。",
		Category: "validation",
		Action:   "別の管理者に依頼してください。",
	}
}

// NewDuplicateUserError は既に登録済みのメールアドレスまたはFirebase UIDで登録しようとした場合のエラーを生成する。
func NewDuplicateUserError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAnalysisFailedError は診断エンジンの失敗により分析できなかった場合のエラーを生成する。
func NewAnalysisFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAnalysisFailed,
		Message:  "症状の分析に失敗しました。",
		Category: "analysis",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStorageFailedError は分析結果の保存に失敗した場合のエラーを生成する。
func NewStorageFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailed,
		Message:  "分析結果の保存に失敗しました。",
		Category: "analysis",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// EngineError は診断エンジン（外部AI）の呼び出し失敗を表す。
// タイムアウト、不正なレスポンス、クォータ超過などを含む。
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("diagnosis engine failed: %v", e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// StorageError は分析結果の永続化失敗を表す。
// トランザクションはロールバック済みで、部分的な行は残らない。
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("analysis storage failed: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
