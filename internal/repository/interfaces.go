// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/elsaedy55/revoai/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByFirebaseUID はFirebase UIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByFirebaseUID(ctx context.Context, firebaseUID string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はプロフィールを部分更新する。nilのフィールドは既存値を維持する。
	// ユーザーが存在しない場合はnilを返す。
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error)

	// SetAdmin は管理者フラグを更新する。ユーザーが存在しない場合はnilを返す。
	SetAdmin(ctx context.Context, id string, isAdmin bool) (*model.User, error)

	// SetVerified は本人確認済みフラグを更新する。ユーザーが存在しない場合はnilを返す。
	SetVerified(ctx context.Context, id string, isVerified bool) (*model.User, error)

	// List はユーザー一覧を作成日時の降順で返す。
	// searchが空でない場合は氏名またはメールアドレスの部分一致で絞り込む。
	List(ctx context.Context, offset, limit int, search string) ([]model.User, int, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 病歴と分析履歴はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// ConditionRepository は持病データの永続化インターフェース。
// すべての操作はuser_idでスコープされる。
type ConditionRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.Condition, error)
	Create(ctx context.Context, condition *model.Condition) error
	// Update は所有者のレコードのみ更新する。該当しない場合はnilを返す。
	Update(ctx context.Context, condition *model.Condition) (*model.Condition, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// MedicationRepository は服薬データの永続化インターフェース。
type MedicationRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.Medication, error)
	Create(ctx context.Context, medication *model.Medication) error
	Update(ctx context.Context, medication *model.Medication) (*model.Medication, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// SurgeryRepository は手術歴データの永続化インターフェース。
type SurgeryRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.Surgery, error)
	Create(ctx context.Context, surgery *model.Surgery) error
	Update(ctx context.Context, surgery *model.Surgery) (*model.Surgery, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// AnalysisRepository は症状分析結果の永続化インターフェース。
// 読み書きはすべてuser_idでスコープされ、他ユーザーの分析は存在しないものとして扱う。
type AnalysisRepository interface {
	// Save は分析結果を単一トランザクションで保存する。
	// 失敗した場合はロールバックされ、行は残らない。
	Save(ctx context.Context, userID string, symptoms []string, notes string, payload *model.DiagnosisPayload) (*model.AnalysisResult, error)

	// ListByUser はユーザーの分析履歴を新しい順に返す。pageは1始まり。
	// 2番目の戻り値はユーザーの分析総数。
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]model.AnalysisResult, int, error)

	// FindByID は指定IDの分析を取得する。他ユーザーの分析や存在しない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.AnalysisResult, error)

	// UpdateRecommendations は推奨事項を置き換える。該当しない場合はnilを返す。
	UpdateRecommendations(ctx context.Context, userID, id string, recommendations []string) (*model.AnalysisResult, error)

	// Delete は指定IDの分析を削除する。削除した場合にtrueを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)

	// FindRecentPayload はsince以降に保存された同一ユーザー・同一症状集合の
	// 診断ペイロードのうち最新のものを返す。見つからない場合はnilを返す。
	// symptomSetは重複排除・ソート済みであること。
	FindRecentPayload(ctx context.Context, userID string, symptomSet []string, since time.Time) (*model.DiagnosisPayload, error)

	// Stats は期間[start, end]の分析統計を返す。
	Stats(ctx context.Context, start, end time.Time) (*model.AnalysisStats, error)

	// DeleteOlderThan はbefore より前に作成された分析を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// isValidID はIDがUUID形式かを判定する。
// UUID以外のIDはPostgreSQLの型エラーになるため、クエリ前に「見つからない」として扱う。
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// nullTime はnilポインタをNULLとして扱うsql引数を返す。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
