package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/elsaedy55/revoai/internal/model"
)

const userColumns = `id, firebase_uid, full_name, email, phone, birth_date, address,
	is_verified, is_admin, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var birthDate sql.NullTime
	err := row.Scan(
		&user.ID, &user.FirebaseUID, &user.FullName, &user.Email, &user.Phone,
		&birthDate, &user.Address, &user.IsVerified, &user.IsAdmin,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if birthDate.Valid {
		t := birthDate.Time
		user.BirthDate = &t
	}
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isValidID(id) {
		return nil, nil
	}
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByFirebaseUID はFirebase UIDでユーザーを検索する。
func (r *PostgresUserRepo) FindByFirebaseUID(ctx context.Context, firebaseUID string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE firebase_uid = $1`, firebaseUID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by firebase uid: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。IDとタイムスタンプは呼び出し側で設定する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, firebase_uid, full_name, email, phone, birth_date, address,
			is_verified, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		user.ID, user.FirebaseUID, user.FullName, user.Email, user.Phone,
		nullTime(user.BirthDate), user.Address, user.IsVerified, user.IsAdmin,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はプロフィールを部分更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	if !isValidID(id) {
		return nil, nil
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET
			full_name  = COALESCE($2, full_name),
			phone      = COALESCE($3, phone),
			birth_date = COALESCE($4, birth_date),
			address    = COALESCE($5, address),
			updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, nullString(update.FullName), nullString(update.Phone), nullTime(update.BirthDate), nullString(update.Address),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// SetAdmin は管理者フラグを更新する。
func (r *PostgresUserRepo) SetAdmin(ctx context.Context, id string, isAdmin bool) (*model.User, error) {
	return r.setFlag(ctx, "is_admin", id, isAdmin)
}

// SetVerified は本人確認済みフラグを更新する。
func (r *PostgresUserRepo) SetVerified(ctx context.Context, id string, isVerified bool) (*model.User, error) {
	return r.setFlag(ctx, "is_verified", id, isVerified)
}

// setFlag はbooleanカラムを更新する。columnは固定値のみ渡すこと。
func (r *PostgresUserRepo) setFlag(ctx context.Context, column, id string, value bool) (*model.User, error) {
	if !isValidID(id) {
		return nil, nil
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET `+column+` = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns,
		id, value,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", column, err)
	}
	return user, nil
}

// List はユーザー一覧と検索条件に一致する総件数を返す。
func (r *PostgresUserRepo) List(ctx context.Context, offset, limit int, search string) ([]model.User, int, error) {
	const where = `WHERE $1 = '' OR full_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users `+where, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users `+where+`
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		search, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, total, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 病歴と分析履歴はCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	if !isValidID(id) {
		return fmt.Errorf("user not found: %s", id)
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
