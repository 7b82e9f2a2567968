package model

import "time"

// User はサービス利用ユーザーを表す。
// FirebaseUIDは外部認証基盤の識別子で、作成後は変更しない。
type User struct {
	ID          string
	FirebaseUID string
	FullName    string
	Email       string
	Phone       string
	BirthDate   *time.Time // 未登録の場合はnil
	Address     string
	IsVerified  bool
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProfileUpdate はプロフィールの部分更新内容を表す。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	FullName  *string
	Phone     *string
	BirthDate *time.Time
	Address   *string
}

// VerifiedIdentity は認証基盤で検証済みのトークンから得た本人情報を表す。
type VerifiedIdentity struct {
	UID           string
	Email         string
	EmailVerified bool
	Name          string
}

// Principal は認証ミドルウェアが解決した呼び出し元ユーザーを表す。
type Principal struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// UserPage は管理者向けユーザー一覧の1ページ分を表す。
type UserPage struct {
	Users      []User
	Total      int
	Page       int
	Limit      int
	TotalPages int
}
