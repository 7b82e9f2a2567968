// Package user はユーザー管理のドメインロジックを提供する。
// 本人によるプロフィール管理・退会と、管理者によるユーザー管理を含む。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/elsaedy55/revoai/internal/medical"
	"github.com/elsaedy55/revoai/internal/model"
	"github.com/elsaedy55/revoai/internal/repository"
	"github.com/elsaedy55/revoai/internal/security"
)

const (
	defaultLimit = 10
	maxLimit     = 100

	minFullNameLength = 3
	maxFullNameLength = 100
	maxAddressLength  = 255
)

var phonePattern = regexp.MustCompile(`^[+]?\d{10,14}$`)

// RecordsLoader は病歴一式の取得インターフェース。
type RecordsLoader interface {
	Records(ctx context.Context, userID string) (*medical.Records, error)
}

// StatusNotifier はアカウント状態変更の通知インターフェース。
type StatusNotifier interface {
	NotifyAccountStatus(ctx context.Context, user *model.User, active bool) error
}

// ProfileInput はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileInput struct {
	FullName  *string
	Phone     *string
	BirthDate *string // YYYY-MM-DD
	Address   *string
}

// Profile はユーザー本人と病歴一式。
type Profile struct {
	User    *model.User
	Records *medical.Records
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	records   RecordsLoader
	notifier  StatusNotifier
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// notifierがnilの場合は状態変更を通知しない。
func NewService(
	userRepo repository.UserRepository,
	records RecordsLoader,
	notifier StatusNotifier,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		userRepo:  userRepo,
		records:   records,
		notifier:  notifier,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Profile はユーザーのプロフィールと病歴を返す。
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	records, err := s.records.Records(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Records: records}, nil
}

// UpdateProfile はプロフィールを部分更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	update, err := s.parseProfile(in)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// parseProfile は入力を検証してProfileUpdateに変換する。
func (s *Service) parseProfile(in ProfileInput) (model.ProfileUpdate, error) {
	var update model.ProfileUpdate

	if in.FullName != nil {
		name := s.sanitizer.Sanitize(*in.FullName)
		n := utf8.RuneCountInString(name)
		if n < minFullNameLength || n > maxFullNameLength {
			return update, model.NewValidationError(
				fmt.Sprintf("氏名は%d文字以上%d文字以内で入力してください", minFullNameLength, maxFullNameLength))
		}
		update.FullName = &name
	}

	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if phone != "" && !phonePattern.MatchString(phone) {
			return update, model.NewValidationError("電話番号の形式が正しくありません")
		}
		update.Phone = &phone
	}

	if in.BirthDate != nil {
		birth, err := time.Parse(medical.DateLayout, strings.TrimSpace(*in.BirthDate))
		if err != nil {
			return update, model.NewValidationError("生年月日はYYYY-MM-DD形式で入力してください")
		}
		if birth.After(s.now()) {
			return update, model.NewValidationError("生年月日に未来の日付は指定できません")
		}
		update.BirthDate = &birth
	}

	if in.Address != nil {
		address := s.sanitizer.Sanitize(*in.Address)
		if utf8.RuneCountInString(address) > maxAddressLength {
			return update, model.NewValidationError("住所が長すぎます")
		}
		update.Address = &address
	}

	return update, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 病歴と分析履歴はCASCADEで削除される。分析キャッシュはTTLで失効する。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user withdrew",
		slog.String("user_id", userID),
	)
	return nil
}

// ListUsers は管理者向けにユーザー一覧を返す。
// pageは1始まり、limitは1〜100（未指定は10）。
func (s *Service) ListUsers(ctx context.Context, page, limit int, search string) (*model.UserPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	users, total, err := s.userRepo.List(ctx, (page-1)*limit, limit, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if users == nil {
		users = []model.User{}
	}
	return &model.UserPage{
		Users:      users,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// GetUser は管理者向けにユーザー詳細を返す。
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, id)
}

// SetStatus はユーザーの本人確認状態を切り替え、本人に通知する。
// 通知の失敗は処理結果に影響しない。
func (s *Service) SetStatus(ctx context.Context, actorID, id string, active bool) (*model.User, error) {
	user, err := s.userRepo.SetVerified(ctx, id, active)
	if err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("user status changed",
		slog.String("actor_id", actorID),
		slog.String("user_id", id),
		slog.Bool("active", active),
	)

	if s.notifier != nil {
		if err := s.notifier.NotifyAccountStatus(ctx, user, active); err != nil {
			slog.Warn("account status notification failed",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return user, nil
}

// SetAdmin は管理者権限を付与・剥奪する。自分自身は変更できない。
func (s *Service) SetAdmin(ctx context.Context, actorID, id string, isAdmin bool) (*model.User, error) {
	if actorID == id {
		return nil, model.NewSelfModificationError()
	}

	user, err := s.userRepo.SetAdmin(ctx, id, isAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to update admin flag: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("admin privileges changed",
		slog.String("actor_id", actorID),
		slog.String("user_id", id),
		slog.Bool("is_admin", isAdmin),
	)
	return user, nil
}

// DeleteUser は管理者がユーザーを削除する。自分自身は削除できない。
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return model.NewSelfModificationError()
	}
	if _, err := s.findUser(ctx, id); err != nil {
		return err
	}
	if err := s.userRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user deleted by admin",
		slog.String("actor_id", actorID),
		slog.String("user_id", id),
	)
	return nil
}

// EnsureAdmin はメールアドレスで指定した既存ユーザーを本人確認済みの管理者にする。
func (s *Service) EnsureAdmin(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if _, err := s.userRepo.SetVerified(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("failed to verify user: %w", err)
	}
	promoted, err := s.userRepo.SetAdmin(ctx, user.ID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to promote user: %w", err)
	}
	return promoted, nil
}

func (s *Service) findUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
