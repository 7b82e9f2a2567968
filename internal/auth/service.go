// Package auth は利用者の認証を提供する。
// FirebaseのIDトークンとアプリ発行のアクセストークンの両方を受け付け、
// 内部のユーザーIDに解決する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/elsaedy55/revoai/internal/model"
	"github.com/elsaedy55/revoai/internal/repository"
)

// IssuedToken は発行したアクセストークンとその所有者。
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier TokenVerifier
	tokens   *TokenService
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(verifier TokenVerifier, tokens *TokenService, userRepo repository.UserRepository) *Service {
	return &Service{
		verifier: verifier,
		tokens:   tokens,
		userRepo: userRepo,
		now:      time.Now,
	}
}

// Authenticate はベアラートークンを検証して呼び出し元を返す。
// アプリ発行のトークンを先に試し、だめならFirebaseのIDトークンとして検証する。
// Firebaseで初めて見るユーザーは自動で登録する。
func (s *Service) Authenticate(ctx context.Context, bearer string) (*model.Principal, error) {
	if bearer == "" {
		return nil, ErrInvalidToken
	}

	if claims, err := s.tokens.Parse(bearer); err == nil {
		user, err := s.userRepo.FindByID(ctx, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("%w: user no longer exists", ErrInvalidToken)
		}
		return principalOf(user), nil
	} else if errors.Is(err, ErrTokenExpired) {
		return nil, err
	}

	user, err := s.resolveFirebaseUser(ctx, bearer)
	if err != nil {
		return nil, err
	}
	return principalOf(user), nil
}

// ExchangeToken はFirebaseのIDトークンをアプリのアクセストークンに交換する。
func (s *Service) ExchangeToken(ctx context.Context, idToken string) (*IssuedToken, error) {
	user, err := s.resolveFirebaseUser(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// AdminLogin は管理者に限りアクセストークンを発行する。
func (s *Service) AdminLogin(ctx context.Context, idToken string) (*IssuedToken, error) {
	user, err := s.resolveFirebaseUser(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		slog.Warn("non-admin attempted admin login",
			slog.String("user_id", user.ID),
		)
		return nil, model.NewAdminRequiredError()
	}
	return s.issue(user)
}

func (s *Service) issue(user *model.User) (*IssuedToken, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.IsAdmin)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// resolveFirebaseUser はIDトークンを検証し、対応するユーザーを返す。
// 未登録であればトークンの情報から作成する。
func (s *Service) resolveFirebaseUser(ctx context.Context, idToken string) (*model.User, error) {
	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByFirebaseUID(ctx, identity.UID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	return s.provision(ctx, identity)
}

// provision はFirebaseの本人情報からユーザーを作成する。
// 同じメールアドレスの別ユーザーが存在する場合は重複エラーを返す。
func (s *Service) provision(ctx context.Context, identity *model.VerifiedIdentity) (*model.User, error) {
	if identity.Email == "" {
		return nil, model.NewValidationError("メールアドレスが確認できないアカウントです")
	}

	existing, err := s.userRepo.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateUserError()
	}

	now := s.now()
	user := &model.User{
		ID:          uuid.New().String(),
		FirebaseUID: identity.UID,
		FullName:    identity.Name,
		Email:       identity.Email,
		IsVerified:  identity.EmailVerified,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時リクエストで先に作成された場合はそれを使う
		if raced, findErr := s.userRepo.FindByFirebaseUID(ctx, identity.UID); findErr == nil && raced != nil {
			return raced, nil
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user provisioned",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

func principalOf(user *model.User) *model.Principal {
	return &model.Principal{UserID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin}
}
