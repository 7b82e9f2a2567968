package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/elsaedy55/revoai/internal/model"
)

var (
	// ErrInvalidToken はトークンが不正な場合のエラー。
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired はトークンの有効期限切れを表す。
	ErrTokenExpired = errors.New("token expired")
)

// TokenVerifier は外部認証基盤のIDトークンを検証するインターフェース。
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*model.VerifiedIdentity, error)
}

// idTokenVerifier は*fbauth.Clientのうち検証に使うメソッド。
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseVerifier はFirebase AuthenticationのIDトークンを検証する。
type FirebaseVerifier struct {
	client idTokenVerifier
}

// NewFirebaseVerifier はFirebaseアプリを初期化してFirebaseVerifierを生成する。
// credentialsFileが空の場合はApplication Default Credentialsを使用する。
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify はIDトークンを検証し、本人情報を返す。
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*model.VerifiedIdentity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		if fbauth.IsIDTokenExpired(err) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := &model.VerifiedIdentity{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		identity.Email = email
	}
	if verified, ok := token.Claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	if name, ok := token.Claims["name"].(string); ok {
		identity.Name = name
	}
	return identity, nil
}
