package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elsaedy55/revoai/internal/model"
	"github.com/elsaedy55/revoai/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	users    map[string]*model.User
	createFn func(ctx context.Context, user *model.User) error
	created  []*model.User
}

func newMockUserRepo(users ...*model.User) *mockUserRepo {
	m := &mockUserRepo{users: map[string]*model.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) FindByFirebaseUID(ctx context.Context, uid string) (*model.User, error) {
	for _, u := range m.users {
		if u.FirebaseUID == uid {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, user); err != nil {
			return err
		}
	}
	m.created = append(m.created, user)
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	return m.users[id], nil
}
func (m *mockUserRepo) SetAdmin(ctx context.Context, id string, isAdmin bool) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) SetVerified(ctx context.Context, id string, isVerified bool) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) List(ctx context.Context, offset, limit int, search string) ([]model.User, int, error) {
	return nil, 0, nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error { return nil }

var _ repository.UserRepository = (*mockUserRepo)(nil)

type mockVerifier struct {
	verifyFn func(ctx context.Context, idToken string) (*model.VerifiedIdentity, error)
}

func (m *mockVerifier) Verify(ctx context.Context, idToken string) (*model.VerifiedIdentity, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, idToken)
	}
	return nil, ErrInvalidToken
}

// firebaseTokens はトークン文字列をUIDとみなす検証器を返す。
func firebaseTokens(identities map[string]*model.VerifiedIdentity) *mockVerifier {
	return &mockVerifier{verifyFn: func(ctx context.Context, idToken string) (*model.VerifiedIdentity, error) {
		if id, ok := identities[idToken]; ok {
			return id, nil
		}
		return nil, ErrInvalidToken
	}}
}

func newTestTokenService() *TokenService {
	return NewTokenService("test-secret-0123456789", time.Hour)
}

// --- テスト ---

func TestAuthenticate_AppToken(t *testing.T) {
	existing := &model.User{ID: "user-1", Email: "a@example.com", IsAdmin: true}
	tokens := newTestTokenService()
	svc := NewService(&mockVerifier{}, tokens, newMockUserRepo(existing))

	token, _, err := tokens.Issue("user-1", false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	p, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	// 管理者フラグはトークンではなくDBの値を使う
	if p.UserID != "user-1" || !p.IsAdmin {
		t.Errorf("principal = %+v", p)
	}
}

func TestAuthenticate_AppTokenForDeletedUser(t *testing.T) {
	tokens := newTestTokenService()
	svc := NewService(&mockVerifier{}, tokens, newMockUserRepo())

	token, _, _ := tokens.Issue("deleted", false)
	_, err := svc.Authenticate(context.Background(), token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticate_ExpiredAppToken(t *testing.T) {
	tokens := newTestTokenService()
	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, _ := tokens.Issue("user-1", false)
	tokens.now = time.Now

	svc := NewService(&mockVerifier{}, tokens, newMockUserRepo(&model.User{ID: "user-1"}))
	_, err := svc.Authenticate(context.Background(), token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

// Firebaseで初めて見るユーザーは自動登録される
func TestAuthenticate_FirebaseProvisionsNewUser(t *testing.T) {
	repo := newMockUserRepo()
	verifier := firebaseTokens(map[string]*model.VerifiedIdentity{
		"fb-token": {UID: "uid-1", Email: "new@example.com", EmailVerified: true, Name: "سارة"},
	})
	svc := NewService(verifier, newTestTokenService(), repo)

	p, err := svc.Authenticate(context.Background(), "fb-token")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created = %d, want 1", len(repo.created))
	}
	u := repo.created[0]
	if u.FirebaseUID != "uid-1" || u.FullName != "سارة" || !u.IsVerified || u.IsAdmin {
		t.Errorf("created user = %+v", u)
	}
	if p.UserID != u.ID || p.Email != "new@example.com" {
		t.Errorf("principal = %+v", p)
	}

	// 2回目は既存ユーザーに解決される
	if _, err := svc.Authenticate(context.Background(), "fb-token"); err != nil {
		t.Fatalf("second Authenticate: %v", err)
	}
	if len(repo.created) != 1 {
		t.Errorf("created = %d, want 1", len(repo.created))
	}
}

func TestAuthenticate_FirebaseDuplicateEmail(t *testing.T) {
	repo := newMockUserRepo(&model.User{ID: "user-1", FirebaseUID: "uid-old", Email: "dup@example.com"})
	verifier := firebaseTokens(map[string]*model.VerifiedIdentity{
		"fb-token": {UID: "uid-new", Email: "dup@example.com"},
	})
	svc := NewService(verifier, newTestTokenService(), repo)

	_, err := svc.Authenticate(context.Background(), "fb-token")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateUser {
		t.Errorf("err = %v, want DUPLICATE_USER", err)
	}
}

func TestAuthenticate_FirebaseWithoutEmail(t *testing.T) {
	verifier := firebaseTokens(map[string]*model.VerifiedIdentity{"fb-token": {UID: "uid-1"}})
	svc := NewService(verifier, newTestTokenService(), newMockUserRepo())

	_, err := svc.Authenticate(context.Background(), "fb-token")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("err = %v, want VALIDATION_FAILED", err)
	}
}

// 同時リクエストで先に作成されたユーザーがあればそれを使う
func TestAuthenticate_ProvisionRace(t *testing.T) {
	repo := newMockUserRepo()
	repo.createFn = func(ctx context.Context, user *model.User) error {
		repo.users["winner"] = &model.User{ID: "winner", FirebaseUID: user.FirebaseUID, Email: user.Email}
		return errors.New("duplicate key value violates unique constraint")
	}
	verifier := firebaseTokens(map[string]*model.VerifiedIdentity{
		"fb-token": {UID: "uid-1", Email: "race@example.com"},
	})
	svc := NewService(verifier, newTestTokenService(), repo)

	p, err := svc.Authenticate(context.Background(), "fb-token")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.UserID != "winner" {
		t.Errorf("UserID = %q, want winner", p.UserID)
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	svc := NewService(&mockVerifier{}, newTestTokenService(), newMockUserRepo())

	for _, token := range []string{"", "garbage"} {
		if _, err := svc.Authenticate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Authenticate(%q) err = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestExchangeToken_IssuesAppToken(t *testing.T) {
	repo := newMockUserRepo(&model.User{ID: "user-1", FirebaseUID: "uid-1", Email: "a@example.com"})
	verifier := firebaseTokens(map[string]*model.VerifiedIdentity{"fb-token": {UID: "uid-1"}})
	tokens := newTestTokenService()
	svc := NewService(verifier, tokens, repo)

	issued, err := svc.ExchangeToken(context.Background(), "fb-token")
	if err != nil {
		t.Fatalf("ExchangeToken: %v", err)
	}
	claims, err := tokens.Parse(issued.Token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-1" || issued.User.ID != "user-1" {
		t.Errorf("claims=%+v user=%+v", claims, issued.User)
	}
}

func TestAdminLogin(t *testing.T) {
	repo := newMockUserRepo(
		&model.User{ID: "admin", FirebaseUID: "uid-admin", Email: "admin@example.com", IsAdmin: true},
		&model.User{ID: "user", FirebaseUID: "uid-user", Email: "user@example.com"},
	)
	verifier := firebaseTokens(map[string]*model.VerifiedIdentity{
		"admin-token": {UID: "uid-admin"},
		"user-token":  {UID: "uid-user"},
	})
	tokens := newTestTokenService()
	svc := NewService(verifier, tokens, repo)

	issued, err := svc.AdminLogin(context.Background(), "admin-token")
	if err != nil {
		t.Fatalf("AdminLogin(admin): %v", err)
	}
	if claims, _ := tokens.Parse(issued.Token); claims == nil || !claims.Admin {
		t.Errorf("admin claim missing: %+v", claims)
	}

	_, err = svc.AdminLogin(context.Background(), "user-token")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAdminRequired {
		t.Errorf("AdminLogin(user) err = %v, want ADMIN_REQUIRED", err)
	}
}
