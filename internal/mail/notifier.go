package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/elsaedy55/revoai/internal/model"
)

// UserFinder は通知先ユーザーの取得に使うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Notifier はドメインイベントをメールに変換して送る。
type Notifier struct {
	users       UserFinder
	sender      Sender
	frontendURL string
}

// NewNotifier はNotifierの新しいインスタンスを生成する。
// frontendURLは分析結果メールのリンク先に使う。空の場合はリンクを付けない。
func NewNotifier(users UserFinder, sender Sender, frontendURL string) *Notifier {
	return &Notifier{users: users, sender: sender, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (n *Notifier) analysisURL(id string) string {
	if n.frontendURL == "" || id == "" {
		return ""
	}
	return n.frontendURL + "/analyses/" + url.PathEscape(id)
}

// NotifyAnalysis は分析結果をユーザーのメールアドレスに送る。
// ユーザーが退会済みの場合は何もしない。
func (n *Notifier) NotifyAnalysis(ctx context.Context, userID string, analysis *model.AnalysisResult) error {
	user, err := n.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil
	}

	msg, err := AnalysisResultMessage(user.Email, analysis, n.analysisURL(analysis.ID))
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, msg)
}

// NotifyAccountStatus はアカウント状態の変更をユーザーに知らせる。
func (n *Notifier) NotifyAccountStatus(ctx context.Context, user *model.User, active bool) error {
	msg, err := AccountStatusMessage(user.Email, active)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, msg)
}
