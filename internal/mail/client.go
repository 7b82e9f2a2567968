// Package mail はSendGrid v3 APIによるメール通知を提供する。
// 症状分析の結果通知と、管理者によるアカウント状態変更の通知を送る。
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Host はSendGrid APIのホスト。送信用HTTPクライアントの接続先をこのホストに限定する。
const Host = "api.sendgrid.com"

// defaultEndpoint はSendGridのメール送信APIのエンドポイント。
const defaultEndpoint = "https://" + Host + "/v3/mail/send"

// maxErrorBodyBytes はエラー応答から読み取る本文の上限。
const maxErrorBodyBytes = 4 << 10

// Message は送信するメール1通。
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender はメール送信のインターフェース。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client はSendGrid APIのクライアント。
// APIキーが未設定の場合は送信せずにデバッグログだけを残す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	from       string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey, from string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		from:       from,
		endpoint:   defaultEndpoint,
	}
}

// Enabled はメール送信が有効かを返す。
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []address `json:"to"`
}

type address struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send はメールを1通送信する。SendGridは受理時に202を返す。
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Enabled() {
		c.logger.Debug("mail disabled, skipping send",
			slog.String("subject", msg.Subject),
		)
		return nil
	}
	if msg.To == "" {
		return fmt.Errorf("recipient is empty")
	}

	body, err := json.Marshal(sendRequest{
		Personalizations: []personalization{{To: []address{{Email: msg.To}}}},
		From:             address{Email: c.from},
		Subject:          msg.Subject,
		Content:          []content{{Type: "text/html", Value: msg.HTML}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("mail send request failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Error("mail API returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(detail)),
		)
		return fmt.Errorf("mail API returned status %d", resp.StatusCode)
	}

	return nil
}
