// Package diagnosis は診断エンジン（OpenAI互換のChat Completions API）との連携を提供する。
// 症状と病歴コンテキストから候補疾患・重症度・推奨事項をJSONで受け取る。
package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elsaedy55/revoai/internal/model"
)

// maxResponseBytes は応答本文の読み取り上限。
const maxResponseBytes = 1 << 20

// Options は診断エンジンの呼び出しパラメータ。
type Options struct {
	BaseURL     string // 例: https://api.openai.com/v1
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	MaxRetries  int
}

// Request は1回の診断依頼。
type Request struct {
	Symptoms []string
	Context  *model.MedicalContext
	Notes    string
}

// Client は診断エンジンのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	opts       Options
	sleep      func(ctx context.Context, d time.Duration) error // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientには本番ではSSRF防止付きクライアントを渡す。
func NewClient(httpClient *http.Client, logger *slog.Logger, opts Options) *Client {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		opts:       opts,
		sleep:      sleepContext,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string               `json:"model"`
	Messages       []chatMessage        `json:"messages"`
	Temperature    float64              `json:"temperature"`
	MaxTokens      int                  `json:"max_tokens"`
	ResponseFormat responseFormatOption `json:"response_format"`
}

type responseFormatOption struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Diagnose は症状を診断エンジンに送り、検証済みの診断ペイロードを返す。
// 失敗はすべて*model.EngineErrorとして返す。429/5xxは指数バックオフで再試行する。
// タイムアウトは呼び出し元がctxで課す。
func (c *Client) Diagnose(ctx context.Context, req Request) (*model.DiagnosisPayload, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildUserPrompt(req.Symptoms, RenderContext(req.Context), req.Notes)},
		},
		Temperature:    c.opts.Temperature,
		MaxTokens:      c.opts.MaxTokens,
		ResponseFormat: responseFormatOption{Type: "json_object"},
	})
	if err != nil {
		return nil, &model.EngineError{Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(attempt - 1)
			c.logger.Warn("retrying diagnosis engine",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &model.EngineError{Err: fmt.Errorf("%w (last error: %v)", err, lastErr)}
			}
		}

		content, retry, err := c.complete(ctx, body)
		if err == nil {
			payload, err := ParsePayload(content)
			if err != nil {
				c.logger.Error("diagnosis engine returned invalid payload",
					slog.String("error", err.Error()),
				)
				return nil, &model.EngineError{Err: err}
			}
			return payload, nil
		}

		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}

	c.logger.Error("diagnosis engine call failed",
		slog.String("model", c.opts.Model),
		slog.String("error", lastErr.Error()),
	)
	return nil, &model.EngineError{Err: lastErr}
}

// complete はChat Completions APIを1回呼び出し、最初の選択肢の本文を返す。
// 2番目の戻り値は失敗が再試行対象かどうか。
func (c *Client) complete(ctx context.Context, body []byte) (string, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	httpReq.Header.Set("User-Agent", "RevoAI/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded), err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", true, fmt.Errorf("failed to read response body: %w", err)
	}

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case OutcomeRetry:
		return "", true, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, apiErrorMessage(resp.StatusCode, raw))
	case OutcomeFail:
		return "", false, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, apiErrorMessage(resp.StatusCode, raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode engine response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", false, fmt.Errorf("engine response has no content")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

func apiErrorMessage(status int, raw []byte) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return http.StatusText(status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
