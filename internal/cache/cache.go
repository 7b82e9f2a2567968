// Package cache は症状分析結果のRedisキャッシュを提供する。
// 同一ユーザー・同一症状集合に対する診断エンジン呼び出しを24時間以内に重複させない。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/elsaedy55/revoai/internal/model"
)

// DefaultTTL は分析結果のキャッシュ有効期間。
const DefaultTTL = 24 * time.Hour

const keyPrefix = "symptom_analysis"

// Client はAnalysisCacheが使用するRedisコマンドのサブセット。
// *redis.Clientがこれを満たす。
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Error はキャッシュ操作の失敗を表す。ログに記録するだけで呼び出し元には返さない。
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AnalysisCache は診断ペイロードをJSONで保持するキャッシュ。
type AnalysisCache struct {
	client Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewAnalysisCache はAnalysisCacheを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewAnalysisCache(client Client, ttl time.Duration, logger *slog.Logger) *AnalysisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisCache{client: client, ttl: ttl, logger: logger}
}

// SymptomSet は症状リストを重複排除・バイト順ソートした新しいスライスを返す。
// 入力スライスは変更しない。大文字小文字は区別する。
func SymptomSet(symptoms []string) []string {
	set := lo.Uniq(symptoms)
	slices.Sort(set)
	return set
}

// Key はユーザーIDと症状集合からキャッシュキーを導出する。
// 症状の順序や重複に依存しない純粋関数。
// 症状集合はJSON配列として埋め込むため、カンマを含む症状と複数の症状が同じキーになることはない。
func Key(userID string, symptoms []string) string {
	encoded, _ := json.Marshal(SymptomSet(symptoms))
	return fmt.Sprintf("%s:%s:%s", keyPrefix, userID, encoded)
}

// Get はキャッシュされた診断ペイロードを返す。
// 読み取りやデコードに失敗した場合は警告ログを出してミスとして扱う。
func (c *AnalysisCache) Get(ctx context.Context, userID string, symptoms []string) (*model.DiagnosisPayload, bool) {
	key := Key(userID, symptoms)

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.warn(&Error{Op: "get", Key: key, Err: err})
		return nil, false
	}

	payload := &model.DiagnosisPayload{}
	if err := json.Unmarshal(raw, payload); err != nil {
		c.warn(&Error{Op: "decode", Key: key, Err: err})
		return nil, false
	}
	return payload, true
}

// Put は診断ペイロードをTTL付きで保存する。
// 書き込みに失敗しても呼び出し元の処理は継続させる。
func (c *AnalysisCache) Put(ctx context.Context, userID string, symptoms []string, payload *model.DiagnosisPayload) {
	key := Key(userID, symptoms)

	raw, err := json.Marshal(payload)
	if err != nil {
		c.warn(&Error{Op: "encode", Key: key, Err: err})
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.warn(&Error{Op: "set", Key: key, Err: err})
	}
}

func (c *AnalysisCache) warn(err *Error) {
	c.logger.Warn("analysis cache unavailable",
		slog.String("op", err.Op),
		slog.String("key", err.Key),
		slog.String("error", err.Err.Error()),
	)
}
