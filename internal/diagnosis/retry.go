package diagnosis

import "time"

// Outcome はHTTPステータスコードに基づく呼び出し結果の分類。
type Outcome int

const (
	// OutcomeOK は成功（2xx）。
	OutcomeOK Outcome = iota
	// OutcomeRetry は再試行で回復しうる失敗（429/5xx）。
	OutcomeRetry
	// OutcomeFail は再試行しても回復しない失敗（認証エラー、不正リクエストなど）。
	OutcomeFail
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 8 * time.Second
	// DefaultMaxRetries は一時的な失敗に対する最大再試行回数。
	DefaultMaxRetries = 2
)

// ClassifyHTTPStatus はHTTPステータスコードを呼び出し結果に分類する。
func ClassifyHTTPStatus(statusCode int) Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeOK
	case statusCode == 429:
		return OutcomeRetry
	case statusCode >= 500:
		return OutcomeRetry
	default:
		return OutcomeFail
	}
}

// CalculateBackoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// 初回500ms、2倍ずつ増加、最大8秒。
func CalculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
