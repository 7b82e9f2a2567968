package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は利用者が入力した自由記述（症状メモ、病歴メモ、推奨事項など）から
// HTMLを取り除く。保存したテキストはメール本文や管理画面にも表示される。
type TextSanitizer interface {
	// Sanitize はタグをすべて除去したプレーンテキストを返す。
	// 前後の空白は取り除く。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyでタグを除去する。
// Policyはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、エスケープされた文字を元に戻す。
// 出力はJSONとして返し、HTMLに埋め込む側（html/template）で改めてエスケープされる。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// SanitizeAll はスライスの各要素をサニタイズし、空になった要素を取り除く。
func SanitizeAll(s TextSanitizer, values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if clean := s.Sanitize(v); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
