package security

import (
	"reflect"
	"strings"
	"testing"
)

func TestSanitize_StripsMarkup(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "صداع منذ يومين", "صداع منذ يومين"},
		{"前後の空白を除去", "  حمى  ", "حمى"},
		{"タグを除去して本文を残す", "<b>ألم</b> في الصدر", "ألم في الصدر"},
		{"scriptは中身ごと除去", `<script>alert("xss")</script>سعال`, "سعال"},
		{"イベント属性付きimgは除去", `<img src=x onerror=alert(1)>دوخة`, "دوخة"},
		{"アンパサンドは元に戻す", "ضغط & سكري", "ضغط & سكري"},
		{"空文字列は空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_NoTagsSurvive(t *testing.T) {
	sanitizer := NewTextSanitizer()

	payloads := []string{
		`<iframe src="https://evil.example.com"></iframe>`,
		`<a href="javascript:alert(1)">click</a>`,
		`<svg onload=alert(1)>`,
		`<style>body{display:none}</style>`,
	}
	for _, p := range payloads {
		got := sanitizer.Sanitize(p)
		if strings.Contains(got, "<") {
			t.Errorf("Sanitize(%q) = %q, should not contain markup", p, got)
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	input := "<p>تناول <em>الدواء</em> بعد الأكل</p>"

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)
	if first != second {
		t.Errorf("not idempotent: %q != %q", first, second)
	}
}

// 空になった要素は取り除かれる
func TestSanitizeAll_DropsEmpty(t *testing.T) {
	got := SanitizeAll(NewTextSanitizer(), []string{" الراحة ", "<script>x</script>", "شرب الماء"})
	want := []string{"الراحة", "شرب الماء"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SanitizeAll = %v, want %v", got, want)
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
