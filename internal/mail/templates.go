package mail

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/elsaedy55/revoai/internal/model"
)

const analysisSubject = "نتائج تحليل الأعراض"

var analysisTemplate = template.Must(template.New("analysis").Parse(`<div dir="rtl" style="font-family: Arial, sans-serif;">
  <h2>نتائج تحليل الأعراض</h2>
  <div style="background-color: #f9f9f9; padding: 20px; border-radius: 5px;">
    <h3>التشخيص المحتمل:</h3>
    <p>{{.Diagnosis}}</p>
    <h3>نسبة الثقة:</h3>
    <p>{{.Confidence}}%</p>
    <h3>التوصيات:</h3>
    <ul>{{range .Recommendations}}
      <li>{{.}}</li>{{end}}
    </ul>
  </div>{{if .DetailURL}}
  <p><a href="{{.DetailURL}}">عرض التحليل الكامل</a></p>{{end}}
  <p style="color: #666;">
    ملاحظة: هذه النتائج هي تحليل أولي فقط ولا تعتبر تشخيصاً طبياً رسمياً.
    يرجى استشارة الطبيب للحصول على تشخيص دقيق.
  </p>
</div>`))

var statusTemplate = template.Must(template.New("status").Parse(`<div dir="rtl" style="font-family: Arial, sans-serif;">
  <h2>{{.Title}}</h2>
  <p>{{.Message}}</p>
</div>`))

// AnalysisResultMessage は症状分析の結果通知を組み立てる。
// 値はHTMLエスケープされる。detailURLが空の場合はリンクを付けない。
func AnalysisResultMessage(to string, a *model.AnalysisResult, detailURL string) (Message, error) {
	var buf bytes.Buffer
	err := analysisTemplate.Execute(&buf, struct {
		Diagnosis       string
		Confidence      string
		Recommendations []string
		DetailURL       string
	}{
		Diagnosis:       a.Diagnosis,
		Confidence:      fmt.Sprintf("%.2f", a.ConfidenceScore*100),
		Recommendations: a.Recommendations,
		DetailURL:       detailURL,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render analysis mail: %w", err)
	}
	return Message{To: to, Subject: analysisSubject, HTML: buf.String()}, nil
}

// AccountStatusMessage はアカウントの有効化・無効化の通知を組み立てる。
func AccountStatusMessage(to string, active bool) (Message, error) {
	data := struct{ Title, Message string }{
		Title:   "تم تعطيل حسابك",
		Message: "تم تعطيل حسابك من قبل المسؤول. يرجى التواصل مع الدعم الفني للمزيد من المعلومات.",
	}
	if active {
		data.Title = "تم تفعيل حسابك"
		data.Message = "تم تفعيل حسابك من قبل المسؤول. يمكنك الآن استخدام جميع ميزات التطبيق."
	}

	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("failed to render status mail: %w", err)
	}
	return Message{To: to, Subject: data.Title, HTML: buf.String()}, nil
}
