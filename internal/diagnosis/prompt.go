package diagnosis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/elsaedy55/revoai/internal/model"
)

// systemPrompt は診断エンジンに与える役割。
const systemPrompt = "أنت طبيب خبير متخصص في التشخيص الطبي. تقدم تحليلاً دقيقاً وموضوعياً للأعراض."

const (
	unknownAge = "غير محدد"
	noneListed = "لا يوجد"
	dateLayout = "2006-01-02"
)

// responseFormat はエンジンに要求するJSONの形。
const responseFormat = `{
  "diagnoses": [
    { "condition": "اسم الحالة", "probability": 0.8, "description": "وصف مختصر" }
  ],
  "severity": { "level": "منخفض/متوسط/مرتفع", "description": "وصف مستوى الخطورة" },
  "recommendations": ["توصية 1", "توصية 2"],
  "urgentCare": true,
  "followUpTime": "فترة المتابعة المقترحة"
}`

// RenderContext は病歴コンテキストをプロンプト用のテキストに変換する。
// 年齢が不明な場合は「غير محدد」と表記する。
func RenderContext(mc *model.MedicalContext) string {
	age := unknownAge
	if mc.AgeKnown() {
		age = fmt.Sprintf("%d سنة", *mc.Age)
	}

	conditions := lo.Map(mc.Conditions, func(c model.Condition, _ int) string {
		return fmt.Sprintf("%s (منذ %s)", c.Name, c.StartDate.Format(dateLayout))
	})
	medications := lo.Map(mc.Medications, func(m model.Medication, _ int) string {
		details := lo.Compact([]string{m.Dosage, m.Frequency})
		if len(details) == 0 {
			return m.Name
		}
		return fmt.Sprintf("%s (%s)", m.Name, strings.Join(details, ", "))
	})
	surgeries := lo.Map(mc.Surgeries, func(s model.Surgery, _ int) string {
		return fmt.Sprintf("%s (%s)", s.Name, s.Date.Format(dateLayout))
	})

	var b strings.Builder
	b.WriteString("معلومات المريض:\n")
	fmt.Fprintf(&b, "- العمر: %s\n", age)
	fmt.Fprintf(&b, "- الأمراض المزمنة: %s\n", joinOrNone(conditions))
	fmt.Fprintf(&b, "- الأدوية الحالية: %s\n", joinOrNone(medications))
	fmt.Fprintf(&b, "- العمليات الجراحية السابقة: %s", joinOrNone(surgeries))
	return b.String()
}

// BuildUserPrompt は症状、病歴テキスト、補足メモからユーザープロンプトを組み立てる。
func BuildUserPrompt(symptoms []string, contextText, notes string) string {
	var b strings.Builder
	b.WriteString("أنت طبيب خبير في التشخيص الطبي. قم بتحليل الأعراض التالية مع الأخذ في الاعتبار التاريخ الطبي للمريض.\n\n")
	b.WriteString("الأعراض المقدمة:\n")
	b.WriteString(strings.Join(symptoms, "\n"))
	b.WriteString("\n\n")
	if notes != "" {
		b.WriteString("ملاحظات إضافية من المريض:\n")
		b.WriteString(notes)
		b.WriteString("\n\n")
	}
	b.WriteString("السياق الطبي للمريض:\n")
	b.WriteString(contextText)
	b.WriteString("\n\n")
	b.WriteString("قم بتقديم:\n")
	b.WriteString("1. التشخيصات المحتملة مع نسبة الاحتمال لكل تشخيص\n")
	b.WriteString("2. مستوى خطورة الحالة\n")
	b.WriteString("3. توصيات وإرشادات طبية\n")
	b.WriteString("4. هل يحتاج المريض لزيارة طبيب بشكل عاجل؟\n\n")
	b.WriteString("ملاحظة: قدم إجابتك بتنسيق JSON بالشكل التالي:\n")
	b.WriteString(responseFormat)
	return b.String()
}

// ParsePayload はエンジンの応答本文を診断ペイロードとして解釈し、検証する。
// 候補疾患が1件以上あり、各確率が0から1の範囲であることを要求する。
func ParsePayload(content string) (*model.DiagnosisPayload, error) {
	payload := &model.DiagnosisPayload{}
	if err := json.Unmarshal([]byte(content), payload); err != nil {
		return nil, fmt.Errorf("malformed diagnosis payload: %w", err)
	}
	if len(payload.Diagnoses) == 0 {
		return nil, fmt.Errorf("diagnosis payload has no diagnoses")
	}
	for i, d := range payload.Diagnoses {
		if strings.TrimSpace(d.Condition) == "" {
			return nil, fmt.Errorf("diagnosis %d has empty condition", i)
		}
		if d.Probability < 0 || d.Probability > 1 {
			return nil, fmt.Errorf("diagnosis %d probability out of range: %v", i, d.Probability)
		}
	}
	if payload.Recommendations == nil {
		payload.Recommendations = []string{}
	}
	return payload, nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return noneListed
	}
	return strings.Join(items, ", ")
}
