// Package severity は症状リストから緊急度をローカルに判定する。
// 診断エンジンは呼び出さず、結果はキャッシュも永続化もしない。
package severity

import (
	"strings"

	"github.com/elsaedy55/revoai/internal/model"
)

// EmergencyPhrases は受診を急ぐべき症状の表現。
var EmergencyPhrases = []string{
	"ألم شديد في الصدر",
	"صعوبة في التنفس",
	"فقدان الوعي",
	"نزيف شديد",
	"ارتفاع شديد في درجة الحرارة",
	"شلل مفاجئ",
	"تشوش شديد",
	"ألم شديد ومفاجئ في البطن",
}

const (
	// EmergencyRecommendation は緊急時に返す案内文。
	EmergencyRecommendation = "يرجى التوجه إلى أقرب مستشفى أو الاتصال بالطوارئ فوراً"
	// ConsultRecommendation は通常時に返す案内文。
	ConsultRecommendation = "يرجى استشارة الطبيب في أقرب وقت ممكن"
)

// Evaluate は症状のいずれかが緊急症状を含むかで重症度を判定する。
// 大文字小文字を区別しない部分一致。diagnosisTextは判定に使わない。
func Evaluate(symptoms []string, diagnosisText string) model.SeverityVerdict {
	for _, s := range symptoms {
		if IsEmergency(s) {
			return model.SeverityVerdict{
				IsEmergency:    true,
				SeverityLevel:  model.SeverityHigh,
				Recommendation: EmergencyRecommendation,
			}
		}
	}
	return model.SeverityVerdict{
		IsEmergency:    false,
		SeverityLevel:  model.SeverityMedium,
		Recommendation: ConsultRecommendation,
	}
}

// IsEmergency は1件の症状が緊急症状の表現を含むかを返す。
func IsEmergency(symptom string) bool {
	s := strings.ToLower(symptom)
	for _, phrase := range EmergencyPhrases {
		if strings.Contains(s, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
