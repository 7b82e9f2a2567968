package medical

import (
	"context"
	"fmt"
)

// followUpRecommendations は持病がある利用者に追加する推奨事項。
var followUpRecommendations = []string{
	"متابعة دورية مع الطبيب المختص",
	"الالتزام بمواعيد الأدوية",
	"إجراء الفحوصات الدورية اللازمة",
}

// lifestyleRecommendations はすべての利用者に返す生活習慣の推奨事項。
var lifestyleRecommendations = []string{
	"ممارسة الرياضة بانتظام (30 دقيقة يومياً على الأقل)",
	"اتباع نظام غذائي صحي ومتوازن",
	"الحصول على قسط كافٍ من النوم (7-9 ساعات)",
	"شرب كمية كافية من الماء (8 أكواب يومياً)",
	"تجنب التدخين والكحول",
	"إدارة التوتر والضغط النفسي",
}

// PreventiveRecommendations は病歴に応じた予防的な推奨事項を返す。
func (s *Service) PreventiveRecommendations(ctx context.Context, userID string) ([]string, error) {
	conditions, err := s.conditions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conditions: %w", err)
	}
	return Preventive(len(conditions) > 0), nil
}

// Preventive は持病の有無から推奨事項を組み立てる。
func Preventive(hasConditions bool) []string {
	recs := make([]string, 0, len(followUpRecommendations)+len(lifestyleRecommendations))
	if hasConditions {
		recs = append(recs, followUpRecommendations...)
	}
	return append(recs, lifestyleRecommendations...)
}
