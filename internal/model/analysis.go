package model

import "time"

// Diagnosis は診断エンジンが返す候補疾患1件を表す。
type Diagnosis struct {
	Condition   string  `json:"condition"`
	Probability float64 `json:"probability"`
	Description string  `json:"description"`
}

// EngineSeverity は診断エンジン自身による重症度の評価。
type EngineSeverity struct {
	Level       string `json:"level"`
	Description string `json:"description"`
}

// DiagnosisPayload は診断エンジンのレスポンス本体。
// キャッシュにはこの構造体をJSONで格納する。
type DiagnosisPayload struct {
	Diagnoses       []Diagnosis    `json:"diagnoses"`
	Severity        EngineSeverity `json:"severity"`
	Recommendations []string       `json:"recommendations"`
	UrgentCare      bool           `json:"urgentCare"`
	FollowUpTime    string         `json:"followUpTime"`
}

// TopDiagnosis は確率が最も高い候補疾患を返す。候補が無い場合はnil。
func (p *DiagnosisPayload) TopDiagnosis() *Diagnosis {
	var top *Diagnosis
	for i := range p.Diagnoses {
		if top == nil || p.Diagnoses[i].Probability > top.Probability {
			top = &p.Diagnoses[i]
		}
	}
	return top
}

// AnalysisRequest は症状分析の入力。
type AnalysisRequest struct {
	UserID   string
	Symptoms []string
	Notes    string
}

// AnalysisResult は永続化された症状分析1件を表す。
// Symptomsは入力順のまま保存する。
type AnalysisResult struct {
	ID              string
	UserID          string
	Symptoms        []string
	Payload         DiagnosisPayload
	Diagnosis       string  // 最有力候補の疾患名
	ConfidenceScore float64 // 最有力候補の確率
	Recommendations []string
	Notes           string
	CreatedAt       time.Time
}

// SeverityLevel はローカル評価による重症度。lowは存在しない。
type SeverityLevel string

const (
	// SeverityMedium は緊急症状が見つからなかった場合の重症度。
	SeverityMedium SeverityLevel = "medium"
	// SeverityHigh は緊急症状が見つかった場合の重症度。
	SeverityHigh SeverityLevel = "high"
)

// SeverityVerdict はローカルの重症度判定結果。
// 毎回症状リストから再計算し、キャッシュも永続化もしない。
type SeverityVerdict struct {
	IsEmergency    bool
	SeverityLevel  SeverityLevel
	Recommendation string
}

// AnalysisOutcome はパイプラインの最終結果。
type AnalysisOutcome struct {
	Analysis *AnalysisResult
	Severity SeverityVerdict
}

// AnalysisPage は分析履歴の1ページ分を表す。
type AnalysisPage struct {
	Analyses   []AnalysisResult
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// SymptomFrequency は症状ごとの出現回数。
type SymptomFrequency struct {
	Symptom   string
	Frequency int
}

// AnalysisStats は管理者向けの分析統計。
type AnalysisStats struct {
	TotalAnalyses   int
	AvgConfidence   float64
	UniqueUsers     int
	CommonDiagnosis string
	CommonSymptoms  []SymptomFrequency
	Start           time.Time
	End             time.Time
}
