package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/elsaedy55/revoai/internal/medical"
	"github.com/elsaedy55/revoai/internal/middleware"
	"github.com/elsaedy55/revoai/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをvにデコードする。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidBodyError())
		return false
	}
	return true
}

// requirePrincipal は認証済みユーザーを取得する。
// 見つからない場合は401を書き込みfalseを返す。
func requirePrincipal(w http.ResponseWriter, r *http.Request) (*model.Principal, bool) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return principal, true
}

// --- レスポンス型 ---

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	BirthDate  *string   `json:"birth_date"`
	Address    string    `json:"address"`
	IsVerified bool      `json:"is_verified"`
	IsAdmin    bool      `json:"is_admin"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:         u.ID,
		FullName:   u.FullName,
		Email:      u.Email,
		Phone:      u.Phone,
		Address:    u.Address,
		IsVerified: u.IsVerified,
		IsAdmin:    u.IsAdmin,
		CreatedAt:  u.CreatedAt,
	}
	if u.BirthDate != nil {
		s := u.BirthDate.Format(medical.DateLayout)
		resp.BirthDate = &s
	}
	return resp
}

type conditionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"condition_name"`
	StartDate string    `json:"start_date"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func toConditionResponse(c *model.Condition) conditionResponse {
	return conditionResponse{
		ID:        c.ID,
		Name:      c.Name,
		StartDate: c.StartDate.Format(medical.DateLayout),
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt,
	}
}

type medicationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"medication_name"`
	Dosage    string    `json:"dosage"`
	Frequency string    `json:"frequency"`
	StartDate string    `json:"start_date"`
	CreatedAt time.Time `json:"created_at"`
}

func toMedicationResponse(m *model.Medication) medicationResponse {
	return medicationResponse{
		ID:        m.ID,
		Name:      m.Name,
		Dosage:    m.Dosage,
		Frequency: m.Frequency,
		StartDate: m.StartDate.Format(medical.DateLayout),
		CreatedAt: m.CreatedAt,
	}
}

type surgeryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"surgery_name"`
	SurgeryDate string    `json:"surgery_date"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}

func toSurgeryResponse(s *model.Surgery) surgeryResponse {
	return surgeryResponse{
		ID:          s.ID,
		Name:        s.Name,
		SurgeryDate: s.Date.Format(medical.DateLayout),
		Notes:       s.Notes,
		CreatedAt:   s.CreatedAt,
	}
}

// medicalDataResponse は病歴一式のAPIレスポンス。
type medicalDataResponse struct {
	Conditions  []conditionResponse  `json:"conditions"`
	Medications []medicationResponse `json:"medications"`
	Surgeries   []surgeryResponse    `json:"surgeries"`
}

func toMedicalDataResponse(records *medical.Records) medicalDataResponse {
	resp := medicalDataResponse{
		Conditions:  make([]conditionResponse, 0, len(records.Conditions)),
		Medications: make([]medicationResponse, 0, len(records.Medications)),
		Surgeries:   make([]surgeryResponse, 0, len(records.Surgeries)),
	}
	for i := range records.Conditions {
		resp.Conditions = append(resp.Conditions, toConditionResponse(&records.Conditions[i]))
	}
	for i := range records.Medications {
		resp.Medications = append(resp.Medications, toMedicationResponse(&records.Medications[i]))
	}
	for i := range records.Surgeries {
		resp.Surgeries = append(resp.Surgeries, toSurgeryResponse(&records.Surgeries[i]))
	}
	return resp
}

// analysisResponse は症状分析1件のAPIレスポンス。
// analysis_resultは診断エンジンのペイロードをそのまま返す。
type analysisResponse struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	Symptoms        []string               `json:"symptoms"`
	AnalysisResult  model.DiagnosisPayload `json:"analysis_result"`
	Diagnosis       string                 `json:"diagnosis"`
	ConfidenceScore float64                `json:"confidence_score"`
	Recommendations []string               `json:"recommendations"`
	Notes           string                 `json:"notes"`
	CreatedAt       time.Time              `json:"created_at"`
}

func toAnalysisResponse(a *model.AnalysisResult) analysisResponse {
	recommendations := a.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}
	return analysisResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		Symptoms:        a.Symptoms,
		AnalysisResult:  a.Payload,
		Diagnosis:       a.Diagnosis,
		ConfidenceScore: a.ConfidenceScore,
		Recommendations: recommendations,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
	}
}

type severityResponse struct {
	IsEmergency    bool   `json:"is_emergency"`
	SeverityLevel  string `json:"severity_level"`
	Recommendation string `json:"recommendation"`
}

func toSeverityResponse(v model.SeverityVerdict) severityResponse {
	return severityResponse{
		IsEmergency:    v.IsEmergency,
		SeverityLevel:  string(v.SeverityLevel),
		Recommendation: v.Recommendation,
	}
}

// paginationResponse は一覧APIのページ情報。
type paginationResponse struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}
