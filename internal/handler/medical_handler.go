package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/elsaedy55/revoai/internal/medical"
	"github.com/elsaedy55/revoai/internal/model"
)

// MedicalServiceInterface は病歴ハンドラーが必要とするサービスインターフェース。
// すべての操作はuserIDでスコープされる。
type MedicalServiceInterface interface {
	AddCondition(ctx context.Context, userID string, in medical.ConditionInput) (*model.Condition, error)
	UpdateCondition(ctx context.Context, userID, id string, in medical.ConditionInput) (*model.Condition, error)
	DeleteCondition(ctx context.Context, userID, id string) error

	AddMedication(ctx context.Context, userID string, in medical.MedicationInput) (*model.Medication, error)
	UpdateMedication(ctx context.Context, userID, id string, in medical.MedicationInput) (*model.Medication, error)
	DeleteMedication(ctx context.Context, userID, id string) error

	AddSurgery(ctx context.Context, userID string, in medical.SurgeryInput) (*model.Surgery, error)
	UpdateSurgery(ctx context.Context, userID, id string, in medical.SurgeryInput) (*model.Surgery, error)
	DeleteSurgery(ctx context.Context, userID, id string) error

	PreventiveRecommendations(ctx context.Context, userID string) ([]string, error)
}

// MedicalHandler は持病・服薬・手術歴のHTTPハンドラー。
type MedicalHandler struct {
	service MedicalServiceInterface
}

// NewMedicalHandler はMedicalHandlerを生成する。
func NewMedicalHandler(service MedicalServiceInterface) *MedicalHandler {
	return &MedicalHandler{service: service}
}

type conditionRequest struct {
	ConditionName string `json:"condition_name"`
	StartDate     string `json:"start_date"`
	Notes         string `json:"notes"`
}

func (c conditionRequest) input() medical.ConditionInput {
	return medical.ConditionInput{Name: c.ConditionName, StartDate: c.StartDate, Notes: c.Notes}
}

type medicationRequest struct {
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	StartDate      string `json:"start_date"`
}

func (m medicationRequest) input() medical.MedicationInput {
	return medical.MedicationInput{Name: m.MedicationName, Dosage: m.Dosage, Frequency: m.Frequency, StartDate: m.StartDate}
}

type surgeryRequest struct {
	SurgeryName string `json:"surgery_name"`
	SurgeryDate string `json:"surgery_date"`
	Notes       string `json:"notes"`
}

func (s surgeryRequest) input() medical.SurgeryInput {
	return medical.SurgeryInput{Name: s.SurgeryName, SurgeryDate: s.SurgeryDate, Notes: s.Notes}
}

type recommendationsResponse struct {
	Recommendations []string `json:"recommendations"`
}

// AddCondition は持病を登録する。
// POST /api/users/conditions
func (h *MedicalHandler) AddCondition(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req conditionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.AddCondition(r.Context(), principal.UserID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConditionResponse(c))
}

// UpdateCondition は持病を更新する。
// PUT /api/users/conditions/{id}
func (h *MedicalHandler) UpdateCondition(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req conditionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.UpdateCondition(r.Context(), principal.UserID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConditionResponse(c))
}

// DeleteCondition は持病を削除する。
// DELETE /api/users/conditions/{id}
func (h *MedicalHandler) DeleteCondition(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCondition(r.Context(), principal.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMedication は服薬を登録する。
// POST /api/users/medications
func (h *MedicalHandler) AddMedication(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req medicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.service.AddMedication(r.Context(), principal.UserID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMedicationResponse(m))
}

// UpdateMedication は服薬を更新する。
// PUT /api/users/medications/{id}
func (h *MedicalHandler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req medicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.service.UpdateMedication(r.Context(), principal.UserID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationResponse(m))
}

// DeleteMedication は服薬を削除する。
// DELETE /api/users/medications/{id}
func (h *MedicalHandler) DeleteMedication(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteMedication(r.Context(), principal.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddSurgery は手術歴を登録する。
// POST /api/users/surgeries
func (h *MedicalHandler) AddSurgery(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req surgeryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.service.AddSurgery(r.Context(), principal.UserID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSurgeryResponse(s))
}

// UpdateSurgery は手術歴を更新する。
// PUT /api/users/surgeries/{id}
func (h *MedicalHandler) UpdateSurgery(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req surgeryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.service.UpdateSurgery(r.Context(), principal.UserID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSurgeryResponse(s))
}

// DeleteSurgery は手術歴を削除する。
// DELETE /api/users/surgeries/{id}
func (h *MedicalHandler) DeleteSurgery(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSurgery(r.Context(), principal.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recommendations は予防のための推奨事項を返す。
// GET /api/users/recommendations
func (h *MedicalHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	recommendations, err := h.service.PreventiveRecommendations(r.Context(), principal.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{Recommendations: recommendations})
}
