package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/elsaedy55/revoai/internal/model"
)

// AnalysisServiceInterface は症状分析ハンドラーが必要とするサービスインターフェース。
type AnalysisServiceInterface interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisOutcome, error)
	List(ctx context.Context, userID string, page int) (*model.AnalysisPage, error)
	Get(ctx context.Context, userID, id string) (*model.AnalysisResult, error)
	UpdateRecommendations(ctx context.Context, userID, id string, recommendations []string) (*model.AnalysisResult, error)
	Delete(ctx context.Context, userID, id string) error
}

// AnalysisHandler は症状分析のHTTPハンドラー。
type AnalysisHandler struct {
	service AnalysisServiceInterface
}

// NewAnalysisHandler はAnalysisHandlerを生成する。
func NewAnalysisHandler(service AnalysisServiceInterface) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

type analyzeRequest struct {
	Symptoms        []string `json:"symptoms"`
	AdditionalNotes string   `json:"additional_notes"`
}

type analyzeResponse struct {
	Analysis        analysisResponse `json:"analysis"`
	Severity        severityResponse `json:"severity"`
	Recommendations []string         `json:"recommendations"`
}

type updateRecommendationsRequest struct {
	Recommendations []string `json:"recommendations"`
}

type analysisHistoryResponse struct {
	Analyses   []analysisResponse `json:"analyses"`
	Pagination paginationResponse `json:"pagination"`
}

// Analyze は症状を分析する。
// POST /api/symptoms/analyze
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := h.service.Analyze(r.Context(), model.AnalysisRequest{
		UserID:   principal.UserID,
		Symptoms: req.Symptoms,
		Notes:    req.AdditionalNotes,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	analysis := toAnalysisResponse(outcome.Analysis)
	writeJSON(w, http.StatusOK, analyzeResponse{
		Analysis:        analysis,
		Severity:        toSeverityResponse(outcome.Severity),
		Recommendations: analysis.Recommendations,
	})
}

// History は分析履歴を新しい順に返す。
// GET /api/symptoms/history?page=
func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	result, err := h.service.List(r.Context(), principal.UserID, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	analyses := make([]analysisResponse, 0, len(result.Analyses))
	for i := range result.Analyses {
		analyses = append(analyses, toAnalysisResponse(&result.Analyses[i]))
	}
	writeJSON(w, http.StatusOK, analysisHistoryResponse{
		Analyses: analyses,
		Pagination: paginationResponse{
			CurrentPage:  result.Page,
			TotalPages:   result.TotalPages,
			TotalItems:   result.Total,
			ItemsPerPage: result.PageSize,
		},
	})
}

// Get は分析1件を返す。他ユーザーの分析は404になる。
// GET /api/symptoms/{id}
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	analysis, err := h.service.Get(r.Context(), principal.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalysisResponse(analysis))
}

// UpdateRecommendations は分析の推奨事項を置き換える。
// PUT /api/symptoms/{id}/recommendations
func (h *AnalysisHandler) UpdateRecommendations(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req updateRecommendationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Recommendations == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("recommendationsは必須です"))
		return
	}

	analysis, err := h.service.UpdateRecommendations(r.Context(), principal.UserID, chi.URLParam(r, "id"), req.Recommendations)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalysisResponse(analysis))
}

// Delete は分析を削除する。
// DELETE /api/symptoms/{id}
func (h *AnalysisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), principal.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
