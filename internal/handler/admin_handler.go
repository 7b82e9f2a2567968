package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/elsaedy55/revoai/internal/model"
)

// defaultAnalyticsWindow は期間未指定時の集計期間。
const defaultAnalyticsWindow = 30 * 24 * time.Hour

// AdminUserServiceInterface は管理者ハンドラーが必要とするユーザー管理インターフェース。
// actorIDは操作を行う管理者自身のIDで、自分自身への操作を拒否するために使う。
type AdminUserServiceInterface interface {
	ListUsers(ctx context.Context, page, limit int, search string) (*model.UserPage, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	SetStatus(ctx context.Context, actorID, id string, active bool) (*model.User, error)
	SetAdmin(ctx context.Context, actorID, id string, isAdmin bool) (*model.User, error)
	DeleteUser(ctx context.Context, actorID, id string) error
}

// AnalyticsServiceInterface は症状分析の統計を提供する。
type AnalyticsServiceInterface interface {
	Stats(ctx context.Context, start, end time.Time) (*model.AnalysisStats, error)
}

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	users     AdminUserServiceInterface
	analytics AnalyticsServiceInterface
	now       func() time.Time
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(users AdminUserServiceInterface, analytics AnalyticsServiceInterface) *AdminHandler {
	return &AdminHandler{
		users:     users,
		analytics: analytics,
		now:       time.Now,
	}
}

type userListResponse struct {
	Users      []userResponse     `json:"users"`
	Pagination paginationResponse `json:"pagination"`
}

type statusRequest struct {
	IsActive *bool `json:"is_active"`
}

type adminRequest struct {
	IsAdmin *bool `json:"is_admin"`
}

type generalStatsResponse struct {
	TotalAnalyses   int     `json:"total_analyses"`
	AvgConfidence   float64 `json:"avg_confidence"`
	UniqueUsers     int     `json:"unique_users"`
	CommonDiagnosis string  `json:"common_diagnosis"`
}

type symptomFrequencyResponse struct {
	Symptom   string `json:"symptom"`
	Frequency int    `json:"frequency"`
}

type dateRangeResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type analyticsResponse struct {
	GeneralStats   generalStatsResponse       `json:"general_stats"`
	CommonSymptoms []symptomFrequencyResponse `json:"common_symptoms"`
	DateRange      dateRangeResponse          `json:"date_range"`
}

// ListUsers はユーザー一覧を返す。
// GET /api/admin/users?page=&limit=&search=
// page・limitの範囲補正はサービス側で行う。
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.users.ListUsers(r.Context(), page, limit, q.Get("search"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	users := make([]userResponse, 0, len(result.Users))
	for i := range result.Users {
		users = append(users, toUserResponse(&result.Users[i]))
	}

	writeJSON(w, http.StatusOK, userListResponse{
		Users: users,
		Pagination: paginationResponse{
			CurrentPage:  result.Page,
			TotalPages:   result.TotalPages,
			TotalItems:   result.Total,
			ItemsPerPage: result.Limit,
		},
	})
}

// GetUser はユーザー詳細を返す。
// GET /api/admin/users/{id}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// SetStatus はユーザーの有効状態を切り替える。
// PUT /api/admin/users/{id}/status
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("is_activeは必須です"))
		return
	}

	u, err := h.users.SetStatus(r.Context(), principal.UserID, chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// SetAdmin は管理者権限を付与・剥奪する。
// PUT /api/admin/users/{id}/admin
func (h *AdminHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req adminRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsAdmin == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("is_adminは必須です"))
		return
	}

	u, err := h.users.SetAdmin(r.Context(), principal.UserID, chi.URLParam(r, "id"), *req.IsAdmin)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// DeleteUser はユーザーを削除する。
// DELETE /api/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := h.users.DeleteUser(r.Context(), principal.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SymptomAnalytics は期間内の症状分析統計を返す。
// GET /api/admin/analytics/symptoms?start_date=&end_date=
func (h *AdminHandler) SymptomAnalytics(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.analyticsRange(r)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}

	stats, err := h.analytics.Stats(r.Context(), start, end)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	symptoms := make([]symptomFrequencyResponse, 0, len(stats.CommonSymptoms))
	for _, s := range stats.CommonSymptoms {
		symptoms = append(symptoms, symptomFrequencyResponse{Symptom: s.Symptom, Frequency: s.Frequency})
	}

	writeJSON(w, http.StatusOK, analyticsResponse{
		GeneralStats: generalStatsResponse{
			TotalAnalyses:   stats.TotalAnalyses,
			AvgConfidence:   stats.AvgConfidence,
			UniqueUsers:     stats.UniqueUsers,
			CommonDiagnosis: stats.CommonDiagnosis,
		},
		CommonSymptoms: symptoms,
		DateRange:      dateRangeResponse{Start: start, End: end},
	})
}

// analyticsRange はクエリから集計期間を決める。
// 未指定の場合は直近30日。日付のみのend_dateはその日の終わりまでを含む。
func (h *AdminHandler) analyticsRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	end := h.now().UTC()
	if raw := q.Get("end_date"); raw != "" {
		t, dateOnly, err := parseQueryTime(raw)
		if err != nil {
			return time.Time{}, time.Time{}, errInvalidDate("end_date")
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		end = t
	}

	start := end.Add(-defaultAnalyticsWindow)
	if raw := q.Get("start_date"); raw != "" {
		t, _, err := parseQueryTime(raw)
		if err != nil {
			return time.Time{}, time.Time{}, errInvalidDate("start_date")
		}
		start = t
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, errDateOrder
	}
	return start, end, nil
}

// parseQueryTime はRFC3339またはYYYY-MM-DD形式の日時を解釈する。
func parseQueryTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
