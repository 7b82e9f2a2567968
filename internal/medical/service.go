// Package medical は利用者の病歴（持病・服薬・手術歴）の管理と、
// 症状分析に渡す病歴コンテキストの組み立てを提供する。
package medical

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/elsaedy55/revoai/internal/model"
	"github.com/elsaedy55/revoai/internal/repository"
	"github.com/elsaedy55/revoai/internal/security"
)

// DateLayout はAPIで受け付ける日付の形式。
const DateLayout = "2006-01-02"

const (
	minNameLength = 2
	maxNameLength = 100
)

// UserFinder はユーザー取得のインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// ConditionInput は持病の登録・更新内容。
type ConditionInput struct {
	Name      string
	StartDate string
	Notes     string
}

// MedicationInput は服薬の登録・更新内容。
type MedicationInput struct {
	Name      string
	Dosage    string
	Frequency string
	StartDate string
}

// SurgeryInput は手術歴の登録・更新内容。
type SurgeryInput struct {
	Name        string
	SurgeryDate string
	Notes       string
}

// Records は利用者の病歴一式。
type Records struct {
	Conditions  []model.Condition
	Medications []model.Medication
	Surgeries   []model.Surgery
}

// Service は病歴管理のサービス層。
type Service struct {
	users       UserFinder
	conditions  repository.ConditionRepository
	medications repository.MedicationRepository
	surgeries   repository.SurgeryRepository
	sanitizer   security.TextSanitizer
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users UserFinder,
	conditions repository.ConditionRepository,
	medications repository.MedicationRepository,
	surgeries repository.SurgeryRepository,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		users:       users,
		conditions:  conditions,
		medications: medications,
		surgeries:   surgeries,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// Records は利用者の病歴一式を返す。各コレクションは0件でも空スライス。
func (s *Service) Records(ctx context.Context, userID string) (*Records, error) {
	conditions, err := s.conditions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conditions: %w", err)
	}
	medications, err := s.medications.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load medications: %w", err)
	}
	surgeries, err := s.surgeries.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load surgeries: %w", err)
	}

	return &Records{
		Conditions:  nonNil(conditions),
		Medications: nonNil(medications),
		Surgeries:   nonNil(surgeries),
	}, nil
}

// BuildContext は症状分析用の病歴コンテキストを組み立てる。
// 生年月日が未登録、またはユーザーが見つからない場合は年齢を不明とする。
// ストレージの失敗はそのまま呼び出し元に返す。
func (s *Service) BuildContext(ctx context.Context, userID string) (*model.MedicalContext, error) {
	records, err := s.Records(ctx, userID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	mc := &model.MedicalContext{
		Conditions:  records.Conditions,
		Medications: records.Medications,
		Surgeries:   records.Surgeries,
	}
	if user != nil && user.BirthDate != nil {
		age := AgeAt(*user.BirthDate, s.now())
		mc.Age = &age
	}
	return mc, nil
}

// AgeAt は基準日時点の満年齢を返す。誕生日前であれば1歳引く。
func AgeAt(birthDate, now time.Time) int {
	age := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() ||
		(now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		age--
	}
	return age
}

// AddCondition は持病を登録する。
func (s *Service) AddCondition(ctx context.Context, userID string, in ConditionInput) (*model.Condition, error) {
	c, err := s.conditionFromInput(userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.conditions.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create condition: %w", err)
	}
	return c, nil
}

// UpdateCondition は所有者の持病を更新する。他ユーザーのIDは見つからない扱い。
func (s *Service) UpdateCondition(ctx context.Context, userID, id string, in ConditionInput) (*model.Condition, error) {
	c, err := s.conditionFromInput(userID, in)
	if err != nil {
		return nil, err
	}
	c.ID = id
	updated, err := s.conditions.Update(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to update condition: %w", err)
	}
	if updated == nil {
		return nil, model.NewRecordNotFoundError(model.ErrCodeConditionNotFound, id)
	}
	return updated, nil
}

// DeleteCondition は所有者の持病を削除する。
func (s *Service) DeleteCondition(ctx context.Context, userID, id string) error {
	ok, err := s.conditions.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete condition: %w", err)
	}
	if !ok {
		return model.NewRecordNotFoundError(model.ErrCodeConditionNotFound, id)
	}
	return nil
}

// AddMedication は服薬を登録する。
func (s *Service) AddMedication(ctx context.Context, userID string, in MedicationInput) (*model.Medication, error) {
	m, err := s.medicationFromInput(userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.medications.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create medication: %w", err)
	}
	return m, nil
}

// UpdateMedication は所有者の服薬を更新する。
func (s *Service) UpdateMedication(ctx context.Context, userID, id string, in MedicationInput) (*model.Medication, error) {
	m, err := s.medicationFromInput(userID, in)
	if err != nil {
		return nil, err
	}
	m.ID = id
	updated, err := s.medications.Update(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to update medication: %w", err)
	}
	if updated == nil {
		return nil, model.NewRecordNotFoundError(model.ErrCodeMedicationNotFound, id)
	}
	return updated, nil
}

// DeleteMedication は所有者の服薬を削除する。
func (s *Service) DeleteMedication(ctx context.Context, userID, id string) error {
	ok, err := s.medications.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete medication: %w", err)
	}
	if !ok {
		return model.NewRecordNotFoundError(model.ErrCodeMedicationNotFound, id)
	}
	return nil
}

// AddSurgery は手術歴を登録する。
func (s *Service) AddSurgery(ctx context.Context, userID string, in SurgeryInput) (*model.Surgery, error) {
	sg, err := s.surgeryFromInput(userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.surgeries.Create(ctx, sg); err != nil {
		return nil, fmt.Errorf("failed to create surgery: %w", err)
	}
	return sg, nil
}

// UpdateSurgery は所有者の手術歴を更新する。
func (s *Service) UpdateSurgery(ctx context.Context, userID, id string, in SurgeryInput) (*model.Surgery, error) {
	sg, err := s.surgeryFromInput(userID, in)
	if err != nil {
		return nil, err
	}
	sg.ID = id
	updated, err := s.surgeries.Update(ctx, sg)
	if err != nil {
		return nil, fmt.Errorf("failed to update surgery: %w", err)
	}
	if updated == nil {
		return nil, model.NewRecordNotFoundError(model.ErrCodeSurgeryNotFound, id)
	}
	return updated, nil
}

// DeleteSurgery は所有者の手術歴を削除する。
func (s *Service) DeleteSurgery(ctx context.Context, userID, id string) error {
	ok, err := s.surgeries.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete surgery: %w", err)
	}
	if !ok {
		return model.NewRecordNotFoundError(model.ErrCodeSurgeryNotFound, id)
	}
	return nil
}

func (s *Service) conditionFromInput(userID string, in ConditionInput) (*model.Condition, error) {
	name, err := s.validName(in.Name, "condition_name")
	if err != nil {
		return nil, err
	}
	start, err := parseDate(in.StartDate, "start_date")
	if err != nil {
		return nil, err
	}
	return &model.Condition{
		UserID:    userID,
		Name:      name,
		StartDate: start,
		Notes:     s.sanitizer.Sanitize(in.Notes),
	}, nil
}

func (s *Service) medicationFromInput(userID string, in MedicationInput) (*model.Medication, error) {
	name, err := s.validName(in.Name, "medication_name")
	if err != nil {
		return nil, err
	}
	start, err := parseDate(in.StartDate, "start_date")
	if err != nil {
		return nil, err
	}
	return &model.Medication{
		UserID:    userID,
		Name:      name,
		Dosage:    s.sanitizer.Sanitize(in.Dosage),
		Frequency: s.sanitizer.Sanitize(in.Frequency),
		StartDate: start,
	}, nil
}

func (s *Service) surgeryFromInput(userID string, in SurgeryInput) (*model.Surgery, error) {
	name, err := s.validName(in.Name, "surgery_name")
	if err != nil {
		return nil, err
	}
	date, err := parseDate(in.SurgeryDate, "surgery_date")
	if err != nil {
		return nil, err
	}
	return &model.Surgery{
		UserID: userID,
		Name:   name,
		Date:   date,
		Notes:  s.sanitizer.Sanitize(in.Notes),
	}, nil
}

// validName は名称をサニタイズし、文字数（ルーン数）を検証する。
func (s *Service) validName(raw, field string) (string, error) {
	name := s.sanitizer.Sanitize(raw)
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return "", model.NewValidationError(fmt.Sprintf("%sは%d文字以上%d文字以内で入力してください", field, minNameLength, maxNameLength))
	}
	return name, nil
}

func parseDate(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, model.NewValidationError(field + "は必須です")
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, model.NewValidationError(field + "はYYYY-MM-DD形式で入力してください")
	}
	return t, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
