package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/elsaedy55/revoai/internal/model"
)

// deleteOwned はuser_idでスコープしたDELETEを実行し、削除できたかを返す。
// tableは固定値のみ渡すこと。
func deleteOwned(ctx context.Context, db *sql.DB, table, userID, id string) (bool, error) {
	if !isValidID(id) {
		return false, nil
	}
	result, err := db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

// PostgresConditionRepo はPostgreSQLを使用した持病リポジトリ。
type PostgresConditionRepo struct {
	db *sql.DB
}

// NewPostgresConditionRepo はPostgresConditionRepoを生成する。
func NewPostgresConditionRepo(db *sql.DB) *PostgresConditionRepo {
	return &PostgresConditionRepo{db: db}
}

const conditionColumns = `id, user_id, condition_name, start_date, notes, created_at`

func scanCondition(row rowScanner) (*model.Condition, error) {
	c := &model.Condition{}
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.StartDate, &c.Notes, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// ListByUser はユーザーの持病を開始日の新しい順に返す。0件の場合は空スライスを返す。
func (r *PostgresConditionRepo) ListByUser(ctx context.Context, userID string) ([]model.Condition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+conditionColumns+` FROM user_conditions
		 WHERE user_id = $1
		 ORDER BY start_date DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	defer rows.Close()

	conditions := []model.Condition{}
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		conditions = append(conditions, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conditions: %w", err)
	}
	return conditions, nil
}

// Create は持病を作成し、採番されたIDと作成日時を設定する。
func (r *PostgresConditionRepo) Create(ctx context.Context, condition *model.Condition) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO user_conditions (user_id, condition_name, start_date, notes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		condition.UserID, condition.Name, condition.StartDate, condition.Notes,
	).Scan(&condition.ID, &condition.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert condition: %w", err)
	}
	return nil
}

// Update は所有者の持病を更新する。
func (r *PostgresConditionRepo) Update(ctx context.Context, condition *model.Condition) (*model.Condition, error) {
	if !isValidID(condition.ID) {
		return nil, nil
	}
	updated, err := scanCondition(r.db.QueryRowContext(ctx,
		`UPDATE user_conditions
		 SET condition_name = $3, start_date = $4, notes = $5
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+conditionColumns,
		condition.ID, condition.UserID, condition.Name, condition.StartDate, condition.Notes,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update condition: %w", err)
	}
	return updated, nil
}

// Delete は所有者の持病を削除する。
func (r *PostgresConditionRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	return deleteOwned(ctx, r.db, "user_conditions", userID, id)
}

// ---------------------------------------------------------------------------
// Medications
// ---------------------------------------------------------------------------

// PostgresMedicationRepo はPostgreSQLを使用した服薬リポジトリ。
type PostgresMedicationRepo struct {
	db *sql.DB
}

// NewPostgresMedicationRepo はPostgresMedicationRepoを生成する。
func NewPostgresMedicationRepo(db *sql.DB) *PostgresMedicationRepo {
	return &PostgresMedicationRepo{db: db}
}

const medicationColumns = `id, user_id, medication_name, dosage, frequency, start_date, created_at`

func scanMedication(row rowScanner) (*model.Medication, error) {
	m := &model.Medication{}
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency, &m.StartDate, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// ListByUser はユーザーの服薬を開始日の新しい順に返す。
func (r *PostgresMedicationRepo) ListByUser(ctx context.Context, userID string) ([]model.Medication, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+medicationColumns+` FROM user_medications
		 WHERE user_id = $1
		 ORDER BY start_date DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}
	defer rows.Close()

	medications := []model.Medication{}
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medication: %w", err)
		}
		medications = append(medications, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate medications: %w", err)
	}
	return medications, nil
}

// Create は服薬を作成する。
func (r *PostgresMedicationRepo) Create(ctx context.Context, medication *model.Medication) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO user_medications (user_id, medication_name, dosage, frequency, start_date)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		medication.UserID, medication.Name, medication.Dosage, medication.Frequency, medication.StartDate,
	).Scan(&medication.ID, &medication.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert medication: %w", err)
	}
	return nil
}

// Update は所有者の服薬を更新する。
func (r *PostgresMedicationRepo) Update(ctx context.Context, medication *model.Medication) (*model.Medication, error) {
	if !isValidID(medication.ID) {
		return nil, nil
	}
	updated, err := scanMedication(r.db.QueryRowContext(ctx,
		`UPDATE user_medications
		 SET medication_name = $3, dosage = $4, frequency = $5, start_date = $6
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+medicationColumns,
		medication.ID, medication.UserID, medication.Name, medication.Dosage, medication.Frequency, medication.StartDate,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update medication: %w", err)
	}
	return updated, nil
}

// Delete は所有者の服薬を削除する。
func (r *PostgresMedicationRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	return deleteOwned(ctx, r.db, "user_medications", userID, id)
}

// ---------------------------------------------------------------------------
// Surgeries
// ---------------------------------------------------------------------------

// PostgresSurgeryRepo はPostgreSQLを使用した手術歴リポジトリ。
type PostgresSurgeryRepo struct {
	db *sql.DB
}

// NewPostgresSurgeryRepo はPostgresSurgeryRepoを生成する。
func NewPostgresSurgeryRepo(db *sql.DB) *PostgresSurgeryRepo {
	return &PostgresSurgeryRepo{db: db}
}

const surgeryColumns = `id, user_id, surgery_name, surgery_date, notes, created_at`

func scanSurgery(row rowScanner) (*model.Surgery, error) {
	s := &model.Surgery{}
	if err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Date, &s.Notes, &s.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// ListByUser はユーザーの手術歴を手術日の新しい順に返す。
func (r *PostgresSurgeryRepo) ListByUser(ctx context.Context, userID string) ([]model.Surgery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+surgeryColumns+` FROM user_surgeries
		 WHERE user_id = $1
		 ORDER BY surgery_date DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list surgeries: %w", err)
	}
	defer rows.Close()

	surgeries := []model.Surgery{}
	for rows.Next() {
		s, err := scanSurgery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan surgery: %w", err)
		}
		surgeries = append(surgeries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate surgeries: %w", err)
	}
	return surgeries, nil
}

// Create は手術歴を作成する。
func (r *PostgresSurgeryRepo) Create(ctx context.Context, surgery *model.Surgery) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO user_surgeries (user_id, surgery_name, surgery_date, notes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		surgery.UserID, surgery.Name, surgery.Date, surgery.Notes,
	).Scan(&surgery.ID, &surgery.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert surgery: %w", err)
	}
	return nil
}

// Update は所有者の手術歴を更新する。
func (r *PostgresSurgeryRepo) Update(ctx context.Context, surgery *model.Surgery) (*model.Surgery, error) {
	if !isValidID(surgery.ID) {
		return nil, nil
	}
	updated, err := scanSurgery(r.db.QueryRowContext(ctx,
		`UPDATE user_surgeries
		 SET surgery_name = $3, surgery_date = $4, notes = $5
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+surgeryColumns,
		surgery.ID, surgery.UserID, surgery.Name, surgery.Date, surgery.Notes,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update surgery: %w", err)
	}
	return updated, nil
}

// Delete は所有者の手術歴を削除する。
func (r *PostgresSurgeryRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	return deleteOwned(ctx, r.db, "user_surgeries", userID, id)
}

// compile-time interface check
var (
	_ ConditionRepository  = (*PostgresConditionRepo)(nil)
	_ MedicationRepository = (*PostgresMedicationRepo)(nil)
	_ SurgeryRepository    = (*PostgresSurgeryRepo)(nil)
)
