package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/elsaedy55/revoai/internal/database"
	"github.com/elsaedy55/revoai/internal/model"
)

const analysisColumns = `id, user_id, symptoms, analysis_result, diagnosis, confidence_score,
	recommendations, notes, created_at`

// PostgresAnalysisRepo はPostgreSQLを使用した症状分析リポジトリ。
type PostgresAnalysisRepo struct {
	db *sql.DB
}

// NewPostgresAnalysisRepo はPostgresAnalysisRepoを生成する。
func NewPostgresAnalysisRepo(db *sql.DB) *PostgresAnalysisRepo {
	return &PostgresAnalysisRepo{db: db}
}

func scanAnalysis(row rowScanner) (*model.AnalysisResult, error) {
	a := &model.AnalysisResult{}
	var raw []byte
	err := row.Scan(
		&a.ID, &a.UserID, pq.Array(&a.Symptoms), &raw, &a.Diagnosis, &a.ConfidenceScore,
		pq.Array(&a.Recommendations), &a.Notes, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &a.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode analysis_result: %w", err)
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	return a, nil
}

// Save は分析結果を単一トランザクションで保存する。
// 症状は入力順のまま保存し、最有力候補の疾患名と確率を非正規化して持つ。
func (r *PostgresAnalysisRepo) Save(ctx context.Context, userID string, symptoms []string, notes string, payload *model.DiagnosisPayload) (*model.AnalysisResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode diagnosis payload: %w", err)
	}

	var diagnosis string
	var confidence float64
	if top := payload.TopDiagnosis(); top != nil {
		diagnosis = top.Condition
		confidence = top.Probability
	}
	recommendations := payload.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}

	var result *model.AnalysisResult
	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		result, err = scanAnalysis(tx.QueryRowContext(ctx,
			`INSERT INTO symptom_analysis
				(user_id, symptoms, analysis_result, diagnosis, confidence_score, recommendations, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+analysisColumns,
			userID, pq.Array(symptoms), raw, diagnosis, confidence, pq.Array(recommendations), notes,
		))
		if err != nil {
			return fmt.Errorf("failed to insert analysis: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListByUser はユーザーの分析履歴を新しい順に1ページ分返す。
func (r *PostgresAnalysisRepo) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]model.AnalysisResult, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM symptom_analysis WHERE user_id = $1`,
		userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM symptom_analysis
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		userID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	analyses := []model.AnalysisResult{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate analyses: %w", err)
	}

	return analyses, total, nil
}

// FindByID は指定IDの分析を取得する。所有者以外はnilを返す。
func (r *PostgresAnalysisRepo) FindByID(ctx context.Context, userID, id string) (*model.AnalysisResult, error) {
	if !isValidID(id) {
		return nil, nil
	}
	a, err := scanAnalysis(r.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM symptom_analysis WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find analysis: %w", err)
	}
	return a, nil
}

// UpdateRecommendations は推奨事項を置き換える。
func (r *PostgresAnalysisRepo) UpdateRecommendations(ctx context.Context, userID, id string, recommendations []string) (*model.AnalysisResult, error) {
	if !isValidID(id) {
		return nil, nil
	}
	if recommendations == nil {
		recommendations = []string{}
	}
	a, err := scanAnalysis(r.db.QueryRowContext(ctx,
		`UPDATE symptom_analysis SET recommendations = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+analysisColumns,
		id, userID, pq.Array(recommendations),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update recommendations: %w", err)
	}
	return a, nil
}

// Delete は所有者の分析を削除する。
func (r *PostgresAnalysisRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	return deleteOwned(ctx, r.db, "symptom_analysis", userID, id)
}

// FindRecentPayload はsince以降の同一症状集合の分析から診断ペイロードを返す。
// 症状の比較はバイト順（COLLATE "C"）で重複排除・ソートした配列同士で行う。
func (r *PostgresAnalysisRepo) FindRecentPayload(ctx context.Context, userID string, symptomSet []string, since time.Time) (*model.DiagnosisPayload, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT analysis_result FROM symptom_analysis
		 WHERE user_id = $1
			AND created_at >= $2
			AND ARRAY(SELECT DISTINCT s COLLATE "C" FROM unnest(symptoms) AS s ORDER BY 1) = $3::text[]
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, since, pq.Array(symptomSet),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recent analysis: %w", err)
	}

	payload := &model.DiagnosisPayload{}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("failed to decode analysis_result: %w", err)
	}
	return payload, nil
}

// Stats は期間[start, end]の分析統計を返す。
func (r *PostgresAnalysisRepo) Stats(ctx context.Context, start, end time.Time) (*model.AnalysisStats, error) {
	stats := &model.AnalysisStats{Start: start, End: end, CommonSymptoms: []model.SymptomFrequency{}}

	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(avg(confidence_score), 0), count(DISTINCT user_id),
			COALESCE(mode() WITHIN GROUP (ORDER BY diagnosis) FILTER (WHERE diagnosis <> ''), '')
		 FROM symptom_analysis
		 WHERE created_at BETWEEN $1 AND $2`,
		start, end,
	).Scan(&stats.TotalAnalyses, &stats.AvgConfidence, &stats.UniqueUsers, &stats.CommonDiagnosis)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate analyses: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT s, count(*) AS frequency
		 FROM symptom_analysis, unnest(symptoms) AS s
		 WHERE created_at BETWEEN $1 AND $2
		 GROUP BY s
		 ORDER BY frequency DESC, s
		 LIMIT 10`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate symptoms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f model.SymptomFrequency
		if err := rows.Scan(&f.Symptom, &f.Frequency); err != nil {
			return nil, fmt.Errorf("failed to scan symptom frequency: %w", err)
		}
		stats.CommonSymptoms = append(stats.CommonSymptoms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate symptom frequency: %w", err)
	}

	return stats, nil
}

// DeleteOlderThan は保存期間を過ぎた分析を削除する。
func (r *PostgresAnalysisRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM symptom_analysis WHERE created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old analyses: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ AnalysisRepository = (*PostgresAnalysisRepo)(nil)
