package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/memtest/pkg/models"
)

// StatisticsRepository aggregates participant records per condition
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository creates a new repository instance
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// ByCondition returns one row per assigned condition. Averages only count
// participants who reached the end of recall.
func (r *StatisticsRepository) ByCondition(ctx context.Context) ([]models.ConditionStatistics, error) {
	query := `
		SELECT study_condition,
		       COUNT(*) AS participants,
		       COUNT(submission_time) AS completed,
		       COALESCE(AVG(CASE WHEN submission_time IS NOT NULL THEN guessed_words END), 0) AS avg_guessed_words,
		       SUM(CASE WHEN forced_submission_memorization THEN 1 ELSE 0 END) AS forced_memorization,
		       SUM(CASE WHEN forced_submission_recall THEN 1 ELSE 0 END) AS forced_recall
		FROM participants
		WHERE study_condition <> ''
		GROUP BY study_condition
		ORDER BY study_condition
	`
	var stats []models.ConditionStatistics
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get condition statistics: %w", err)
	}
	return stats, nil
}
