package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/memtest/internal/registry"
	"github.com/example/memtest/pkg/models"
)

const participantColumns = `id, session_identity, study_condition, submission_time,
	forced_submission_memorization, forced_submission_recall, guessed_words, created_at, updated_at`

// ParticipantRepository is the SQL implementation of registry.Registry
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository creates a new repository instance
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

var _ registry.Registry = (*ParticipantRepository)(nil)

// Get returns a participant with its memorized words
func (r *ParticipantRepository) Get(ctx context.Context, id string) (*models.ParticipantRecord, error) {
	var rec models.ParticipantRecord
	query := r.db.Rebind("SELECT " + participantColumns + " FROM participants WHERE id = ?")
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	words, err := r.words(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.MemorizedWords = words
	return &rec, nil
}

// Create inserts a participant unless the ID is already registered
func (r *ParticipantRepository) Create(ctx context.Context, rec *models.ParticipantRecord) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`
		INSERT INTO participants (
			id, session_identity, study_condition, forced_submission_memorization,
			forced_submission_recall, guessed_words, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)

	res, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.SessionIdentity,
		string(rec.Condition),
		rec.ForcedSubmissionMemorization,
		rec.ForcedSubmissionRecall,
		rec.GuessedWords,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return registry.ErrAlreadyExists
	}

	rec.CreatedAt, rec.UpdatedAt = now, now
	return nil
}

// Update merges the non-nil patch fields into the participant row
func (r *ParticipantRepository) Update(ctx context.Context, id string, patch registry.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.lockParticipant(ctx, tx, id); err != nil {
		return err
	}

	if patch.Condition != nil {
		res, err := tx.ExecContext(ctx,
			tx.Rebind("UPDATE participants SET study_condition = ? WHERE id = ? AND study_condition = ''"),
			string(*patch.Condition), id)
		if err != nil {
			return fmt.Errorf("failed to assign condition: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		} else if n == 0 {
			return registry.ErrConditionAssigned
		}
	}

	var sets []string
	var args []interface{}
	if patch.ForcedSubmissionMemorization != nil {
		sets = append(sets, "forced_submission_memorization = ?")
		args = append(args, *patch.ForcedSubmissionMemorization)
	}
	if patch.ForcedSubmissionRecall != nil {
		sets = append(sets, "forced_submission_recall = ?")
		args = append(args, *patch.ForcedSubmissionRecall)
	}
	if patch.SubmissionTime != nil {
		sets = append(sets, "submission_time = ?")
		args = append(args, patch.SubmissionTime.UTC())
	}
	if patch.GuessedWords != nil {
		sets = append(sets, "guessed_words = ?")
		args = append(args, *patch.GuessedWords)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := tx.Rebind("UPDATE participants SET " + strings.Join(sets, ", ") + " WHERE id = ?")
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit participant update: %w", err)
	}
	return nil
}

// AddWord inserts word into the participant's memorized set
func (r *ParticipantRepository) AddWord(ctx context.Context, id, word string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.lockParticipant(ctx, tx, id); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO memorized_words (participant_id, word, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT (participant_id, word) DO NOTHING
	`), id, word, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to add memorized word: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if n > 0 {
		_, err = tx.ExecContext(ctx, tx.Rebind("UPDATE participants SET updated_at = ? WHERE id = ?"), time.Now().UTC(), id)
		if err != nil {
			return false, fmt.Errorf("failed to touch participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit memorized word: %w", err)
	}
	return n > 0, nil
}

// List returns all participants with their words, oldest first
func (r *ParticipantRepository) List(ctx context.Context) ([]models.ParticipantRecord, error) {
	var records []models.ParticipantRecord
	err := r.db.SelectContext(ctx, &records, "SELECT "+participantColumns+" FROM participants ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	var rows []struct {
		ParticipantID string `db:"participant_id"`
		Word          string `db:"word"`
	}
	err = r.db.SelectContext(ctx, &rows, "SELECT participant_id, word FROM memorized_words ORDER BY added_at, word")
	if err != nil {
		return nil, fmt.Errorf("failed to list memorized words: %w", err)
	}

	byID := make(map[string][]string)
	for _, row := range rows {
		byID[row.ParticipantID] = append(byID[row.ParticipantID], row.Word)
	}
	for i := range records {
		records[i].MemorizedWords = byID[records[i].ID]
	}
	return records, nil
}

// lockParticipant verifies the row exists inside tx. On postgres the row is locked for the tx.
func (r *ParticipantRepository) lockParticipant(ctx context.Context, tx *sqlx.Tx, id string) error {
	query := "SELECT id FROM participants WHERE id = ?"
	if r.db.DriverName() == "postgres" {
		query += " FOR UPDATE"
	}

	var found string
	if err := tx.GetContext(ctx, &found, tx.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.ErrNotFound
		}
		return fmt.Errorf("failed to get participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepository) words(ctx context.Context, id string) ([]string, error) {
	var words []string
	err := r.db.SelectContext(ctx, &words,
		r.db.Rebind("SELECT word FROM memorized_words WHERE participant_id = ? ORDER BY added_at, word"), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get memorized words: %w", err)
	}
	return words, nil
}
