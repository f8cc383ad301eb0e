// Package registry defines the participant registry used by experiment sessions:
// read one record, create one record atomically, merge partial updates and
// append to the memorized word set.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/memtest/pkg/models"
)

var (
	// ErrNotFound is returned when no record exists for a participant ID
	ErrNotFound = errors.New("participant not found")
	// ErrAlreadyExists is returned by Create when the participant ID is taken
	ErrAlreadyExists = errors.New("participant already exists")
	// ErrConditionAssigned is returned when a condition is written twice
	ErrConditionAssigned = errors.New("condition already assigned")
)

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Condition                    *models.Condition
	ForcedSubmissionMemorization *bool
	ForcedSubmissionRecall       *bool
	SubmissionTime               *time.Time
	GuessedWords                 *int
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.Condition == nil &&
		p.ForcedSubmissionMemorization == nil &&
		p.ForcedSubmissionRecall == nil &&
		p.SubmissionTime == nil &&
		p.GuessedWords == nil
}

// Validate rejects patches that no store should apply
func (p Patch) Validate() error {
	if p.Condition != nil && !p.Condition.Valid() {
		return fmt.Errorf("invalid condition %q", *p.Condition)
	}
	if p.GuessedWords != nil && *p.GuessedWords < 0 {
		return fmt.Errorf("invalid guessed words count %d", *p.GuessedWords)
	}
	return nil
}

// Registry is the participant store
type Registry interface {
	// Get returns the record for id or ErrNotFound
	Get(ctx context.Context, id string) (*models.ParticipantRecord, error)
	// Create inserts rec if no record with the same ID exists, otherwise ErrAlreadyExists.
	// The check and the insert are one atomic operation.
	Create(ctx context.Context, rec *models.ParticipantRecord) error
	// Update merges patch into the record. A condition can only be set once.
	Update(ctx context.Context, id string, patch Patch) error
	// AddWord adds word to the memorized set; it reports false if it was already present
	AddWord(ctx context.Context, id, word string) (bool, error)
	// List returns every record, oldest first
	List(ctx context.Context) ([]models.ParticipantRecord, error)
}

// Bool returns a pointer to b, for building patches
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n
func Int(n int) *int { return &n }

// Time returns a pointer to t
func Time(t time.Time) *time.Time { return &t }

// ConditionPtr returns a pointer to c
func ConditionPtr(c models.Condition) *models.Condition { return &c }
