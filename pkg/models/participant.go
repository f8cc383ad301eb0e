package models

import "time"

// Condition is the experimental arm assigned to a session
type Condition string

const (
	// WithMusic plays background music during memorization
	WithMusic Condition = "with_music"
	// WithoutMusic runs memorization in silence
	WithoutMusic Condition = "without_music"
)

// Valid reports whether c is one of the two known arms
func (c Condition) Valid() bool {
	return c == WithMusic || c == WithoutMusic
}

// HasMusic reports whether the arm includes background audio
func (c Condition) HasMusic() bool {
	return c == WithMusic
}

// ParticipantRecord is the per-subject result record, keyed by student ID
type ParticipantRecord struct {
	ID                           string     `json:"id" db:"id"` // "i" followed by 7 digits
	SessionIdentity              string     `json:"session_identity" db:"session_identity"`
	Condition                    Condition  `json:"condition" db:"study_condition"`
	MemorizedWords               []string   `json:"memorized_words" db:"-"` // Canonical lowercase, no duplicates
	SubmissionTime               *time.Time `json:"submission_time" db:"submission_time"`
	ForcedSubmissionMemorization bool       `json:"forced_submission_memorization" db:"forced_submission_memorization"`
	ForcedSubmissionRecall       bool       `json:"forced_submission_recall" db:"forced_submission_recall"`
	GuessedWords                 int        `json:"guessed_words" db:"guessed_words"`
	CreatedAt                    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt                    time.Time  `json:"updated_at" db:"updated_at"`
}

// HasWord reports whether word is already in the memorized set
func (p *ParticipantRecord) HasWord(word string) bool {
	for _, w := range p.MemorizedWords {
		if w == word {
			return true
		}
	}
	return false
}

// Finalized reports whether the recall phase has been closed for this record
func (p *ParticipantRecord) Finalized() bool {
	return p.SubmissionTime != nil
}
