package models

// ConditionStatistics summarizes the participants of one condition
type ConditionStatistics struct {
	Condition          Condition `json:"condition" db:"study_condition"`
	Participants       int       `json:"participants" db:"participants"`
	Completed          int       `json:"completed" db:"completed"`
	AvgGuessedWords    float64   `json:"avg_guessed_words" db:"avg_guessed_words"`
	ForcedMemorization int       `json:"forced_memorization" db:"forced_memorization"`
	ForcedRecall       int       `json:"forced_recall" db:"forced_recall"`
}
