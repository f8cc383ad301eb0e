package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/memtest/pkg/models"
)

// Memory is an in-process Registry. Records are lost on restart.
type Memory struct {
	mu      sync.Mutex
	records map[string]*models.ParticipantRecord
	now     func() time.Time
}

// NewMemory creates an empty in-memory registry
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*models.ParticipantRecord),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, id string) (*models.ParticipantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

func (m *Memory) Create(_ context.Context, rec *models.ParticipantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.ID]; ok {
		return ErrAlreadyExists
	}
	now := m.now().UTC()
	stored := clone(rec)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.records[rec.ID] = stored
	rec.CreatedAt, rec.UpdatedAt = now, now
	return nil
}

func (m *Memory) Update(_ context.Context, id string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Condition != nil && rec.Condition != "" {
		return ErrConditionAssigned
	}

	if patch.Condition != nil {
		rec.Condition = *patch.Condition
	}
	if patch.ForcedSubmissionMemorization != nil {
		rec.ForcedSubmissionMemorization = *patch.ForcedSubmissionMemorization
	}
	if patch.ForcedSubmissionRecall != nil {
		rec.ForcedSubmissionRecall = *patch.ForcedSubmissionRecall
	}
	if patch.SubmissionTime != nil {
		t := patch.SubmissionTime.UTC()
		rec.SubmissionTime = &t
	}
	if patch.GuessedWords != nil {
		rec.GuessedWords = *patch.GuessedWords
	}
	rec.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) AddWord(_ context.Context, id, word string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.HasWord(word) {
		return false, nil
	}
	rec.MemorizedWords = append(rec.MemorizedWords, word)
	rec.UpdatedAt = m.now().UTC()
	return true, nil
}

func (m *Memory) List(_ context.Context) ([]models.ParticipantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.ParticipantRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *clone(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func clone(rec *models.ParticipantRecord) *models.ParticipantRecord {
	c := *rec
	c.MemorizedWords = append([]string(nil), rec.MemorizedWords...)
	if rec.SubmissionTime != nil {
		t := *rec.SubmissionTime
		c.SubmissionTime = &t
	}
	return &c
}
