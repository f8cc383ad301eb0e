// Package registrytest holds behavior tests shared by every registry.Registry implementation.
package registrytest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/memtest/internal/registry"
	"github.com/example/memtest/pkg/models"
)

// Run exercises a registry built by newRegistry. Each subtest gets a fresh registry.
func Run(t *testing.T, newRegistry func(t *testing.T) registry.Registry) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		r := newRegistry(t)
		_, err := r.Get(ctx, "i0000001")
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("create then get", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.Create(ctx, &models.ParticipantRecord{ID: "i1234567", SessionIdentity: "tok"}))

		got, err := r.Get(ctx, "i1234567")
		require.NoError(t, err)
		assert.Equal(t, "tok", got.SessionIdentity)
		assert.Empty(t, got.Condition)
		assert.Empty(t, got.MemorizedWords)
		assert.Nil(t, got.SubmissionTime)
		assert.False(t, got.ForcedSubmissionMemorization)
		assert.False(t, got.ForcedSubmissionRecall)
		assert.Zero(t, got.GuessedWords)
	})

	t.Run("create is create-if-absent", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.Create(ctx, &models.ParticipantRecord{ID: "i1234567", SessionIdentity: "first"}))

		err := r.Create(ctx, &models.ParticipantRecord{ID: "i1234567", SessionIdentity: "second"})
		assert.ErrorIs(t, err, registry.ErrAlreadyExists)

		got, err := r.Get(ctx, "i1234567")
		require.NoError(t, err)
		assert.Equal(t, "first", got.SessionIdentity)
	})

	t.Run("concurrent create has one winner", func(t *testing.T) {
		r := newRegistry(t)
		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = r.Create(ctx, &models.ParticipantRecord{ID: "i7654321", SessionIdentity: "tok"})
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.True(t, errors.Is(err, registry.ErrAlreadyExists), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("condition is assigned once", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.Create(ctx, &models.ParticipantRecord{ID: "i1234567"}))

		require.NoError(t, r.Update(ctx, "i1234567", registry.Patch{Condition: registry.ConditionPtr(models.WithMusic)}))
		err := r.Update(ctx, "i1234567", registry.Patch{Condition: registry.ConditionPtr(models.WithoutMusic)})
		assert.ErrorIs(t, err, registry.ErrConditionAssigned)

		got, err := r.Get(ctx, "i1234567")
		require.NoError(t, err)
		assert.Equal(t, models.WithMusic, got.Condition)
	})

	t.Run("update merges fields", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.Create(ctx, &models.ParticipantRecord{ID: "i1234567"}))

		submitted := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
		require.NoError(t, r.Update(ctx, "i1234567", registry.Patch{ForcedSubmissionMemorization: registry.Bool(true)}))
		require.NoError(t, r.Update(ctx, "i1234567", registry.Patch{
			SubmissionTime:         registry.Time(submitted),
			ForcedSubmissionRecall: registry.Bool(false),
			GuessedWords:           registry.Int(3),
		}))

		got, err := r.Get(ctx, "i1234567")
		require.NoError(t, err)
		assert.True(t, got.ForcedSubmissionMemorization)
		assert.False(t, got.ForcedSubmissionRecall)
		assert.Equal(t, 3, got.GuessedWords)
		require.NotNil(t, got.SubmissionTime)
		assert.True(t, submitted.Equal(*got.SubmissionTime))
	})

	t.Run("invalid patch is rejected", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.Create(ctx, &models.ParticipantRecord{ID: "i1234567"}))

		assert.Error(t, r.Update(ctx, "i1234567", registry.Patch{Condition: registry.ConditionPtr("jazz")}))
		assert.Error(t, r.Update(ctx, "i1234567", registry.Patch{GuessedWords: registry.Int(-1)}))

		got, err := r.Get(ctx, "i1234567")
		require.NoError(t, err)
		assert.Empty(t, got.Condition)
	})

	t.Run("update missing", func(t *testing.T) {
		r := newRegistry(t)
		err := r.Update(ctx, "i0000001", registry.Patch{GuessedWords: registry.Int(1)})
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("add word has set semantics", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.Create(ctx, &models.ParticipantRecord{ID: "i1234567"}))

		added, err := r.AddWord(ctx, "i1234567", "apple")
		require.NoError(t, err)
		assert.True(t, added)
		added, err = r.AddWord(ctx, "i1234567", "pear")
		require.NoError(t, err)
		assert.True(t, added)
		added, err = r.AddWord(ctx, "i1234567", "apple")
		require.NoError(t, err)
		assert.False(t, added)

		got, err := r.Get(ctx, "i1234567")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"apple", "pear"}, got.MemorizedWords)
	})

	t.Run("add word to missing participant", func(t *testing.T) {
		r := newRegistry(t)
		_, err := r.AddWord(ctx, "i0000001", "apple")
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		r := newRegistry(t)
		require.NoError(t, r.Create(ctx, &models.ParticipantRecord{ID: "i0000001"}))
		require.NoError(t, r.Create(ctx, &models.ParticipantRecord{ID: "i0000002"}))
		_, err := r.AddWord(ctx, "i0000002", "lamp")
		require.NoError(t, err)

		all, err := r.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		ids := []string{all[0].ID, all[1].ID}
		assert.ElementsMatch(t, []string{"i0000001", "i0000002"}, ids)
		for _, rec := range all {
			if rec.ID == "i0000002" {
				assert.Equal(t, []string{"lamp"}, rec.MemorizedWords)
			}
		}
	})
}
