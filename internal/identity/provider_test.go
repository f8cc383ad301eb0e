package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/memtest/pkg/models"
)

func TestSignInAnonymouslyReusesIdentity(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(NewMemoryStore(), zap.NewNop())

	var issued []models.Identity
	p.OnIdentityChange(func(id models.Identity) { issued = append(issued, id) })

	first, err := p.SignInAnonymously(ctx, "chat-1")
	require.NoError(t, err)
	_, err = uuid.Parse(first.Token)
	assert.NoError(t, err, "token should be a UUID")

	again, err := p.SignInAnonymously(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, first.Token, again.Token)

	other, err := p.SignInAnonymously(ctx, "chat-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, other.Token)

	require.Len(t, issued, 2)
	assert.Equal(t, "chat-1", issued[0].ContextKey)
	assert.Equal(t, "chat-2", issued[1].ContextKey)
}

type failingStore struct{}

func (failingStore) GetByContext(context.Context, string) (*models.Identity, error) {
	return nil, errors.New("unreachable")
}

func (failingStore) CreateIfAbsent(context.Context, models.Identity) (models.Identity, bool, error) {
	return models.Identity{}, false, errors.New("unreachable")
}

func TestSignInAnonymouslyFailure(t *testing.T) {
	p := NewProvider(failingStore{}, zap.NewNop())
	_, err := p.SignInAnonymously(context.Background(), "chat-1")
	assert.Error(t, err)
}
