// Package identity issues anonymous session identities. A front-end context
// (a Telegram chat, a browser) keeps the identity it was given the first time.
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/memtest/pkg/models"
)

// Store persists identities per context
type Store interface {
	GetByContext(ctx context.Context, contextKey string) (*models.Identity, error)
	CreateIfAbsent(ctx context.Context, identity models.Identity) (models.Identity, bool, error)
}

// Provider hands out anonymous identities
type Provider struct {
	store    Store
	logger   *zap.Logger
	now      func() time.Time
	newToken func() string

	mu        sync.Mutex
	listeners []func(models.Identity)
}

// NewProvider creates a provider backed by store
func NewProvider(store Store, logger *zap.Logger) *Provider {
	return &Provider{
		store:    store,
		logger:   logger.Named("identity"),
		now:      time.Now,
		newToken: func() string { return uuid.New().String() },
	}
}

// SignInAnonymously returns the identity bound to contextKey, minting one if needed
func (p *Provider) SignInAnonymously(ctx context.Context, contextKey string) (models.Identity, error) {
	existing, err := p.store.GetByContext(ctx, contextKey)
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to look up identity: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	identity, created, err := p.store.CreateIfAbsent(ctx, models.Identity{
		Token:      p.newToken(),
		ContextKey: contextKey,
		CreatedAt:  p.now().UTC(),
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to create identity: %w", err)
	}

	if created {
		p.logger.Info("issued anonymous identity", zap.String("context", contextKey))
		p.notify(identity)
	}
	return identity, nil
}

// OnIdentityChange registers fn to be called whenever a new identity is issued
func (p *Provider) OnIdentityChange(fn func(models.Identity)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Provider) notify(identity models.Identity) {
	p.mu.Lock()
	listeners := append([]func(models.Identity){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(identity)
	}
}
