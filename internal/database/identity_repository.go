package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/memtest/pkg/models"
)

// IdentityRepository stores anonymous session identities per front-end context
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new repository instance
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// GetByContext returns the identity bound to contextKey, or nil if there is none
func (r *IdentityRepository) GetByContext(ctx context.Context, contextKey string) (*models.Identity, error) {
	var identity models.Identity
	query := r.db.Rebind("SELECT token, context_key, created_at FROM identities WHERE context_key = ?")
	err := r.db.GetContext(ctx, &identity, query, contextKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

// CreateIfAbsent stores identity unless the context already has one, and returns
// whichever identity is bound to the context afterwards
func (r *IdentityRepository) CreateIfAbsent(ctx context.Context, identity models.Identity) (models.Identity, bool, error) {
	query := r.db.Rebind(`
		INSERT INTO identities (token, context_key, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (context_key) DO NOTHING
	`)
	res, err := r.db.ExecContext(ctx, query, identity.Token, identity.ContextKey, identity.CreatedAt.UTC())
	if err != nil {
		return models.Identity{}, false, fmt.Errorf("failed to create identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Identity{}, false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	stored, err := r.GetByContext(ctx, identity.ContextKey)
	if err != nil {
		return models.Identity{}, false, err
	}
	if stored == nil {
		return models.Identity{}, false, fmt.Errorf("identity for %s vanished after insert", identity.ContextKey)
	}
	return *stored, n > 0, nil
}
