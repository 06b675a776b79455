package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"telloo/internal/types"
)

// APIKeyRepository provides data access for the api_keys table. Keys are
// stored bcrypt-hashed; plaintext secrets never touch the database.
type APIKeyRepository struct {
	db DBTX
}

// NewAPIKeyRepository creates an APIKeyRepository backed by the given
// database connection (pool or transaction).
func NewAPIKeyRepository(db DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, prefix, secret_hash, label, revoked_at, created_at`

// GetByPrefix retrieves an API key by its public prefix. The prefix is
// unique, so at most one row matches. Returns ErrCodeAuthTokenInvalid when
// no key carries the prefix; revocation is the caller's check so that
// revoked keys can be distinguished from unknown ones.
func (r *APIKeyRepository) GetByPrefix(ctx context.Context, prefix string) (*types.APIKey, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE prefix = $1`,
		prefix,
	)

	var key types.APIKey
	err := row.Scan(
		&key.ID,
		&key.Prefix,
		&key.SecretHash,
		&key.Label,
		&key.RevokedAt,
		&key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unknown API key", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve API key", err)
	}
	return &key, nil
}

// TouchLastUsed updates the last_used_at timestamp for an API key.
// Fire-and-forget; the caller logs failures instead of propagating them.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update API key last_used_at", err)
	}
	return nil
}
