package db

import (
	"context"

	"telloo/internal/types"
)

// UserRepository resolves user identities. It implements
// types.IdentityResolver.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by the given database
// connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

var _ types.IdentityResolver = (*UserRepository)(nil)

// ResolveEmails returns the email address for each of the given users, keyed
// by user ID. Users that do not exist or have no email address are absent
// from the map; the dispatcher skips them silently.
func (r *UserRepository) ResolveEmails(ctx context.Context, userIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, email
		 FROM users
		 WHERE id = ANY($1) AND email IS NOT NULL AND email <> ''`,
		userIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query user emails", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user email row", err)
		}
		result[id] = email
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user email rows", err)
	}

	return result, nil
}
