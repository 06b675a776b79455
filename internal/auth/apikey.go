// Package auth verifies API key credentials for the dispatch API.
//
// Keys use the format "tl_<prefix>_<secret>". The prefix is stored in
// plaintext for lookup; the secret is stored bcrypt-hashed and compared in
// constant time. Callers without a key are handled upstream by the chassis.
package auth

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"telloo/internal/types"
)

const tokenPrefix = "tl_"

// KeyStore is the persistence surface the authenticator needs.
type KeyStore interface {
	GetByPrefix(ctx context.Context, prefix string) (*types.APIKey, error)
	TouchLastUsed(ctx context.Context, id string) error
}

// APIKeyAuthenticator validates bearer tokens against stored API keys.
type APIKeyAuthenticator struct {
	keys   KeyStore
	logger types.Logger
}

// NewAPIKeyAuthenticator creates an authenticator backed by the given store.
func NewAPIKeyAuthenticator(keys KeyStore, logger types.Logger) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		keys:   keys,
		logger: logger,
	}
}

// Authenticate resolves a bearer token to its Caller. It returns
// ErrCodeAuthTokenInvalid for malformed or unknown tokens and
// ErrCodeAuthTokenRevoked for keys that have been revoked.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (types.Caller, error) {
	prefix, secret, err := splitToken(token)
	if err != nil {
		return types.Caller{}, err
	}

	key, err := a.keys.GetByPrefix(ctx, prefix)
	if err != nil {
		return types.Caller{}, err
	}

	if key.RevokedAt != nil {
		return types.Caller{}, types.NewAppError(
			types.ErrCodeAuthTokenRevoked,
			"API key has been revoked",
			nil,
		)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return types.Caller{}, types.NewAppError(
			types.ErrCodeAuthTokenInvalid,
			"invalid API key",
			nil,
		)
	}

	// Last-used tracking is advisory; a write failure must not fail auth.
	if err := a.keys.TouchLastUsed(ctx, key.ID); err != nil {
		a.logger.Warn("failed to update API key last_used_at",
			"key_id", key.ID,
			"error", err.Error(),
		)
	}

	return types.Caller{
		ID:    key.ID,
		Label: key.Label,
	}, nil
}

// splitToken parses "tl_<prefix>_<secret>" into its prefix and secret parts.
// The secret may itself contain underscores; only the first separator after
// the prefix segment is significant.
func splitToken(token string) (prefix, secret string, err error) {
	invalid := types.NewAppError(
		types.ErrCodeAuthTokenInvalid,
		"API key format is invalid",
		nil,
	)

	rest, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return "", "", invalid
	}

	prefix, secret, found := strings.Cut(rest, "_")
	if !found || prefix == "" || secret == "" {
		return "", "", invalid
	}

	return prefix, secret, nil
}
