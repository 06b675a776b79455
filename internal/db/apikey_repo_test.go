package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"telloo/internal/types"
)

func TestAPIKeyRepository_GetByPrefix_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAPIKeyRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	revoked := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "key_1"
			*dest[1].(*string) = "abc123"
			*dest[2].(*string) = "$2a$12$hash"
			*dest[3].(*string) = "platform-backend"
			*dest[4].(**time.Time) = &revoked
			*dest[5].(*time.Time) = created
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"abc123"}).Return(row)

	key, err := repo.GetByPrefix(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "key_1", key.ID)
	assert.Equal(t, "platform-backend", key.Label)
	require.NotNil(t, key.RevokedAt)
	assert.Equal(t, revoked, *key.RevokedAt)
}

func TestAPIKeyRepository_GetByPrefix_Unknown(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAPIKeyRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"nope"}).Return(row)

	_, err := repo.GetByPrefix(ctx, "nope")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestAPIKeyRepository_TouchLastUsed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAPIKeyRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{"key_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.TouchLastUsed(ctx, "key_1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}
