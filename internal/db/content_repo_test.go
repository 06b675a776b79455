package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"telloo/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows ---

// scanMockRows implements pgx.Rows over a list of per-row scan functions.
type scanMockRows struct {
	rows    []func(dest ...any) error
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newScanMockRows(rows ...func(dest ...any) error) *scanMockRows {
	return &scanMockRows{rows: rows, idx: -1}
}

func (r *scanMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.rows)
}

func (r *scanMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if r.idx >= 0 && r.idx < len(r.rows) {
		return r.rows[r.idx](dest...)
	}
	return errors.New("no current row")
}

func (r *scanMockRows) Close()                                       { r.closed = true }
func (r *scanMockRows) Err() error                                   { return r.errVal }
func (r *scanMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *scanMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *scanMockRows) RawValues() [][]byte                          { return nil }
func (r *scanMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *scanMockRows) Conn() *pgx.Conn                              { return nil }

func stringRow(s string) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = s
		return nil
	}
}

// ============================================================
// GetPostWithBoard Tests
// ============================================================

func TestContentRepository_GetPostWithBoard_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewContentRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "post_1"
			*dest[1].(*string) = "board_1"
			*dest[2].(*string) = "user_author"
			*dest[3].(*string) = "Dark mode please"
			*dest[4].(*string) = "Would love a dark theme"
			*dest[5].(*string) = "open"
			*dest[6].(*time.Time) = created
			*dest[7].(*string) = "board_1"
			*dest[8].(*string) = "Feature Requests"
			*dest[9].(*string) = "acme"
			*dest[10].(*string) = "user_owner"
			return nil
		},
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"post_1"}).Return(row)

	post, err := repo.GetPostWithBoard(ctx, "post_1")
	require.NoError(t, err)
	assert.Equal(t, "post_1", post.ID)
	assert.Equal(t, "user_author", post.AuthorID)
	assert.Equal(t, "Dark mode please", post.Title)
	assert.Equal(t, "acme", post.Board.Slug)
	assert.Equal(t, "user_owner", post.Board.OwnerID)

	db.AssertExpectations(t)
}

func TestContentRepository_GetPostWithBoard_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewContentRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"post_missing"}).Return(row)

	_, err := repo.GetPostWithBoard(ctx, "post_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundPost, appErr.Code)
}

func TestContentRepository_GetPostWithBoard_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewContentRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: errors.New("connection reset")}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"post_1"}).Return(row)

	_, err := repo.GetPostWithBoard(ctx, "post_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

// ============================================================
// ListCommenterIDs Tests
// ============================================================

func TestContentRepository_ListCommenterIDs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewContentRepository(db)
	ctx := context.Background()

	rows := newScanMockRows(
		stringRow("user_a"),
		stringRow("user_b"),
		stringRow("user_c"),
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{"post_1"}).Return(rows, nil)

	ids, err := repo.ListCommenterIDs(ctx, "post_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_a", "user_b", "user_c"}, ids)
	assert.True(t, rows.closed)
}

func TestContentRepository_ListCommenterIDs_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewContentRepository(db)
	ctx := context.Background()

	rows := newScanMockRows()
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{"post_quiet"}).Return(rows, nil)

	ids, err := repo.ListCommenterIDs(ctx, "post_quiet")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// ============================================================
// ListBoardAdminIDs Tests
// ============================================================

func TestContentRepository_ListBoardAdminIDs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewContentRepository(db)
	ctx := context.Background()

	rows := newScanMockRows(stringRow("user_admin"), stringRow("user_super"))
	db.On("Query", ctx, mock.AnythingOfType("string"),
		[]any{"board_1", types.RoleAdmin, types.RoleSuperAdmin}).Return(rows, nil)

	ids, err := repo.ListBoardAdminIDs(ctx, "board_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_admin", "user_super"}, ids)
}

// ============================================================
// GetPreferences Tests
// ============================================================

func TestContentRepository_GetPreferences(t *testing.T) {
	db := new(mockDBTX)
	repo := NewContentRepository(db)
	ctx := context.Background()

	optedOut := false

	rows := newScanMockRows(
		func(dest ...any) error {
			*dest[0].(*string) = "user_a"
			*dest[1].(**bool) = &optedOut // email_new_comment explicitly off
			*dest[2].(**bool) = nil
			*dest[3].(**bool) = nil
			return nil
		},
	)
	db.On("Query", ctx, mock.AnythingOfType("string"),
		[]any{[]string{"user_a", "user_b"}}).Return(rows, nil)

	prefs, err := repo.GetPreferences(ctx, []string{"user_a", "user_b"})
	require.NoError(t, err)

	// user_b has no record and must be absent from the map.
	require.Len(t, prefs, 1)
	require.Contains(t, prefs, "user_a")
	assert.False(t, prefs["user_a"].Allows(types.EventNewComment))
	assert.True(t, prefs["user_a"].Allows(types.EventStatusChange))
}

func TestContentRepository_GetPreferences_EmptyInput(t *testing.T) {
	db := new(mockDBTX)
	repo := NewContentRepository(db)

	prefs, err := repo.GetPreferences(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, prefs)
	db.AssertNotCalled(t, "Query")
}
