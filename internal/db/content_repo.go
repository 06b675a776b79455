package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"telloo/internal/types"
)

// ContentRepository provides the read queries the dispatcher needs against
// board data: posts, boards, comments, board roles, and notification
// preferences. It implements types.ContentStore.
type ContentRepository struct {
	db DBTX
}

// NewContentRepository creates a ContentRepository backed by the given
// database connection (pool or transaction).
func NewContentRepository(db DBTX) *ContentRepository {
	return &ContentRepository{db: db}
}

var _ types.ContentStore = (*ContentRepository)(nil)

// GetPostWithBoard loads a post and hydrates its parent board in a single
// joined query. Returns ErrCodeNotFoundPost when the post does not exist.
func (r *ContentRepository) GetPostWithBoard(ctx context.Context, postID string) (*types.Post, error) {
	row := r.db.QueryRow(ctx,
		`SELECT p.id, p.board_id, COALESCE(p.user_id, ''), p.title,
		        COALESCE(p.description, ''), p.status, p.created_at,
		        b.id, b.title, b.slug, b.owner_id
		 FROM posts p
		 JOIN boards b ON b.id = p.board_id
		 WHERE p.id = $1`,
		postID,
	)

	var post types.Post
	err := row.Scan(
		&post.ID,
		&post.BoardID,
		&post.AuthorID,
		&post.Title,
		&post.Description,
		&post.Status,
		&post.CreatedAt,
		&post.Board.ID,
		&post.Board.Title,
		&post.Board.Slug,
		&post.Board.OwnerID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPost, "post not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load post", err)
	}
	return &post, nil
}

// ListCommenterIDs returns the distinct user IDs that have commented on the
// post, ordered by each user's first comment. Anonymous comments (NULL
// user_id) are excluded.
func (r *ContentRepository) ListCommenterIDs(ctx context.Context, postID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id
		 FROM comments
		 WHERE post_id = $1 AND user_id IS NOT NULL
		 GROUP BY user_id
		 ORDER BY MIN(created_at)`,
		postID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query commenters", err)
	}
	defer rows.Close()

	return scanStringColumn(rows, "commenter rows")
}

// ListBoardAdminIDs returns the user IDs holding an admin or super_admin role
// on the board.
func (r *ContentRepository) ListBoardAdminIDs(ctx context.Context, boardID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id
		 FROM board_members
		 WHERE board_id = $1 AND role IN ($2, $3)
		 ORDER BY user_id`,
		boardID,
		types.RoleAdmin,
		types.RoleSuperAdmin,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query board admins", err)
	}
	defer rows.Close()

	return scanStringColumn(rows, "board admin rows")
}

// GetPreferences returns the notification preference records for the given
// users, keyed by user ID. Users without a record are absent from the map.
func (r *ContentRepository) GetPreferences(ctx context.Context, userIDs []string) (map[string]*types.NotificationPreference, error) {
	result := make(map[string]*types.NotificationPreference, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT user_id, email_new_comment, email_status_change, email_new_vote
		 FROM notification_preferences
		 WHERE user_id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query notification preferences", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pref types.NotificationPreference
		if err := rows.Scan(
			&pref.UserID,
			&pref.EmailNewComment,
			&pref.EmailStatusChange,
			&pref.EmailNewVote,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan preference row", err)
		}
		result[pref.UserID] = &pref
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating preference rows", err)
	}

	return result, nil
}

// scanStringColumn drains a single-column string result set.
func scanStringColumn(rows pgx.Rows, what string) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan "+what, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating "+what, err)
	}
	return out, nil
}
