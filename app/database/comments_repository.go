package database

import (
	"database/sql"
	"fmt"
	"time"
)

// CommentsRepository handles database operations for the comments mirror
type CommentsRepository struct {
	db *DB
}

func NewCommentsRepository(db *DB) *CommentsRepository {
	return &CommentsRepository{db: db}
}

// UpsertDiscussion inserts or refreshes a discussion keyed by post_id.
// A retitled discussion may move to a different post, so any stale row
// still holding this discussion_id is removed first; discussion_id is
// UNIQUE and would otherwise block the upsert forever.
func (r *CommentsRepository) UpsertDiscussion(d CommentDiscussion) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin discussion transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM comment_discussions
		WHERE discussion_id = ? AND post_id != ?
	`, d.DiscussionID, d.PostID); err != nil {
		return fmt.Errorf("failed to clear stale discussion mapping %s: %w", d.DiscussionID, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO comment_discussions (
			post_id, discussion_id, number, title, url, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (post_id) DO UPDATE SET
			discussion_id = excluded.discussion_id,
			number = excluded.number,
			title = excluded.title,
			url = excluded.url,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, d.PostID, d.DiscussionID, d.Number, d.Title, d.URL, d.CreatedAt.UTC(), d.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert discussion %s: %w", d.PostID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit discussion transaction: %w", err)
	}

	return nil
}

// ReplaceComments swaps the full comment set of one discussion inside a
// transaction so readers never see a half-synced thread.
func (r *CommentsRepository) ReplaceComments(discussionID string, comments []CommentItem) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin comments transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM comment_items WHERE discussion_id = ?`, discussionID); err != nil {
		return fmt.Errorf("failed to clear comments for %s: %w", discussionID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO comment_items (
			discussion_id, comment_id, parent_id, comment_url,
			author_login, author_url, author_avatar_url, body_html,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare comment insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range comments {
		_, err := stmt.Exec(discussionID, c.CommentID, c.ParentID, c.CommentURL,
			c.AuthorLogin, c.AuthorURL, c.AuthorAvatarURL, c.BodyHTML,
			c.CreatedAt.UTC(), c.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert comment %s: %w", c.CommentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit comments transaction: %w", err)
	}

	return nil
}

// Overview counts the mirrored discussions and comments. The latest
// update time goes through strftime because MAX() strips the column
// type the driver needs to hand back a time.Time.
func (r *CommentsRepository) Overview() (CommentsOverview, error) {
	var overview CommentsOverview
	var lastEpoch sql.NullInt64
	err := r.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM comment_discussions),
			(SELECT COUNT(*) FROM comment_items),
			(SELECT strftime('%s', MAX(updated_at)) FROM comment_discussions)
	`).Scan(&overview.Discussions, &overview.Comments, &lastEpoch)
	if err != nil {
		return CommentsOverview{}, fmt.Errorf("failed to load comments overview: %w", err)
	}
	if lastEpoch.Valid {
		overview.LastUpdatedAt = time.Unix(lastEpoch.Int64, 0).UTC()
	}

	return overview, nil
}

// GetDiscussionByPostID returns the discussion for a post, or nil.
func (r *CommentsRepository) GetDiscussionByPostID(postID string) (*CommentDiscussion, error) {
	var d CommentDiscussion
	err := r.db.QueryRow(`
		SELECT post_id, discussion_id, number, title, url, created_at, updated_at
		FROM comment_discussions
		WHERE post_id = ?
	`, postID).Scan(&d.PostID, &d.DiscussionID, &d.Number, &d.Title, &d.URL, &d.CreatedAt, &d.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discussion by post id: %w", err)
	}

	return &d, nil
}

// ListComments returns a discussion's comments oldest first.
func (r *CommentsRepository) ListComments(discussionID string) ([]CommentItem, error) {
	rows, err := r.db.Query(`
		SELECT discussion_id, comment_id, parent_id, comment_url,
		       COALESCE(author_login, ''), COALESCE(author_url, ''),
		       COALESCE(author_avatar_url, ''), body_html, created_at, updated_at
		FROM comment_items
		WHERE discussion_id = ?
		ORDER BY created_at ASC
	`, discussionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []CommentItem
	for rows.Next() {
		var c CommentItem
		if err := rows.Scan(&c.DiscussionID, &c.CommentID, &c.ParentID, &c.CommentURL,
			&c.AuthorLogin, &c.AuthorURL, &c.AuthorAvatarURL, &c.BodyHTML,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comment rows: %w", err)
	}

	return comments, nil
}
