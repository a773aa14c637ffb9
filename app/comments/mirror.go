package comments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/itswincer/inkstone/app/database"
)

// Repository is the persistence surface the mirror needs.
type Repository interface {
	UpsertDiscussion(d database.CommentDiscussion) error
	ReplaceComments(discussionID string, comments []database.CommentItem) error
}

// Mirror copies GitHub discussions into the local comments store so the
// read path never touches the GitHub API.
type Mirror struct {
	client *Client
	repo   Repository
}

func NewMirror(client *Client, repo Repository) *Mirror {
	return &Mirror{client: client, repo: repo}
}

// Configured reports whether the GitHub credentials are present.
func (m *Mirror) Configured() bool {
	return m.client.Configured()
}

// Sync fetches every discussion and replaces the stored copy. A
// discussion whose title does not map to a post is skipped with a
// warning; a store failure on one discussion does not abort the rest.
func (m *Mirror) Sync(ctx context.Context) error {
	if !m.client.Configured() {
		return fmt.Errorf("github comments mirror is not configured")
	}

	discussions, err := m.client.ListDiscussions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list discussions: %w", err)
	}

	synced := 0
	var firstErr error
	for _, d := range discussions {
		postID, err := postIDFromTitle(d.Title)
		if err != nil {
			slog.Warn("Skipping discussion with unmappable title", "title", d.Title, "error", err)
			continue
		}

		if err := m.store(postID, d); err != nil {
			slog.Error("Failed to store discussion", "post_id", postID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		synced++
	}

	slog.Info("Comments mirror synced", "discussions", synced, "total", len(discussions))
	return firstErr
}

func (m *Mirror) store(postID string, d Discussion) error {
	err := m.repo.UpsertDiscussion(database.CommentDiscussion{
		PostID:       postID,
		DiscussionID: d.ID,
		Number:       d.Number,
		Title:        d.Title,
		URL:          d.URL,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return m.repo.ReplaceComments(d.ID, flattenComments(d))
}

// flattenComments turns the two-level reply tree into rows. Replies
// carry their top-level comment's id as parent.
func flattenComments(d Discussion) []database.CommentItem {
	var items []database.CommentItem
	for _, c := range d.Comments {
		items = append(items, commentItem(d.ID, c, nil))
		for _, reply := range c.Replies {
			parent := c.ID
			items = append(items, commentItem(d.ID, reply, &parent))
		}
	}
	return items
}

func commentItem(discussionID string, c Comment, parentID *string) database.CommentItem {
	return database.CommentItem{
		DiscussionID:    discussionID,
		CommentID:       c.ID,
		ParentID:        parentID,
		CommentURL:      c.URL,
		AuthorLogin:     c.AuthorLogin,
		AuthorURL:       c.AuthorURL,
		AuthorAvatarURL: c.AuthorAvatarURL,
		BodyHTML:        c.BodyHTML,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// postIDFromTitle maps a discussion title to the post path it comments
// on. Titles that already look like a path are taken verbatim; a legacy
// "posts/slug" form and a bare slug both resolve under /posts/.
func postIDFromTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", fmt.Errorf("empty discussion title")
	}

	if strings.HasPrefix(trimmed, "/") {
		if strings.ContainsAny(trimmed, " \t") {
			return "", fmt.Errorf("invalid post path %q", trimmed)
		}
		return trimmed, nil
	}

	slug := strings.Trim(strings.TrimPrefix(trimmed, "posts/"), "/")
	slug = strings.ToLower(slug)
	if slug == "" || strings.ContainsAny(slug, " \t/") {
		return "", fmt.Errorf("invalid slug %q", slug)
	}
	return "/posts/" + slug + "/", nil
}
