package comments

import (
	"time"

	"github.com/itswincer/inkstone/app/database"
)

// Node is one comment in the serve-time tree.
type Node struct {
	ID              string    `json:"id"`
	URL             string    `json:"url,omitempty"`
	AuthorLogin     string    `json:"author_login,omitempty"`
	AuthorURL       string    `json:"author_url,omitempty"`
	AuthorAvatarURL string    `json:"author_avatar_url,omitempty"`
	BodyHTML        string    `json:"body_html"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Replies         []*Node   `json:"replies"`
}

// Tree rebuilds the two-level thread structure from stored rows. Rows
// arrive oldest first and keep that order. A reply whose parent row is
// missing is promoted to a top-level comment instead of being dropped.
func Tree(items []database.CommentItem) []*Node {
	byID := make(map[string]*Node, len(items))
	for _, item := range items {
		byID[item.CommentID] = &Node{
			ID:              item.CommentID,
			URL:             item.CommentURL,
			AuthorLogin:     item.AuthorLogin,
			AuthorURL:       item.AuthorURL,
			AuthorAvatarURL: item.AuthorAvatarURL,
			BodyHTML:        item.BodyHTML,
			CreatedAt:       item.CreatedAt,
			UpdatedAt:       item.UpdatedAt,
			Replies:         []*Node{},
		}
	}

	roots := make([]*Node, 0, len(items))
	for _, item := range items {
		node := byID[item.CommentID]
		if item.ParentID != nil {
			if parent, ok := byID[*item.ParentID]; ok {
				parent.Replies = append(parent.Replies, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	return roots
}
