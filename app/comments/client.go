package comments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/itswincer/inkstone/app/cfg"
)

const (
	graphqlEndpoint = "https://api.github.com/graphql"
	userAgent       = "inkstone"
)

// Discussion is one GitHub discussion with its full comment tree, as
// returned by the GraphQL API.
type Discussion struct {
	ID        string
	Number    int
	Title     string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
	Comments  []Comment
}

// Comment is one discussion comment. Replies is non-empty only on
// top-level comments; GitHub keeps threads one level deep.
type Comment struct {
	ID              string
	URL             string
	AuthorLogin     string
	AuthorURL       string
	AuthorAvatarURL string
	BodyHTML        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Replies         []Comment
}

// Client talks to the GitHub GraphQL API with a personal access token.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	owner      string
	repo       string
}

func NewClient(httpClient *http.Client) *Client {
	config := cfg.Get()

	return &Client{
		httpClient: httpClient,
		endpoint:   graphqlEndpoint,
		token:      config.GithubToken,
		owner:      config.GithubRepoOwner,
		repo:       config.GithubRepoName,
	}
}

// Configured reports whether token and repository are set. Without them
// the mirror task is disabled.
func (c *Client) Configured() bool {
	return c.token != "" && c.owner != "" && c.repo != ""
}

const listDiscussionsQuery = `
query($owner: String!, $name: String!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    discussions(first: 50, after: $cursor) {
      pageInfo { hasNextPage endCursor }
      nodes {
        id
        number
        title
        url
        createdAt
        updatedAt
        comments(first: 100) {
          nodes {
            id
            url
            bodyHTML
            createdAt
            updatedAt
            author { login url avatarUrl }
            replies(first: 100) {
              nodes {
                id
                url
                bodyHTML
                createdAt
                updatedAt
                author { login url avatarUrl }
              }
            }
          }
        }
      }
    }
  }
}`

// ListDiscussions pages through every discussion of the configured
// repository, comments and replies included.
func (c *Client) ListDiscussions(ctx context.Context) ([]Discussion, error) {
	var discussions []Discussion
	var cursor *string

	for {
		var data listDiscussionsData
		vars := map[string]interface{}{"owner": c.owner, "name": c.repo, "cursor": cursor}
		if err := c.do(ctx, listDiscussionsQuery, vars, &data); err != nil {
			return nil, err
		}
		if data.Repository == nil {
			return nil, fmt.Errorf("repository %s/%s not found", c.owner, c.repo)
		}

		for _, node := range data.Repository.Discussions.Nodes {
			d, err := node.toDiscussion()
			if err != nil {
				return nil, err
			}
			discussions = append(discussions, d)
		}

		page := data.Repository.Discussions.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			break
		}
		cursor = &page.EndCursor
	}

	return discussions, nil
}

func (c *Client) do(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create graphql request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graphql request returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("graphql error: %s", strings.Join(messages, ", "))
	}
	if envelope.Data == nil {
		return fmt.Errorf("graphql response has no data")
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode graphql data: %w", err)
	}
	return nil
}

type listDiscussionsData struct {
	Repository *struct {
		Discussions struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []discussionNode `json:"nodes"`
		} `json:"discussions"`
	} `json:"repository"`
}

type discussionNode struct {
	ID        string `json:"id"`
	Number    int    `json:"number"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Comments  struct {
		Nodes []commentNode `json:"nodes"`
	} `json:"comments"`
}

type commentNode struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	BodyHTML  string      `json:"bodyHTML"`
	CreatedAt string      `json:"createdAt"`
	UpdatedAt string      `json:"updatedAt"`
	Author    *authorNode `json:"author"`
	Replies   *struct {
		Nodes []commentNode `json:"nodes"`
	} `json:"replies"`
}

type authorNode struct {
	Login     string `json:"login"`
	URL       string `json:"url"`
	AvatarURL string `json:"avatarUrl"`
}

func (n discussionNode) toDiscussion() (Discussion, error) {
	createdAt, err := parseTimestamp(n.CreatedAt)
	if err != nil {
		return Discussion{}, err
	}
	updatedAt, err := parseTimestamp(n.UpdatedAt)
	if err != nil {
		return Discussion{}, err
	}

	comments := make([]Comment, 0, len(n.Comments.Nodes))
	for _, c := range n.Comments.Nodes {
		comment, err := c.toComment()
		if err != nil {
			return Discussion{}, err
		}
		comments = append(comments, comment)
	}

	return Discussion{
		ID:        n.ID,
		Number:    n.Number,
		Title:     n.Title,
		URL:       n.URL,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Comments:  comments,
	}, nil
}

func (n commentNode) toComment() (Comment, error) {
	createdAt, err := parseTimestamp(n.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	updatedAt, err := parseTimestamp(n.UpdatedAt)
	if err != nil {
		return Comment{}, err
	}

	comment := Comment{
		ID:        n.ID,
		URL:       n.URL,
		BodyHTML:  n.BodyHTML,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if n.Author != nil {
		comment.AuthorLogin = n.Author.Login
		comment.AuthorURL = n.Author.URL
		comment.AuthorAvatarURL = n.Author.AvatarURL
	}
	if n.Replies != nil {
		for _, r := range n.Replies.Nodes {
			reply, err := r.toComment()
			if err != nil {
				return Comment{}, err
			}
			comment.Replies = append(comment.Replies, reply)
		}
	}
	return comment, nil
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}
