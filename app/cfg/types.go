package cfg

import "time"

// Cfg is the resolved application configuration. All values come from
// INKSTONE_* environment variables (optionally seeded from a .env file)
// or the matching command-line flags.
type Cfg struct {
	HTTPAddr      string
	IndexDir      string
	FeedURL       string
	ValidPathsURL string
	DatabaseURL   string

	PollInterval         time.Duration
	DoubanPollInterval   time.Duration
	CommentsPollInterval time.Duration
	RequestTimeout       time.Duration
	KudosFlushInterval   time.Duration

	MaxSearchLimit int

	CookieSecret        string
	StatsSecret         string
	GithubWebhookSecret string
	AdminToken          string

	GithubToken     string
	GithubRepoOwner string
	GithubRepoName  string

	DoubanUID       string
	DoubanCookie    string
	DoubanUserAgent string
	DoubanMaxPages  int

	CORSAllowOrigins []string

	Mode    string
	Rebuild bool

	Version string
}

// APIEnabled reports whether the HTTP listener should be started.
func (c *Cfg) APIEnabled() bool {
	return c.Mode == "api" || c.Mode == "both"
}

// WorkerEnabled reports whether the background scheduler should be started.
func (c *Cfg) WorkerEnabled() bool {
	return c.Mode == "worker" || c.Mode == "both"
}
