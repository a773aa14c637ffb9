package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	HTTPAddr      string `long:"http-addr" env:"INKSTONE_HTTP_ADDR" default:"127.0.0.1:8080" description:"HTTP listen address (host:port)"`
	IndexDir      string `long:"index-dir" env:"INKSTONE_INDEX_DIR" default:"./data/index" description:"Directory holding the full-text index"`
	FeedURL       string `long:"feed-url" env:"INKSTONE_FEED_URL" description:"Atom feed URL of the site" required:"true"`
	ValidPathsURL string `long:"valid-paths-url" env:"INKSTONE_VALID_PATHS_URL" description:"URL of the valid_paths.txt allow-list"`
	DatabaseURL   string `long:"database-url" env:"INKSTONE_DATABASE_URL" description:"SQLite database path (empty disables the store)"`

	PollIntervalSecs       int `long:"poll-interval-secs" env:"INKSTONE_POLL_INTERVAL_SECS" default:"300" description:"Feed and valid-paths refresh interval in seconds"`
	DoubanPollIntervalSecs int `long:"douban-poll-interval-secs" env:"INKSTONE_DOUBAN_POLL_INTERVAL_SECS" default:"86400" description:"Douban crawl interval in seconds"`
	CommentsPollSecs       int `long:"comments-poll-interval-secs" env:"INKSTONE_COMMENTS_POLL_INTERVAL_SECS" default:"3600" description:"GitHub discussions mirror interval in seconds"`
	RequestTimeoutSecs     int `long:"request-timeout-secs" env:"INKSTONE_REQUEST_TIMEOUT_SECS" default:"15" description:"Outbound HTTP request timeout in seconds"`
	KudosFlushSecs         int `long:"kudos-flush-secs" env:"INKSTONE_KUDOS_FLUSH_SECS" default:"30" description:"Kudos write-behind flush interval in seconds (0 disables)"`

	MaxSearchLimit int `long:"max-search-limit" env:"INKSTONE_MAX_SEARCH_LIMIT" default:"50" description:"Maximum search page size"`

	CookieSecret        string `long:"cookie-secret" env:"INKSTONE_COOKIE_SECRET" description:"HMAC secret for the bid cookie"`
	StatsSecret         string `long:"stats-secret" env:"INKSTONE_STATS_SECRET" description:"HMAC secret for daily stats ids"`
	GithubWebhookSecret string `long:"github-webhook-secret" env:"INKSTONE_GITHUB_WEBHOOK_SECRET" description:"Secret for GitHub webhook signatures"`
	AdminToken          string `long:"admin-token" env:"INKSTONE_ADMIN_TOKEN" description:"Bearer token for the admin endpoints (empty disables them)"`

	GithubToken     string `long:"github-token" env:"INKSTONE_GITHUB_TOKEN" description:"Token for the GitHub Discussions API"`
	GithubRepoOwner string `long:"github-repo-owner" env:"INKSTONE_GITHUB_REPO_OWNER" description:"Owner of the discussions repository"`
	GithubRepoName  string `long:"github-repo-name" env:"INKSTONE_GITHUB_REPO_NAME" description:"Name of the discussions repository"`

	DoubanUID       string `long:"douban-uid" env:"INKSTONE_DOUBAN_UID" description:"Douban user id to crawl"`
	DoubanCookie    string `long:"douban-cookie" env:"INKSTONE_DOUBAN_COOKIE" description:"Cookie header for Douban requests"`
	DoubanUserAgent string `long:"douban-user-agent" env:"INKSTONE_DOUBAN_USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36" description:"User agent for Douban requests"`
	DoubanMaxPages  int    `long:"douban-max-pages" env:"INKSTONE_DOUBAN_MAX_PAGES" default:"0" description:"Page cap per Douban category (0 = unlimited)"`

	CORSAllowOrigins string `long:"cors-allow-origins" env:"INKSTONE_CORS_ALLOW_ORIGINS" description:"Comma-separated list of allowed CORS origins"`

	Mode    string `long:"mode" default:"both" choice:"api" choice:"worker" choice:"both" description:"Run the API, the worker, or both"`
	Rebuild bool   `long:"rebuild" description:"Rebuild the search index and recrawl Douban before scheduling"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	// Real environment wins: godotenv never overrides existing variables.
	_ = godotenv.Load()

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		HTTPAddr:             raw.HTTPAddr,
		IndexDir:             raw.IndexDir,
		FeedURL:              raw.FeedURL,
		ValidPathsURL:        raw.ValidPathsURL,
		DatabaseURL:          raw.DatabaseURL,
		PollInterval:         time.Duration(raw.PollIntervalSecs) * time.Second,
		DoubanPollInterval:   time.Duration(raw.DoubanPollIntervalSecs) * time.Second,
		CommentsPollInterval: time.Duration(raw.CommentsPollSecs) * time.Second,
		RequestTimeout:       time.Duration(raw.RequestTimeoutSecs) * time.Second,
		KudosFlushInterval:   time.Duration(raw.KudosFlushSecs) * time.Second,
		MaxSearchLimit:       raw.MaxSearchLimit,
		CookieSecret:         raw.CookieSecret,
		StatsSecret:          raw.StatsSecret,
		GithubWebhookSecret:  raw.GithubWebhookSecret,
		AdminToken:           raw.AdminToken,
		GithubToken:          raw.GithubToken,
		GithubRepoOwner:      raw.GithubRepoOwner,
		GithubRepoName:       raw.GithubRepoName,
		DoubanUID:            raw.DoubanUID,
		DoubanCookie:         raw.DoubanCookie,
		DoubanUserAgent:      raw.DoubanUserAgent,
		DoubanMaxPages:       raw.DoubanMaxPages,
		CORSAllowOrigins:     splitOrigins(raw.CORSAllowOrigins),
		Mode:                 raw.Mode,
		Rebuild:              raw.Rebuild,
		Version:              GetVersion(),
	}

	if cfg.MaxSearchLimit < 1 {
		return nil, fmt.Errorf("INKSTONE_MAX_SEARCH_LIMIT must be at least 1, got %d", cfg.MaxSearchLimit)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(cfg *Cfg) {
	globalCfg = cfg
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
