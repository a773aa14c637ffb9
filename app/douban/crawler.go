package douban

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/itswincer/inkstone/app/cfg"
	"github.com/itswincer/inkstone/app/database"
)

// pageDelay spaces out requests so the crawl stays polite.
const pageDelay = time.Second

// Repository is the persistence surface the crawler needs.
type Repository interface {
	Upsert(items []database.DoubanItem) error
	InsertIgnore(items []database.DoubanItem) (int64, error)
}

// Crawler walks the configured user's Douban mark lists and stores
// every item it finds. Incremental crawls stop at the first page that
// adds nothing new; rebuild crawls walk every page and overwrite.
type Crawler struct {
	repo       Repository
	httpClient *http.Client

	uid       string
	cookie    string
	userAgent string
	maxPages  int
}

func NewCrawler(repo Repository, httpClient *http.Client) *Crawler {
	config := cfg.Get()

	return &Crawler{
		repo:       repo,
		httpClient: httpClient,
		uid:        config.DoubanUID,
		cookie:     config.DoubanCookie,
		userAgent:  config.DoubanUserAgent,
		maxPages:   config.DoubanMaxPages,
	}
}

// Configured reports whether a Douban user id is set. Without one the
// crawl task is disabled.
func (c *Crawler) Configured() bool {
	return c.uid != ""
}

// Crawl fetches every category. A failing category does not abort the
// others; the first error is reported after all categories ran.
func (c *Crawler) Crawl(ctx context.Context, rebuild bool) error {
	if !c.Configured() {
		return fmt.Errorf("douban uid is not configured")
	}

	var firstErr error
	for _, category := range Categories {
		if err := c.crawlCategory(ctx, category, rebuild); err != nil {
			slog.Error("Douban crawl failed", "category", category, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("crawl %s: %w", category, err)
			}
		}
	}
	return firstErr
}

func (c *Crawler) crawlCategory(ctx context.Context, category Category, rebuild bool) error {
	pageURL := category.startURL(c.uid)
	seen := map[string]struct{}{}
	pages := 0
	total := 0

	for pageURL != "" {
		if _, ok := seen[pageURL]; ok {
			slog.Warn("Douban pagination loop detected", "category", category, "url", pageURL)
			break
		}
		seen[pageURL] = struct{}{}

		if c.maxPages > 0 && pages >= c.maxPages {
			slog.Info("Douban page cap reached", "category", category, "pages", pages)
			break
		}

		doc, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			return err
		}
		pages++

		items := parseItems(doc, category)
		total += len(items)

		stop, err := c.storePage(items, rebuild)
		if err != nil {
			return err
		}
		if stop {
			break
		}

		pageURL = nextPageURL(doc, category.baseURL())
		if pageURL == "" {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pageDelay):
		}
	}

	slog.Info("Douban category crawled", "category", category, "pages", pages, "items", total)
	return nil
}

// storePage persists one page of items and reports whether the crawl
// should stop. Outside rebuild mode a page where some items already
// existed means older pages hold nothing new.
func (c *Crawler) storePage(items []database.DoubanItem, rebuild bool) (bool, error) {
	if len(items) == 0 {
		return true, nil
	}

	if rebuild {
		return false, c.repo.Upsert(items)
	}

	inserted, err := c.repo.InsertIgnore(items)
	if err != nil {
		return false, err
	}
	return inserted < int64(len(items)), nil
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", pageURL, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}
	return doc, nil
}
