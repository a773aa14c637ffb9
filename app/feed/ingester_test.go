package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mmcdole/gofeed/atom"

	"github.com/itswincer/inkstone/app/cfg"
	"github.com/itswincer/inkstone/app/search"
)

const sampleFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Blog</title>
  <updated>2021-02-02T12:00:00Z</updated>
  <entry>
    <id>urn:uuid:11111111-1111-1111-1111-111111111111</id>
    <title>Tantivy intro</title>
    <link rel="alternate" href="https://example.com/posts/tantivy-intro/"/>
    <summary>A short look at full-text search</summary>
    <published>2021-02-01T08:00:00Z</published>
    <updated>2021-02-02T12:00:00Z</updated>
    <category term="Rust"/>
    <category term="Search"/>
    <category term="tech" scheme="category"/>
    <content type="html">&lt;p&gt;Full &lt;b&gt;text&lt;/b&gt; search with tantivy.&lt;/p&gt;</content>
  </entry>
  <entry>
    <id>urn:uuid:22222222-2222-2222-2222-222222222222</id>
    <title>Second post</title>
    <link rel="alternate" href="https://example.com/posts/second/"/>
    <published>2019-06-01T08:00:00Z</published>
    <updated>2019-06-01T08:00:00Z</updated>
  </entry>
</feed>`

func parseSample(t *testing.T) []search.Post {
	t.Helper()
	parser := &atom.Parser{}
	feed, err := parser.Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse sample feed: %v", err)
	}
	return postsFromFeed(feed)
}

func TestPostsFromFeed_MapsEntries(t *testing.T) {
	posts := parseSample(t)

	if len(posts) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(posts))
	}

	p := posts[0]
	if p.ID != "urn:uuid:11111111-1111-1111-1111-111111111111" {
		t.Errorf("Unexpected id: %s", p.ID)
	}
	if p.Title != "Tantivy intro" {
		t.Errorf("Unexpected title: %q", p.Title)
	}
	if p.Subtitle != "A short look at full-text search" {
		t.Errorf("Unexpected subtitle: %q", p.Subtitle)
	}
	if p.Content != "Full text search with tantivy." {
		t.Errorf("Expected extracted text content, got %q", p.Content)
	}
	if p.URL != "https://example.com/posts/tantivy-intro/" {
		t.Errorf("Unexpected URL: %q", p.URL)
	}
	if p.Category != "tech" {
		t.Errorf("Expected scheme=category term as category, got %q", p.Category)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "Rust" || p.Tags[1] != "Search" {
		t.Errorf("Expected tags [Rust Search], got %v", p.Tags)
	}
	if p.PublishedAt.IsZero() || p.UpdatedAt.Before(p.PublishedAt) {
		t.Errorf("Unexpected timestamps: published=%v updated=%v", p.PublishedAt, p.UpdatedAt)
	}
}

func TestPostsFromFeed_MissingUpdatedFallsBack(t *testing.T) {
	raw := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>urn:uuid:3</id>
    <title>No updated</title>
    <published>2020-05-05T10:00:00Z</published>
  </entry>
</feed>`
	parser := &atom.Parser{}
	feed, err := parser.Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	posts := postsFromFeed(feed)
	if len(posts) != 1 {
		t.Fatalf("Expected 1 post, got %d", len(posts))
	}
	if !posts[0].UpdatedAt.Equal(posts[0].PublishedAt) {
		t.Errorf("Expected updated to fall back to published")
	}
}

func TestIngester_RefreshDiffAndConditionalGet(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	cfg.Set(&cfg.Cfg{FeedURL: server.URL})

	idx, err := search.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer idx.Close()

	ing := NewIngester(idx, server.Client())

	if err := ing.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	count, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 documents after refresh, got %d", count)
	}

	// Second refresh hits the conditional GET and changes nothing.
	if err := ing.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if requests != 2 {
		t.Errorf("Expected 2 upstream requests, got %d", requests)
	}
	count, _ = idx.DocCount()
	if count != 2 {
		t.Errorf("Expected document count unchanged, got %d", count)
	}
}

func TestIngester_RefreshDeletesVanishedEntries(t *testing.T) {
	feeds := []string{sampleFeed, strings.Replace(sampleFeed,
		`  <entry>
    <id>urn:uuid:22222222-2222-2222-2222-222222222222</id>
    <title>Second post</title>
    <link rel="alternate" href="https://example.com/posts/second/"/>
    <published>2019-06-01T08:00:00Z</published>
    <updated>2019-06-01T08:00:00Z</updated>
  </entry>
`, "", 1)}

	var serve int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := feeds[serve]
		if serve < len(feeds)-1 {
			serve++
		}
		w.Write([]byte(body))
	}))
	defer server.Close()

	cfg.Set(&cfg.Cfg{FeedURL: server.URL})

	idx, err := search.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer idx.Close()

	ing := NewIngester(idx, server.Client())

	if err := ing.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := ing.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	count, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected vanished entry deleted, got %d documents", count)
	}
}
