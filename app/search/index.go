package search

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const postTextAnalyzer = "post_text"

// Index wraps the bleve index with a single-writer discipline: all
// mutations go through Apply or Rebuild under one lock, searches read
// the latest committed snapshot.
type Index struct {
	idx bleve.Index
	mu  sync.Mutex
}

// Open opens the index at dir, creating it with the post schema when
// the directory does not exist yet.
func Open(dir string) (*Index, error) {
	idx, err := bleve.Open(dir)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(dir, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", dir, err)
	}
	return &Index{idx: idx}, nil
}

// OpenInMemory creates a transient index. Used by tests.
func OpenInMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	return &Index{idx: idx}, nil
}

func (i *Index) Close() error {
	return i.idx.Close()
}

func buildMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()

	// Unicode segmentation, CJK width folding, lowercasing, then CJK
	// bigrams so Chinese/Japanese text matches without a dictionary.
	err := m.AddCustomAnalyzer(postTextAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{cjk.WidthName, lowercase.Name, cjk.BigramName},
	})
	if err != nil {
		panic(fmt.Sprintf("failed to register %s analyzer: %v", postTextAnalyzer, err))
	}

	text := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = postTextAnalyzer
		f.Store = true
		f.IncludeInAll = false
		return f
	}
	exact := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		f.IncludeInAll = false
		return f
	}
	storedOnly := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Index = false
		f.Store = true
		f.IncludeInAll = false
		return f
	}
	epoch := func() *mapping.FieldMapping {
		f := bleve.NewNumericFieldMapping()
		f.Store = true
		f.IncludeInAll = false
		return f
	}

	post := bleve.NewDocumentMapping()
	post.AddFieldMappingsAt("id", exact())
	post.AddFieldMappingsAt("title", text())
	post.AddFieldMappingsAt("subtitle", text())
	post.AddFieldMappingsAt("content", text())

	tagsText := text()
	tagsText.Store = false
	post.AddFieldMappingsAt("tags_text", tagsText)
	post.AddFieldMappingsAt("tags_exact", exact())
	post.AddFieldMappingsAt("tags", storedOnly())
	post.AddFieldMappingsAt("category", exact())
	post.AddFieldMappingsAt("url", storedOnly())
	post.AddFieldMappingsAt("published_at", epoch())
	post.AddFieldMappingsAt("updated_at", epoch())

	m.DefaultMapping = post
	m.DefaultAnalyzer = postTextAnalyzer

	return m
}

func indexDoc(p Post) map[string]interface{} {
	tagsExact := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		tagsExact[i] = strings.ToLower(t)
	}
	return map[string]interface{}{
		"id":           p.ID,
		"title":        p.Title,
		"subtitle":     p.Subtitle,
		"content":      p.Content,
		"tags_text":    strings.Join(p.Tags, " "),
		"tags_exact":   tagsExact,
		"tags":         p.Tags,
		"category":     p.Category,
		"url":          p.URL,
		"published_at": float64(p.PublishedAt.Unix()),
		"updated_at":   float64(p.UpdatedAt.Unix()),
	}
}

// Apply commits deletes and upserts as one atomic batch. Deletes run
// before adds so an id moving between the two lists resolves to the
// upserted document.
func (i *Index) Apply(upserts []Post, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.idx.NewBatch()
	for _, id := range deletes {
		batch.Delete(id)
	}
	for _, p := range upserts {
		if err := batch.Index(p.ID, indexDoc(p)); err != nil {
			return fmt.Errorf("failed to stage document %s: %w", p.ID, err)
		}
	}

	if err := i.idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to commit index batch: %w", err)
	}
	return nil
}

// Rebuild replaces the whole index content with the given posts.
func (i *Index) Rebuild(posts []Post) error {
	existing, err := i.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to enumerate existing documents: %w", err)
	}

	deletes := make([]string, 0, len(existing))
	for id := range existing {
		deletes = append(deletes, id)
	}

	return i.Apply(posts, deletes)
}

// Snapshot returns id -> updated_at epoch seconds for every indexed
// document. The ingester diffs the feed against it.
func (i *Index) Snapshot() (map[string]int64, error) {
	snapshot := make(map[string]int64)

	for from := 0; ; {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 500, from, false)
		req.Fields = []string{"updated_at"}

		res, err := i.idx.Search(req)
		if err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		for _, hit := range res.Hits {
			if v, ok := hit.Fields["updated_at"].(float64); ok {
				snapshot[hit.ID] = int64(v)
			}
		}

		from += len(res.Hits)
		if uint64(from) >= res.Total || len(res.Hits) == 0 {
			break
		}
	}

	return snapshot, nil
}

// DocCount returns the number of indexed documents.
func (i *Index) DocCount() (uint64, error) {
	return i.idx.DocCount()
}

// Search executes a parsed query with pagination and returns
// highlighted hits.
func (i *Index) Search(q *Query, offset, limit int) (*Result, error) {
	req := bleve.NewSearchRequestOptions(assembleQuery(q), limit, offset, false)
	req.Fields = []string{"id", "title", "subtitle", "content", "tags", "category", "url", "published_at", "updated_at"}
	if q.Sort == SortLatest {
		req.SortBy([]string{"-updated_at", "id"})
	}

	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, buildHit(q, h.Score, h.Fields))
	}

	return &Result{Total: res.Total, Hits: hits, Elapsed: res.Took}, nil
}

// assembleQuery builds the boolean tree: per-keyword disjunctions over
// the text fields ANDed together, then exact tag, category and date
// constraints ANDed on top. Filters without keywords fall back to
// match-all so the total reflects the filtered count.
func assembleQuery(q *Query) query.Query {
	var parts []query.Query

	if len(q.Keywords) > 0 {
		keywordParts := make([]query.Query, 0, len(q.Keywords))
		for _, kw := range q.Keywords {
			fields := make([]query.Query, 0, 5)
			for _, field := range []string{"title", "subtitle", "content", "tags_text"} {
				mq := bleve.NewMatchQuery(kw)
				mq.SetField(field)
				mq.SetOperator(query.MatchQueryOperatorAnd)
				fields = append(fields, mq)
			}
			tq := bleve.NewTermQuery(kw)
			tq.SetField("category")
			fields = append(fields, tq)

			keywordParts = append(keywordParts, bleve.NewDisjunctionQuery(fields...))
		}
		parts = append(parts, bleve.NewConjunctionQuery(keywordParts...))
	}

	for _, tag := range q.Tags {
		tq := bleve.NewTermQuery(strings.ToLower(tag))
		tq.SetField("tags_exact")
		parts = append(parts, tq)
	}

	if q.Category != "" {
		tq := bleve.NewTermQuery(q.Category)
		tq.SetField("category")
		parts = append(parts, tq)
	}

	if q.RangeStart != nil || q.RangeEnd != nil {
		lo, hi := epochBounds(q.RangeStart, q.RangeEnd)
		inclusive := true
		rq := bleve.NewNumericRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
		rq.SetField("published_at")
		parts = append(parts, rq)
	}

	if len(parts) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return bleve.NewConjunctionQuery(parts...)
}

func buildHit(q *Query, score float64, fields map[string]interface{}) Hit {
	hit := Hit{
		ID:       stringField(fields, "id"),
		URL:      stringField(fields, "url"),
		Category: stringField(fields, "category"),
		Tags:     stringSliceField(fields, "tags"),
		Score:    score,
	}

	if v, ok := fields["published_at"].(float64); ok {
		hit.PublishedAt = time.Unix(int64(v), 0).UTC()
	}
	if v, ok := fields["updated_at"].(float64); ok {
		hit.UpdatedAt = time.Unix(int64(v), 0).UTC()
	}

	hit.Title, hit.Matched.Title = snippet(stringField(fields, "title"), q.Keywords)
	hit.Subtitle, hit.Matched.Subtitle = snippet(stringField(fields, "subtitle"), q.Keywords)
	hit.Content, hit.Matched.Content = snippet(stringField(fields, "content"), q.Keywords)
	hit.Matched.Tags = matchedTags(hit.Tags, q.Tags)
	hit.Matched.Category = q.Category != "" && hit.Category == q.Category

	return hit
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// stringSliceField reads a stored multi-value field. bleve collapses a
// single-element slice to a bare string.
func stringSliceField(fields map[string]interface{}, name string) []string {
	switch v := fields[name].(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
