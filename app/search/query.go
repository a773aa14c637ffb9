package search

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	maxQueryLen = 256
	maxKeywords = 10
)

// ErrorKind classifies query validation failures so the HTTP layer can
// map them to status codes without string matching.
type ErrorKind int

const (
	ErrEmptyQuery ErrorKind = iota
	ErrQueryTooLong
	ErrControlChar
	ErrTooManyKeywords
	ErrInvalidRange
	ErrInvalidSort
	ErrInvalidLimit
)

type ParseError struct {
	Kind ErrorKind
	msg  string
}

func (e *ParseError) Error() string { return e.msg }

func parseErr(kind ErrorKind, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Query is the normalized structured form of a search request.
type Query struct {
	Keywords   []string
	Tags       []string
	Category   string
	RangeStart *time.Time
	RangeEnd   *time.Time
	Sort       SortMode
}

// HasFilters reports whether any non-keyword constraint is present.
func (q *Query) HasFilters() bool {
	return len(q.Tags) > 0 || q.Category != "" || q.RangeStart != nil || q.RangeEnd != nil
}

// ParseSort maps the `sort` query parameter. Empty means relevance.
func ParseSort(raw string) (SortMode, error) {
	switch raw {
	case "", "relevance":
		return SortRelevance, nil
	case "latest":
		return SortLatest, nil
	default:
		return SortRelevance, parseErr(ErrInvalidSort, "invalid sort mode: %q", raw)
	}
}

// ParseQuery validates and parses the raw `q` parameter into a Query.
// Validation order is fixed: presence, length, control characters,
// whitespace normalization, tokenization.
func ParseQuery(raw string, sort SortMode) (*Query, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, parseErr(ErrEmptyQuery, "q is required")
	}
	if len(trimmed) > maxQueryLen {
		return nil, parseErr(ErrQueryTooLong, "q exceeds %d characters", maxQueryLen)
	}
	for _, r := range trimmed {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return nil, parseErr(ErrControlChar, "q contains control characters")
		}
	}

	q := &Query{Sort: sort}

	seenKeywords := make(map[string]bool)
	seenTags := make(map[string]bool)

	for _, token := range tokenize(collapseWhitespace(trimmed)) {
		switch {
		case strings.HasPrefix(token, "range:"):
			start, end, err := parseTimeRange(strings.TrimPrefix(token, "range:"))
			if err != nil {
				return nil, err
			}
			q.RangeStart = start
			q.RangeEnd = end

		case strings.HasPrefix(token, "tags:"):
			for _, tag := range strings.Split(strings.TrimPrefix(token, "tags:"), ",") {
				tag = strings.TrimSpace(tag)
				if tag == "" {
					continue
				}
				key := strings.ToLower(tag)
				if !seenTags[key] {
					seenTags[key] = true
					q.Tags = append(q.Tags, tag)
				}
			}

		case strings.HasPrefix(token, "category:"):
			// Later category filters override earlier ones.
			if value := strings.TrimPrefix(token, "category:"); value != "" {
				q.Category = value
			}

		default:
			key := strings.ToLower(token)
			if !seenKeywords[key] {
				seenKeywords[key] = true
				q.Keywords = append(q.Keywords, token)
			}
		}
	}

	if len(q.Keywords) > maxKeywords {
		return nil, parseErr(ErrTooManyKeywords, "too many keywords, at most %d allowed", maxKeywords)
	}
	if len(q.Keywords) == 0 && !q.HasFilters() {
		return nil, parseErr(ErrEmptyQuery, "q is required")
	}

	return q, nil
}

// String renders the canonical form. Parsing it back yields an
// identical Query.
func (q *Query) String() string {
	var parts []string
	for _, kw := range q.Keywords {
		parts = append(parts, quoteIfSpaced(kw))
	}
	if q.RangeStart != nil || q.RangeEnd != nil {
		var start, end string
		if q.RangeStart != nil {
			start = q.RangeStart.Format("2006-01-02")
		}
		if q.RangeEnd != nil {
			end = q.RangeEnd.Format("2006-01-02")
		}
		parts = append(parts, "range:"+start+"~"+end)
	}
	if len(q.Tags) > 0 {
		parts = append(parts, quoteIfSpaced("tags:"+strings.Join(q.Tags, ",")))
	}
	if q.Category != "" {
		parts = append(parts, quoteIfSpaced("category:"+q.Category))
	}
	return strings.Join(parts, " ")
}

// quoteIfSpaced keeps a token with embedded spaces intact across a
// reparse, tag and category values included.
func quoteIfSpaced(token string) string {
	if strings.ContainsRune(token, ' ') {
		return `"` + token + `"`
	}
	return token
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inRun {
				b.WriteByte(' ')
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// tokenize splits on spaces while keeping double-quoted substrings
// intact. Quotes carry no escape sequences; an unterminated quote runs
// to the end of the string.
func tokenize(s string) []string {
	var tokens []string
	var current strings.Builder
	inQuote := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return tokens
}

// parseTimeRange parses "START~END" where either side may be empty but
// not both. Bounds are calendar dates; inverted ranges are rejected.
func parseTimeRange(raw string) (*time.Time, *time.Time, error) {
	startStr, endStr, found := strings.Cut(raw, "~")
	if !found {
		return nil, nil, parseErr(ErrInvalidRange, "range must be START~END")
	}
	if startStr == "" && endStr == "" {
		return nil, nil, parseErr(ErrInvalidRange, "range must have at least one bound")
	}

	var start, end *time.Time
	if startStr != "" {
		t, err := time.ParseInLocation("2006-01-02", startStr, time.UTC)
		if err != nil {
			return nil, nil, parseErr(ErrInvalidRange, "invalid range start: %q", startStr)
		}
		start = &t
	}
	if endStr != "" {
		t, err := time.ParseInLocation("2006-01-02", endStr, time.UTC)
		if err != nil {
			return nil, nil, parseErr(ErrInvalidRange, "invalid range end: %q", endStr)
		}
		end = &t
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, nil, parseErr(ErrInvalidRange, "range start is after range end")
	}

	return start, end, nil
}

// epochBounds maps the parsed calendar dates onto inclusive epoch-second
// bounds: start of day for the lower bound, end of day (23:59:59) for
// the upper bound.
func epochBounds(start, end *time.Time) (lo, hi *float64) {
	if start != nil {
		v := float64(start.Unix())
		lo = &v
	}
	if end != nil {
		v := float64(end.Add(24*time.Hour - time.Second).Unix())
		hi = &v
	}
	return lo, hi
}
