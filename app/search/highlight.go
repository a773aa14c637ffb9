package search

import (
	"strings"
	"unicode/utf8"
)

const (
	snippetRunes = 200
	snippetLead  = 50
)

// snippet produces the highlighted excerpt of a stored field. The
// window is centered shortly before the earliest case-insensitive
// keyword match; every keyword occurrence inside the window is wrapped
// in <b></b>. Without a match the first 200 characters are returned
// unmarked. Empty sources yield an empty snippet so the HTTP layer can
// omit the field.
func snippet(source string, keywords []string) (string, bool) {
	if source == "" {
		return "", false
	}

	earliest := earliestMatch(source, keywords)
	if earliest < 0 {
		return truncateRunes(source, snippetRunes), false
	}

	window := windowAround(source, earliest)
	return highlightKeywords(window, keywords), true
}

// earliestMatch returns the byte offset of the first case-insensitive
// keyword occurrence, or -1.
func earliestMatch(source string, keywords []string) int {
	lower := strings.ToLower(source)
	earliest := -1
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if idx := strings.Index(lower, strings.ToLower(kw)); idx >= 0 && (earliest < 0 || idx < earliest) {
			earliest = idx
		}
	}
	return earliest
}

// windowAround slices a snippet-sized rune window starting a short lead
// before the match offset.
func windowAround(source string, matchOffset int) string {
	runes := []rune(source)
	if len(runes) <= snippetRunes {
		return source
	}

	matchRune := utf8.RuneCountInString(source[:matchOffset])
	start := matchRune - snippetLead
	if start < 0 {
		start = 0
	}
	end := start + snippetRunes
	if end > len(runes) {
		end = len(runes)
		start = end - snippetRunes
	}

	return string(runes[start:end])
}

// highlightKeywords wraps every case-insensitive keyword occurrence in
// <b></b>, earliest match first, never overlapping.
func highlightKeywords(window string, keywords []string) string {
	lower := strings.ToLower(window)

	var b strings.Builder
	pos := 0
	for pos < len(window) {
		matchAt, matchLen := -1, 0
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			lk := strings.ToLower(kw)
			if idx := strings.Index(lower[pos:], lk); idx >= 0 {
				at := pos + idx
				if matchAt < 0 || at < matchAt || (at == matchAt && len(lk) > matchLen) {
					matchAt, matchLen = at, len(lk)
				}
			}
		}
		if matchAt < 0 {
			b.WriteString(window[pos:])
			break
		}
		b.WriteString(window[pos:matchAt])
		b.WriteString("<b>")
		b.WriteString(window[matchAt : matchAt+matchLen])
		b.WriteString("</b>")
		pos = matchAt + matchLen
	}

	return b.String()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// matchedTags intersects the requested tags with the document's tags
// case-insensitively and returns the document's original casing.
func matchedTags(docTags, queryTags []string) []string {
	if len(queryTags) == 0 || len(docTags) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(queryTags))
	for _, t := range queryTags {
		wanted[strings.ToLower(t)] = true
	}

	var out []string
	for _, t := range docTags {
		if wanted[strings.ToLower(t)] {
			out = append(out, t)
		}
	}
	return out
}
