package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText reduces an HTML fragment to the visible text the search
// index should see: tags stripped, entities decoded, whitespace runs
// collapsed to single spaces.
func ExtractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseSpaces(html)
	}

	doc.Find("script, style, noscript").Remove()

	return collapseSpaces(doc.Text())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
