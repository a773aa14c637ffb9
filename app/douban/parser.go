package douban

import (
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/itswincer/inkstone/app/database"
)

// Category is one of the crawled Douban mark lists.
type Category string

const (
	CategoryMovie Category = "movie"
	CategoryBook  Category = "book"
	CategoryGame  Category = "game"
)

// Categories lists every crawled category in crawl order.
var Categories = []Category{CategoryMovie, CategoryBook, CategoryGame}

func (c Category) baseURL() string {
	switch c {
	case CategoryMovie:
		return "https://movie.douban.com"
	case CategoryBook:
		return "https://book.douban.com"
	default:
		return "https://www.douban.com"
	}
}

func (c Category) startURL(uid string) string {
	if c == CategoryGame {
		return c.baseURL() + "/people/" + uid + "/games?action=collect"
	}
	return c.baseURL() + "/people/" + uid + "/collect"
}

// parseItems extracts the marks from one list page. Each category uses
// its own markup; items without a recognizable subject id are skipped.
func parseItems(doc *goquery.Document, category Category) []database.DoubanItem {
	switch category {
	case CategoryMovie:
		return parseMovieItems(doc)
	case CategoryBook:
		return parseBookItems(doc)
	default:
		return parseGameItems(doc)
	}
}

func parseMovieItems(doc *goquery.Document) []database.DoubanItem {
	var items []database.DoubanItem
	doc.Find("div.item.comment-item").Each(func(_ int, sel *goquery.Selection) {
		id := idFromLink(sel.Find("div.pic a"))
		if id == "" {
			return
		}
		title := nodeText(sel.Find("li.title em").First())
		if title == "" {
			title = nodeText(sel.Find("li.title a").First())
		}
		if title == "" {
			return
		}

		items = append(items, database.DoubanItem{
			Type:    string(CategoryMovie),
			ID:      id,
			Title:   title,
			Poster:  sel.Find("div.pic img").First().AttrOr("src", ""),
			Rating:  ratingFromClasses(sel.Find(`span[class^="rating"]`).First().AttrOr("class", "")),
			Tags:    parseTagsText(nodeText(sel.Find("span.tags").First())),
			Comment: nodeText(sel.Find("span.comment").First()),
			Date:    parseMarkDate(nodeText(sel.Find("span.date").First()), id),
		})
	})
	return items
}

func parseBookItems(doc *goquery.Document) []database.DoubanItem {
	var items []database.DoubanItem
	doc.Find("li.subject-item").Each(func(_ int, sel *goquery.Selection) {
		id := idFromLink(sel.Find("div.pic a"))
		if id == "" {
			return
		}
		title := nodeText(sel.Find("h2 a").First())
		if title == "" {
			return
		}

		items = append(items, database.DoubanItem{
			Type:    string(CategoryBook),
			ID:      id,
			Title:   title,
			Poster:  sel.Find("div.pic img").First().AttrOr("src", ""),
			Rating:  ratingFromClasses(sel.Find(`span[class^="rating"]`).First().AttrOr("class", "")),
			Tags:    parseTagsText(nodeText(sel.Find("span.tags").First())),
			Comment: nodeText(sel.Find("p.comment").First()),
			Date:    parseMarkDate(nodeText(sel.Find("span.date").First()), id),
		})
	})
	return items
}

func parseGameItems(doc *goquery.Document) []database.DoubanItem {
	var items []database.DoubanItem
	doc.Find("div.common-item").Each(func(_ int, sel *goquery.Selection) {
		id := idFromLink(sel.Find("div.pic a"))
		if id == "" {
			return
		}
		title := nodeText(sel.Find("div.title a").First())
		if title == "" {
			return
		}

		items = append(items, database.DoubanItem{
			Type:    string(CategoryGame),
			ID:      id,
			Title:   title,
			Poster:  sel.Find("div.pic img").First().AttrOr("src", ""),
			Rating:  ratingFromClasses(sel.Find("div.rating-info span.rating-star").First().AttrOr("class", "")),
			Tags:    parseTagsText(nodeText(sel.Find("div.rating-info span.tags").First())),
			Comment: gameComment(sel.Find("div.content").First()),
			Date:    parseMarkDate(nodeText(sel.Find("div.rating-info span.date").First()), id),
		})
	})
	return items
}

// gameComment is the first non-empty child div of the content block
// that is not the title, description or operation row. The game list
// has no dedicated comment class.
func gameComment(content *goquery.Selection) string {
	var comment string
	content.ChildrenFiltered("div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		switch sel.AttrOr("class", "") {
		case "title", "desc", "user-operation":
			return true
		}
		if text := nodeText(sel); text != "" {
			comment = text
			return false
		}
		return true
	})
	return comment
}

func nodeText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// idFromLink pulls the numeric subject id out of an item URL like
// https://movie.douban.com/subject/1292052/ or .../game/10734307/.
func idFromLink(sel *goquery.Selection) string {
	href := sel.First().AttrOr("href", "")
	for _, marker := range []string{"subject/", "game/"} {
		if pos := strings.Index(href, marker); pos >= 0 {
			rest := href[pos+len(marker):]
			end := 0
			for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
				end++
			}
			if end > 0 {
				return rest[:end]
			}
		}
	}
	return ""
}

// ratingFromClasses reads the star rating from class names of the form
// "rating4-t" or "allstar40".
func ratingFromClasses(classValue string) int {
	for _, class := range strings.Fields(classValue) {
		if rest, ok := strings.CutPrefix(class, "rating"); ok {
			if n := leadingNumber(rest); n >= 1 && n <= 5 {
				return n
			}
		}
		if rest, ok := strings.CutPrefix(class, "allstar"); ok {
			if n := leadingNumber(rest); n >= 10 {
				return n / 10
			}
		}
	}
	return 0
}

func leadingNumber(s string) int {
	n := 0
	found := false
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		found = true
		n = n*10 + int(r-'0')
	}
	if !found {
		return -1
	}
	return n
}

// parseTagsText splits the text after the "标签:" prefix into tags.
func parseTagsText(text string) []string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "标签:"))
	if trimmed == "" {
		return nil
	}
	return strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func parseMarkDate(text, itemID string) *time.Time {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	d, err := time.ParseInLocation("2006-01-02", fields[0], time.UTC)
	if err != nil {
		slog.Warn("Failed to parse douban mark date", "item_id", itemID, "date", fields[0], "error", err)
		return nil
	}
	return &d
}

// nextPageURL resolves the pagination link of a list page, if any.
func nextPageURL(doc *goquery.Document, baseURL string) string {
	href := doc.Find(`link[rel="next"]`).First().AttrOr("href", "")
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return baseURL + href
	}
	return baseURL + "/" + href
}
