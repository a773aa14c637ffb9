package douban

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("Failed to parse fixture: %v", err)
	}
	return doc
}

const movieListHTML = `
<html><body>
<div class="item comment-item">
  <div class="pic">
    <a href="https://movie.douban.com/subject/1292052/"><img src="https://img.example.com/p480747492.jpg"></a>
  </div>
  <div class="info">
    <ul>
      <li class="title"><a href="https://movie.douban.com/subject/1292052/"><em>肖申克的救赎 / The Shawshank Redemption</em></a></li>
      <li>
        <span class="rating5-t"></span>
        <span class="date">2023-11-05 看过</span>
        <span class="tags">标签: 经典 剧情</span>
      </li>
      <li><span class="comment">希望是个好东西</span></li>
    </ul>
  </div>
</div>
<div class="item comment-item">
  <div class="pic">
    <a href="https://movie.douban.com/subject/1291546/"><img src="https://img.example.com/p2561716440.jpg"></a>
  </div>
  <div class="info">
    <ul>
      <li class="title"><a href="https://movie.douban.com/subject/1291546/">霸王别姬</a></li>
      <li><span class="date">2023-10-01 看过</span></li>
    </ul>
  </div>
</div>
</body></html>`

func TestParseMovieItems(t *testing.T) {
	items := parseMovieItems(parseDoc(t, movieListHTML))
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ID != "1292052" || first.Type != "movie" {
		t.Errorf("Unexpected identity: %s/%s", first.Type, first.ID)
	}
	if first.Title != "肖申克的救赎 / The Shawshank Redemption" {
		t.Errorf("Unexpected title: %q", first.Title)
	}
	if first.Rating != 5 {
		t.Errorf("Expected rating 5, got %d", first.Rating)
	}
	if len(first.Tags) != 2 || first.Tags[0] != "经典" || first.Tags[1] != "剧情" {
		t.Errorf("Unexpected tags: %v", first.Tags)
	}
	if first.Comment != "希望是个好东西" {
		t.Errorf("Unexpected comment: %q", first.Comment)
	}
	if first.Date == nil || first.Date.Format("2006-01-02") != "2023-11-05" {
		t.Errorf("Unexpected date: %v", first.Date)
	}
	if first.Poster != "https://img.example.com/p480747492.jpg" {
		t.Errorf("Unexpected poster: %q", first.Poster)
	}

	// Second item has no em wrapper, no rating, no tags, no comment.
	second := items[1]
	if second.Title != "霸王别姬" {
		t.Errorf("Expected bare link title fallback, got %q", second.Title)
	}
	if second.Rating != 0 {
		t.Errorf("Expected unrated, got %d", second.Rating)
	}
	if second.Tags != nil {
		t.Errorf("Expected no tags, got %v", second.Tags)
	}
}

const bookListHTML = `
<html><body>
<ul class="interest-list">
<li class="subject-item">
  <div class="pic">
    <a href="https://book.douban.com/subject/4913064/"><img src="https://img.example.com/s4510534.jpg"></a>
  </div>
  <div class="info">
    <h2><a href="https://book.douban.com/subject/4913064/">三体</a></h2>
    <div class="short-note">
      <div>
        <span class="rating4-t"></span>
        <span class="date">2024-02-18 读过</span>
        <span class="tags">标签: 科幻,中国</span>
      </div>
      <p class="comment">黑暗森林理论很震撼</p>
    </div>
  </div>
</li>
</ul>
</body></html>`

func TestParseBookItems(t *testing.T) {
	items := parseBookItems(parseDoc(t, bookListHTML))
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.ID != "4913064" || item.Type != "book" {
		t.Errorf("Unexpected identity: %s/%s", item.Type, item.ID)
	}
	if item.Title != "三体" {
		t.Errorf("Unexpected title: %q", item.Title)
	}
	if item.Rating != 4 {
		t.Errorf("Expected rating 4, got %d", item.Rating)
	}
	if len(item.Tags) != 2 || item.Tags[0] != "科幻" || item.Tags[1] != "中国" {
		t.Errorf("Unexpected tags: %v", item.Tags)
	}
	if item.Comment != "黑暗森林理论很震撼" {
		t.Errorf("Unexpected comment: %q", item.Comment)
	}
}

const gameListHTML = `
<html><body>
<div class="common-item">
  <div class="pic">
    <a href="https://www.douban.com/game/10734307/"><img src="https://img.example.com/zelda.jpg"></a>
  </div>
  <div class="content">
    <div class="title"><a href="https://www.douban.com/game/10734307/">塞尔达传说 旷野之息</a></div>
    <div class="desc">
      Nintendo Switch / 2017-03-03
      <div class="rating-info">
        <span class="rating-star allstar50"></span>
        <span class="date">2022-07-30</span>
        <span class="tags">标签: 开放世界</span>
      </div>
    </div>
    <div>神作，重新定义了开放世界</div>
    <div class="user-operation"><a href="#">修改</a></div>
  </div>
</div>
</body></html>`

func TestParseGameItems(t *testing.T) {
	items := parseGameItems(parseDoc(t, gameListHTML))
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.ID != "10734307" || item.Type != "game" {
		t.Errorf("Unexpected identity: %s/%s", item.Type, item.ID)
	}
	if item.Title != "塞尔达传说 旷野之息" {
		t.Errorf("Unexpected title: %q", item.Title)
	}
	if item.Rating != 5 {
		t.Errorf("Expected rating 5 from allstar50, got %d", item.Rating)
	}
	if item.Comment != "神作，重新定义了开放世界" {
		t.Errorf("Comment must skip title/desc/operation rows, got %q", item.Comment)
	}
	if len(item.Tags) != 1 || item.Tags[0] != "开放世界" {
		t.Errorf("Unexpected tags: %v", item.Tags)
	}
}

func TestIDFromLink(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"https://movie.douban.com/subject/1292052/", "1292052"},
		{"https://www.douban.com/game/10734307/", "10734307"},
		{"https://movie.douban.com/subject/1292052", "1292052"},
		{"https://movie.douban.com/celebrity/1054521/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		doc := parseDoc(t, `<a href="`+tt.href+`">x</a>`)
		if got := idFromLink(doc.Find("a")); got != tt.want {
			t.Errorf("idFromLink(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestRatingFromClasses(t *testing.T) {
	tests := []struct {
		classes string
		want    int
	}{
		{"rating5-t", 5},
		{"rating1-t", 1},
		{"rating-star allstar40", 4},
		{"rating-star allstar50", 5},
		{"rating-star", 0},
		{"date", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ratingFromClasses(tt.classes); got != tt.want {
			t.Errorf("ratingFromClasses(%q) = %d, want %d", tt.classes, got, tt.want)
		}
	}
}

func TestParseTagsText(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"标签: 科幻 中国", []string{"科幻", "中国"}},
		{"标签: 科幻,中国", []string{"科幻", "中国"}},
		{"科幻 中国", []string{"科幻", "中国"}},
		{"标签:", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := parseTagsText(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("parseTagsText(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseTagsText(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
			}
		}
	}
}

func TestParseMarkDate(t *testing.T) {
	if d := parseMarkDate("2023-11-05 看过", "1"); d == nil || d.Format("2006-01-02") != "2023-11-05" {
		t.Errorf("Expected parsed date, got %v", d)
	}
	if d := parseMarkDate("", "1"); d != nil {
		t.Errorf("Empty text must yield nil, got %v", d)
	}
	if d := parseMarkDate("昨天", "1"); d != nil {
		t.Errorf("Unparseable date must yield nil, got %v", d)
	}
}

func TestNextPageURL(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"relative",
			`<html><head><link rel="next" href="/people/u/collect?start=30"></head></html>`,
			"https://movie.douban.com/people/u/collect?start=30",
		},
		{
			"absolute",
			`<html><head><link rel="next" href="https://movie.douban.com/people/u/collect?start=60"></head></html>`,
			"https://movie.douban.com/people/u/collect?start=60",
		},
		{
			"missing",
			`<html><head></head></html>`,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextPageURL(parseDoc(t, tt.html), "https://movie.douban.com")
			if got != tt.want {
				t.Errorf("nextPageURL = %q, want %q", got, tt.want)
			}
		})
	}
}
