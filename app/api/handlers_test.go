package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itswincer/inkstone/app/cfg"
	"github.com/itswincer/inkstone/app/database"
	"github.com/itswincer/inkstone/app/identity"
	"github.com/itswincer/inkstone/app/kudos"
	"github.com/itswincer/inkstone/app/paths"
	"github.com/itswincer/inkstone/app/pulse"
	"github.com/itswincer/inkstone/app/search"
	"github.com/itswincer/inkstone/app/tasks"
)

type fakeKudosRepo struct{}

func (fakeKudosRepo) InsertBatch(entries []database.KudosEntry) error { return nil }
func (fakeKudosRepo) CountsByPath() (map[string]int64, error)         { return nil, nil }
func (fakeKudosRepo) EntriesSince(since time.Time) ([]database.KudosEntry, error) {
	return nil, nil
}

type fakePulseRepo struct {
	events      int
	engagements int
}

func (f *fakePulseRepo) InsertPageView(ev database.PulseEvent) error { f.events++; return nil }
func (f *fakePulseRepo) UpsertVisitor(site, userStatsID string, seenAt time.Time, sourceType, refHost string) error {
	return nil
}
func (f *fakePulseRepo) UpdateEngagement(pageInstanceID string, durationMS int64) error {
	f.engagements++
	return nil
}

type fakeDoubanStore struct {
	items    []database.DoubanItem
	overview database.DoubanOverview
	year     int
}

func (f *fakeDoubanStore) MarksByYear(year int) ([]database.DoubanItem, error) {
	f.year = year
	return f.items, nil
}

func (f *fakeDoubanStore) Overview() (database.DoubanOverview, error) {
	return f.overview, nil
}

type fakeCommentsStore struct {
	discussion *database.CommentDiscussion
	items      []database.CommentItem
	overview   database.CommentsOverview
}

func (f *fakeCommentsStore) GetDiscussionByPostID(postID string) (*database.CommentDiscussion, error) {
	return f.discussion, nil
}

func (f *fakeCommentsStore) ListComments(discussionID string) ([]database.CommentItem, error) {
	return f.items, nil
}

func (f *fakeCommentsStore) Overview() (database.CommentsOverview, error) {
	return f.overview, nil
}

type fakeTriggerer struct {
	triggered []string
	status    map[string]tasks.TaskStatus
}

func (f *fakeTriggerer) Trigger(names ...string) {
	f.triggered = append(f.triggered, names...)
}

func (f *fakeTriggerer) Status() map[string]tasks.TaskStatus {
	return f.status
}

type testEnv struct {
	router    *gin.Engine
	handler   *Handler
	signer    *identity.Signer
	pulseRepo *fakePulseRepo
	douban    *fakeDoubanStore
	comments  *fakeCommentsStore
	triggerer *fakeTriggerer
}

func newTestEnv(t *testing.T, posts ...search.Post) *testEnv {
	t.Helper()

	cfg.Set(&cfg.Cfg{
		MaxSearchLimit:      50,
		GithubWebhookSecret: "whsec",
		AdminToken:          "admintok",
		IndexDir:            "./data/index",
	})

	index, err := search.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { index.Close() })
	if len(posts) > 0 {
		if err := index.Apply(posts, nil); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	validSet := paths.NewSet()
	validSet.Replace([]string{"/posts/hello/", "/about/"})

	signer := identity.NewSigner("cookie-secret", "stats-secret")
	cache := kudos.NewCache(fakeKudosRepo{})
	pulseRepo := &fakePulseRepo{}
	recorder := pulse.NewRecorder(pulseRepo, validSet)
	douban := &fakeDoubanStore{}
	commentsStore := &fakeCommentsStore{}
	triggerer := &fakeTriggerer{}

	handler := NewHandler(Deps{
		Index:       index,
		Signer:      signer,
		ValidSet:    validSet,
		KudosCache:  cache,
		Recorder:    recorder,
		DoubanMarks: douban,
		Comments:    commentsStore,
		Scheduler:   triggerer,
	})

	env := &testEnv{
		router:    NewServer(handler, signer),
		handler:   handler,
		signer:    signer,
		pulseRepo: pulseRepo,
		douban:    douban,
		comments:  commentsStore,
		triggerer: triggerer,
	}
	return env
}

func (e *testEnv) request(method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) mintCookie(t *testing.T) string {
	t.Helper()
	_, value, err := e.signer.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return identity.CookieName + "=" + value
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", w.Body.String(), err)
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("Expected 200 ok, got %d %q", w.Code, w.Body.String())
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodGet, "/search?q=", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	if got := errorOf(t, w); got != "q is required" {
		t.Errorf("Unexpected error message: %q", got)
	}
}

func TestSearch_OversizedQueryString(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodGet, "/search?q="+strings.Repeat("a", 513), "", nil)
	if w.Code != http.StatusRequestURITooLong {
		t.Errorf("Expected 414, got %d", w.Code)
	}
}

func TestSearch_InvalidLimit(t *testing.T) {
	env := newTestEnv(t)
	for _, limit := range []string{"0", "-1", "51", "abc"} {
		w := env.request(http.MethodGet, "/search?q=x&limit="+limit, "", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, w.Code)
		}
	}
}

func searchPost(id, title string, tags []string, published time.Time) search.Post {
	return search.Post{
		ID:          id,
		Title:       title,
		Content:     "body of " + title,
		Tags:        tags,
		URL:         "/posts/" + id + "/",
		PublishedAt: published,
		UpdatedAt:   published,
	}
}

func TestSearch_KeywordAndTagFilter(t *testing.T) {
	env := newTestEnv(t,
		searchPost("p1", "Tantivy intro", []string{"Rust", "Search"}, time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)),
		searchPost("p2", "Something else", []string{"Python"}, time.Date(2021, 2, 2, 0, 0, 0, 0, time.UTC)),
	)

	w := env.request(http.MethodGet, "/v2/search?q=Tantivy%20tags:Rust", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp searchResponseV2
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Hits) != 1 {
		t.Fatalf("Expected single hit, got total=%d hits=%d", resp.Total, len(resp.Hits))
	}
	hit := resp.Hits[0]
	if hit.ID != "p1" {
		t.Errorf("Expected p1, got %s", hit.ID)
	}
	if !hit.Matched.Title {
		t.Error("Expected title match")
	}
	if len(hit.Matched.Tags) != 1 || hit.Matched.Tags[0] != "Rust" {
		t.Errorf("Expected matched tag Rust, got %v", hit.Matched.Tags)
	}
	if !strings.Contains(hit.Title, "<b>Tantivy</b>") {
		t.Errorf("Expected highlighted title, got %q", hit.Title)
	}
}

func TestSearch_RangeOnly(t *testing.T) {
	env := newTestEnv(t,
		searchPost("p1", "old post", nil, time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)),
		searchPost("p2", "new post", nil, time.Date(2021, 2, 2, 0, 0, 0, 0, time.UTC)),
	)

	w := env.request(http.MethodGet, "/search?q=range:2020-01-01~", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Hits) != 1 || resp.Hits[0].ID != "p2" {
		t.Errorf("Expected only p2, got %+v", resp)
	}
}

func TestSearch_V1OmitsV2Fields(t *testing.T) {
	env := newTestEnv(t,
		searchPost("p1", "Tantivy intro", nil, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)),
	)

	w := env.request(http.MethodGet, "/search?q=Tantivy", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := raw["elapsed_ms"]; ok {
		t.Error("v1 response must not carry elapsed_ms")
	}
	hits := raw["hits"].([]interface{})
	if _, ok := hits[0].(map[string]interface{})["matched"]; ok {
		t.Error("v1 hit must not carry the matched breakdown")
	}
}

func TestKudos_PutRequiresCookie(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodPut, "/kudos?path=/posts/hello/", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without cookie, got %d", w.Code)
	}
}

func TestKudos_GetMintsCookie(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodGet, "/kudos?path=/posts/hello/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	setCookie := w.Header().Get("Set-Cookie")
	if !strings.HasPrefix(setCookie, identity.CookieName+"=") {
		t.Errorf("Expected minted bid cookie, got %q", setCookie)
	}
	for _, attr := range []string{"HttpOnly", "Secure", "SameSite=Lax", "Max-Age=31536000", "Path=/"} {
		if !strings.Contains(setCookie, attr) {
			t.Errorf("Cookie missing %s: %q", attr, setCookie)
		}
	}

	var resp kudosResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Count != 0 || resp.Interacted {
		t.Errorf("Fresh path must be 0/false, got %+v", resp)
	}
}

func TestKudos_IdempotentPut(t *testing.T) {
	env := newTestEnv(t)
	cookieB := env.mintCookie(t)

	for i := 0; i < 2; i++ {
		w := env.request(http.MethodPut, "/kudos?path=/posts/hello/", "", map[string]string{"Cookie": cookieB})
		if w.Code != http.StatusOK {
			t.Fatalf("PUT %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	w := env.request(http.MethodGet, "/kudos?path=/posts/hello/", "", map[string]string{"Cookie": cookieB})
	var resp kudosResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Count != 1 || !resp.Interacted {
		t.Errorf("Expected count=1 interacted=true, got %+v", resp)
	}

	cookieC := env.mintCookie(t)
	w = env.request(http.MethodPut, "/kudos?path=/posts/hello/", "", map[string]string{"Cookie": cookieC})
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Second visitor must raise the count to 2, got %d", resp.Count)
	}
}

func TestKudos_PathValidation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.mintCookie(t)

	tests := []struct {
		target string
		status int
	}{
		{"/kudos", http.StatusBadRequest},
		{"/kudos?path=relative", http.StatusBadRequest},
		{"/kudos?path=/unknown/", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := env.request(http.MethodGet, tt.target, "", map[string]string{"Cookie": cookie})
		if w.Code != tt.status {
			t.Errorf("GET %s: expected %d, got %d", tt.target, tt.status, w.Code)
		}
	}
}

func TestKudos_WithoutStore(t *testing.T) {
	env := newTestEnv(t)
	env.handler.kudosCache = nil

	w := env.request(http.MethodGet, "/kudos?path=/posts/hello/", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without store, got %d", w.Code)
	}
}

func TestPulse_PageView(t *testing.T) {
	env := newTestEnv(t)
	body := `{"page_instance_id":"11111111-1111-1111-1111-111111111111","path":"/posts/hello/"}`

	w := env.request(http.MethodPost, "/pulse/pv", body, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if env.pulseRepo.events != 1 {
		t.Errorf("Expected one event recorded, got %d", env.pulseRepo.events)
	}
}

func TestPulse_PageViewUnknownPath(t *testing.T) {
	env := newTestEnv(t)
	body := `{"page_instance_id":"11111111-1111-1111-1111-111111111111","path":"/unknown/"}`

	w := env.request(http.MethodPost, "/pulse/pv", body, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestPulse_Engage(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodPost, "/pulse/engage",
		`{"page_instance_id":"11111111-1111-1111-1111-111111111111","duration_ms":4200}`, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if env.pulseRepo.engagements != 1 {
		t.Errorf("Expected one engagement update, got %d", env.pulseRepo.engagements)
	}

	w = env.request(http.MethodPost, "/pulse/engage",
		`{"page_instance_id":"nope","duration_ms":1}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad uuid, got %d", w.Code)
	}
}

func TestDoubanMarks(t *testing.T) {
	env := newTestEnv(t)
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	env.douban.items = []database.DoubanItem{
		{Type: "movie", ID: "1292052", Title: "肖申克的救赎", Rating: 5, Date: &date},
		{Type: "game", ID: "10734307", Title: "塞尔达传说", Date: &date},
	}

	w := env.request(http.MethodGet, "/douban/marks?year=2024", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if env.douban.year != 2024 {
		t.Errorf("Expected year 2024 passed through, got %d", env.douban.year)
	}

	var resp doubanMarksResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("Expected 2 marks, got %d", resp.Total)
	}
	if resp.Items[0].URL != "https://movie.douban.com/subject/1292052/" {
		t.Errorf("Unexpected movie url: %q", resp.Items[0].URL)
	}
	if resp.Items[1].URL != "https://www.douban.com/game/10734307/" {
		t.Errorf("Unexpected game url: %q", resp.Items[1].URL)
	}
	if resp.Items[0].Date != "2024-03-10" {
		t.Errorf("Unexpected date: %q", resp.Items[0].Date)
	}
}

func TestDoubanMarks_InvalidYear(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodGet, "/douban/marks?year=abc", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestComments_MissingPostID(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodGet, "/v2/comments", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestComments_UnknownPostIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodGet, "/v2/comments?post_id=/posts/none/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp commentThread
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Total != 0 || resp.DiscussionURL != nil || len(resp.Comments) != 0 {
		t.Errorf("Expected empty thread, got %+v", resp)
	}
}

func TestComments_Thread(t *testing.T) {
	env := newTestEnv(t)
	parent := "C_1"
	env.comments.discussion = &database.CommentDiscussion{
		PostID:       "/posts/hello/",
		DiscussionID: "D_1",
		URL:          "https://github.com/o/r/discussions/7",
	}
	env.comments.items = []database.CommentItem{
		{CommentID: "C_1", BodyHTML: "<p>first</p>"},
		{CommentID: "C_2", ParentID: &parent, BodyHTML: "<p>reply</p>"},
	}

	w := env.request(http.MethodGet, "/v2/comments?post_id=/posts/hello/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp commentThread
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Comments) != 1 {
		t.Fatalf("Expected one root with a reply, got %+v", resp)
	}
	if len(resp.Comments[0].Replies) != 1 || resp.Comments[0].Replies[0].ID != "C_2" {
		t.Errorf("Unexpected tree: %+v", resp.Comments[0])
	}
}

func signWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_Ping(t *testing.T) {
	env := newTestEnv(t)
	body := `{"zen":"hi"}`
	w := env.request(http.MethodPost, "/webhook/github", body, map[string]string{
		"X-GitHub-Event":      "ping",
		"X-Hub-Signature-256": signWebhook("whsec", []byte(body)),
	})
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for ping, got %d", w.Code)
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodPost, "/webhook/github", `{}`, map[string]string{
		"X-GitHub-Event":      "ping",
		"X-Hub-Signature-256": "sha256=deadbeef",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestWebhook_MissingHeaders(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodPost, "/webhook/github", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestWebhook_CheckRunTriggersRefresh(t *testing.T) {
	env := newTestEnv(t)
	body := `{"action":"completed","check_run":{"status":"completed","conclusion":"success"}}`
	w := env.request(http.MethodPost, "/webhook/github", body, map[string]string{
		"X-GitHub-Event":      "check_run",
		"X-Hub-Signature-256": signWebhook("whsec", []byte(body)),
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if len(env.triggerer.triggered) != 2 {
		t.Fatalf("Expected two task triggers, got %v", env.triggerer.triggered)
	}
}

func TestWebhook_FailedCheckRunIgnored(t *testing.T) {
	env := newTestEnv(t)
	body := `{"action":"completed","check_run":{"status":"completed","conclusion":"failure"}}`
	w := env.request(http.MethodPost, "/webhook/github", body, map[string]string{
		"X-GitHub-Event":      "check_run",
		"X-Hub-Signature-256": signWebhook("whsec", []byte(body)),
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if len(env.triggerer.triggered) != 0 {
		t.Errorf("Failed check run must not trigger, got %v", env.triggerer.triggered)
	}
}

func TestWebhook_NoSecret(t *testing.T) {
	env := newTestEnv(t)
	env.handler.webhookSecret = ""
	w := env.request(http.MethodPost, "/webhook/github", `{}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}
