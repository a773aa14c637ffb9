package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itswincer/inkstone/app/cfg"
	"github.com/itswincer/inkstone/app/comments"
	"github.com/itswincer/inkstone/app/database"
	"github.com/itswincer/inkstone/app/identity"
	"github.com/itswincer/inkstone/app/kudos"
	"github.com/itswincer/inkstone/app/paths"
	"github.com/itswincer/inkstone/app/pulse"
	"github.com/itswincer/inkstone/app/search"
)

const (
	defaultSearchLimit = 20
	maxPathLen         = 512
)

// Deps bundles everything the handlers reach. Store-backed fields are
// nil when the database is not configured; their endpoints answer 503
// then.
type Deps struct {
	Index        *search.Index
	Signer       *identity.Signer
	ValidSet     *paths.Set
	KudosCache   *kudos.Cache
	Recorder     *pulse.Recorder
	SearchEvents SearchEventStore
	DoubanMarks  DoubanStore
	Comments     CommentsStore
	Scheduler    Triggerer
	Ingester     ContentIndexer
	Crawler      DoubanCrawler
	Mirror       CommentsSyncer
	KudosStore   KudosStore
	PulseSites   PulseStore
}

// Handler serves every HTTP endpoint.
type Handler struct {
	index        *search.Index
	signer       *identity.Signer
	validSet     *paths.Set
	kudosCache   *kudos.Cache
	recorder     *pulse.Recorder
	searchEvents SearchEventStore
	doubanMarks  DoubanStore
	comments     CommentsStore
	scheduler    Triggerer
	ingester     ContentIndexer
	crawler      DoubanCrawler
	mirror       CommentsSyncer
	kudosStore   KudosStore
	pulseSites   PulseStore

	maxSearchLimit int
	webhookSecret  string
	adminToken     string
	indexDir       string
}

func NewHandler(deps Deps) *Handler {
	config := cfg.Get()

	return &Handler{
		index:          deps.Index,
		signer:         deps.Signer,
		validSet:       deps.ValidSet,
		kudosCache:     deps.KudosCache,
		recorder:       deps.Recorder,
		searchEvents:   deps.SearchEvents,
		doubanMarks:    deps.DoubanMarks,
		comments:       deps.Comments,
		scheduler:      deps.Scheduler,
		ingester:       deps.Ingester,
		crawler:        deps.Crawler,
		mirror:         deps.Mirror,
		kudosStore:     deps.KudosStore,
		pulseSites:     deps.PulseSites,
		maxSearchLimit: config.MaxSearchLimit,
		webhookSecret:  config.GithubWebhookSecret,
		adminToken:     config.AdminToken,
		indexDir:       config.IndexDir,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handler) Search(c *gin.Context) {
	h.search(c, false)
}

func (h *Handler) SearchV2(c *gin.Context) {
	h.search(c, true)
}

func (h *Handler) search(c *gin.Context, v2 bool) {
	sort, err := search.ParseSort(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	limit, err := intParam(c, "limit", defaultSearchLimit)
	if err != nil || limit < 1 || limit > h.maxSearchLimit {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "limit is invalid"})
		return
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "offset is invalid"})
		return
	}

	rawQuery := c.Query("q")
	query, err := search.ParseQuery(rawQuery, sort)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := h.index.Search(query, offset, limit)
	if err != nil {
		slog.Error("Search failed", "query", rawQuery, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "search failed"})
		return
	}

	h.recordSearchEvent(query.String(), result)

	if v2 {
		c.JSON(http.StatusOK, searchResponseV2{
			Total:     result.Total,
			ElapsedMS: result.Elapsed.Milliseconds(),
			Hits:      result.Hits,
		})
		return
	}
	c.JSON(http.StatusOK, toSearchResponse(result))
}

// recordSearchEvent is best-effort; a failing stats write never fails
// the search.
func (h *Handler) recordSearchEvent(query string, result *search.Result) {
	if h.searchEvents == nil {
		return
	}
	err := h.searchEvents.Insert(database.SearchEvent{
		Query:       query,
		ResultCount: int(result.Total),
		ElapsedMS:   result.Elapsed.Milliseconds(),
	})
	if err != nil {
		slog.Warn("Failed to record search event", "error", err)
	}
}

func (h *Handler) GetKudos(c *gin.Context) {
	path, ok := h.kudosPath(c)
	if !ok {
		return
	}

	interactionID := h.signer.DailyStatsID(c.GetString(ctxTokenKey), time.Now())
	count, interacted := h.kudosCache.Get(path, interactionID)
	c.JSON(http.StatusOK, kudosResponse{Count: count, Interacted: interacted})
}

func (h *Handler) PutKudos(c *gin.Context) {
	path, ok := h.kudosPath(c)
	if !ok {
		return
	}

	interactionID := h.signer.DailyStatsID(c.GetString(ctxTokenKey), time.Now())
	count, _ := h.kudosCache.Put(path, interactionID, time.Now())
	c.JSON(http.StatusOK, kudosResponse{Count: count, Interacted: true})
}

// kudosPath validates the path parameter and the shared preconditions
// of both kudos endpoints. It writes the error response itself.
func (h *Handler) kudosPath(c *gin.Context) (string, bool) {
	if h.kudosCache == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return "", false
	}

	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "path is required"})
		return "", false
	}
	if len(path) > maxPathLen || !strings.HasPrefix(path, "/") || strings.ContainsAny(path, " \t") {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "path is invalid"})
		return "", false
	}

	if !h.validSet.Ready() {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "valid paths not loaded"})
		return "", false
	}
	if !h.validSet.Contains(path) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "path is not allowed"})
		return "", false
	}

	return path, true
}

func (h *Handler) PulsePageView(c *gin.Context) {
	if h.recorder == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	var req pageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err := h.recorder.RecordPageView(pulse.PageView{
		PageInstanceID: req.PageInstanceID,
		Path:           req.Path,
		Site:           req.Site,
		UserStatsID:    h.signer.DailyStatsID(c.GetString(ctxTokenKey), time.Now()),
		UserAgent:      c.GetHeader("User-Agent"),
		Referer:        c.GetHeader("Referer"),
		CFCountry:      c.GetHeader("CF-IPCountry"),
		ForwardedFor:   c.GetHeader("X-Forwarded-For"),
	})
	if err != nil {
		h.pulseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) PulseEngage(c *gin.Context) {
	if h.recorder == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	var req engageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.recorder.RecordEngagement(req.PageInstanceID, req.DurationMS); err != nil {
		h.pulseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) pulseError(c *gin.Context, err error) {
	var ve *pulse.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Error()})
	case errors.Is(err, pulse.ErrNotReady):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, pulse.ErrPathNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		slog.Error("Pulse write failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handler) GetDoubanMarks(c *gin.Context) {
	if h.doubanMarks == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	year := time.Now().UTC().Year()
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "year is invalid"})
			return
		}
		year = parsed
	}

	items, err := h.doubanMarks.MarksByYear(year)
	if err != nil {
		slog.Error("Failed to load douban marks", "year", year, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	marks := make([]doubanMark, 0, len(items))
	for _, item := range items {
		date := ""
		if item.Date != nil {
			date = item.Date.Format("2006-01-02")
		}
		marks = append(marks, doubanMark{
			Title:  item.Title,
			Poster: item.Poster,
			Type:   item.Type,
			Rating: item.Rating,
			Date:   date,
			URL:    doubanURL(item.Type, item.ID),
		})
	}

	c.JSON(http.StatusOK, doubanMarksResponse{Total: len(marks), Items: marks})
}

func doubanURL(itemType, id string) string {
	switch itemType {
	case "movie":
		return "https://movie.douban.com/subject/" + id + "/"
	case "book":
		return "https://book.douban.com/subject/" + id + "/"
	default:
		return "https://www.douban.com/game/" + id + "/"
	}
}

func (h *Handler) GetComments(c *gin.Context) {
	postID := strings.TrimSpace(c.Query("post_id"))
	if postID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "post_id is required"})
		return
	}
	if len(postID) > maxPathLen || !strings.HasPrefix(postID, "/") || strings.ContainsAny(postID, " \t") {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "post_id is invalid"})
		return
	}

	if h.comments == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	discussion, err := h.comments.GetDiscussionByPostID(postID)
	if err != nil {
		slog.Error("Failed to load discussion", "post_id", postID, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if discussion == nil {
		c.JSON(http.StatusOK, commentThread{
			PostID:   postID,
			Total:    0,
			Comments: []*comments.Node{},
		})
		return
	}

	items, err := h.comments.ListComments(discussion.DiscussionID)
	if err != nil {
		slog.Error("Failed to load comments", "post_id", postID, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, commentThread{
		PostID:        postID,
		DiscussionURL: &discussion.URL,
		Total:         len(items),
		Comments:      comments.Tree(items),
	})
}

func intParam(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
