package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultStatsRange = 30 * 24 * time.Hour
	defaultStatsLimit = 20
	maxStatsLimit     = 200
)

type adminJobStatus struct {
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	LastSuccessAt *time.Time `json:"last_success_at"`
}

type adminHealthResponse struct {
	Status  string                    `json:"status"`
	Modules map[string]bool           `json:"modules"`
	Jobs    map[string]adminJobStatus `json:"jobs"`
}

type pulseSiteEntry struct {
	Site        string     `json:"site"`
	Events      int64      `json:"events"`
	Visitors    int64      `json:"visitors"`
	LastEventAt *time.Time `json:"last_event_at"`
}

type kudosStatusResponse struct {
	Cache    kudosCacheStatus `json:"cache"`
	Database kudosTableStatus `json:"database"`
}

type kudosCacheStatus struct {
	Paths   int   `json:"paths"`
	Total   int64 `json:"total"`
	Pending int   `json:"pending"`
}

type kudosTableStatus struct {
	Paths int64 `json:"paths"`
	Total int64 `json:"total"`
}

type doubanStatusResponse struct {
	Enabled  bool              `json:"enabled"`
	Total    int64             `json:"total"`
	WithDate int64             `json:"with_date"`
	LastDate string            `json:"last_date,omitempty"`
	Types    []doubanTypeEntry `json:"types"`
}

type doubanTypeEntry struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type commentsStatusResponse struct {
	Enabled       bool       `json:"enabled"`
	Discussions   int64      `json:"discussions"`
	Comments      int64      `json:"comments"`
	LastUpdatedAt *time.Time `json:"last_updated_at"`
}

type searchStatsResponse struct {
	Range      statsRange        `json:"range"`
	Summary    statsSummary      `json:"summary"`
	TopQueries []statsQueryEntry `json:"top_queries"`
}

type statsRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type statsSummary struct {
	Total          int64   `json:"total"`
	ZeroResults    int64   `json:"zero_results"`
	ZeroResultRate float64 `json:"zero_result_rate"`
	AvgElapsedMS   float64 `json:"avg_elapsed_ms"`
}

type statsQueryEntry struct {
	Query        string  `json:"query"`
	Count        int64   `json:"count"`
	ZeroResults  int64   `json:"zero_results"`
	AvgElapsedMS float64 `json:"avg_elapsed_ms"`
}

type searchStatusResponse struct {
	IndexDir string `json:"index_dir"`
	DocCount uint64 `json:"doc_count"`
}

func (h *Handler) AdminHealth(c *gin.Context) {
	jobs := make(map[string]adminJobStatus)
	if h.scheduler != nil {
		for name, status := range h.scheduler.Status() {
			jobs[name] = adminJobStatus{
				LastAttemptAt: timeOrNil(status.LastAttempt),
				LastSuccessAt: timeOrNil(status.LastSuccess),
			}
		}
	}

	c.JSON(http.StatusOK, adminHealthResponse{
		Status: "ok",
		Modules: map[string]bool{
			"database": h.kudosStore != nil,
			"worker":   h.scheduler != nil,
			"douban":   h.crawler != nil && h.crawler.Configured(),
			"comments": h.mirror != nil && h.mirror.Configured(),
		},
		Jobs: jobs,
	})
}

func (h *Handler) AdminPulseSites(c *gin.Context) {
	if h.pulseSites == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	overview, err := h.pulseSites.SiteOverview()
	if err != nil {
		slog.Error("Failed to load pulse site overview", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	sites := make([]pulseSiteEntry, 0, len(overview))
	for _, site := range overview {
		sites = append(sites, pulseSiteEntry{
			Site:        site.Site,
			Events:      site.Events,
			Visitors:    site.Visitors,
			LastEventAt: timeOrNil(site.LastEventAt),
		})
	}

	c.JSON(http.StatusOK, gin.H{"sites": sites})
}

func (h *Handler) AdminKudosStatus(c *gin.Context) {
	if h.kudosCache == nil || h.kudosStore == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	overview, err := h.kudosStore.Overview()
	if err != nil {
		slog.Error("Failed to load kudos overview", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	status := h.kudosCache.Status()
	c.JSON(http.StatusOK, kudosStatusResponse{
		Cache:    kudosCacheStatus{Paths: status.Paths, Total: status.Total, Pending: status.Pending},
		Database: kudosTableStatus{Paths: overview.Paths, Total: overview.Total},
	})
}

func (h *Handler) AdminKudosFlush(c *gin.Context) {
	if h.kudosCache == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	if err := h.kudosCache.Flush(); err != nil {
		slog.Error("Admin kudos flush failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "flush failed"})
		return
	}

	status := h.kudosCache.Status()
	c.JSON(http.StatusOK, kudosCacheStatus{Paths: status.Paths, Total: status.Total, Pending: status.Pending})
}

func (h *Handler) AdminDoubanStatus(c *gin.Context) {
	if h.doubanMarks == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	overview, err := h.doubanMarks.Overview()
	if err != nil {
		slog.Error("Failed to load douban overview", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	types := make([]doubanTypeEntry, 0, len(overview.Types))
	for _, tc := range overview.Types {
		types = append(types, doubanTypeEntry{Type: tc.Type, Count: tc.Count})
	}

	c.JSON(http.StatusOK, doubanStatusResponse{
		Enabled:  h.crawler != nil && h.crawler.Configured(),
		Total:    overview.Total,
		WithDate: overview.WithDate,
		LastDate: overview.LastDate,
		Types:    types,
	})
}

func (h *Handler) AdminDoubanRefresh(c *gin.Context) {
	h.adminDoubanCrawl(c, false)
}

func (h *Handler) AdminDoubanRebuild(c *gin.Context) {
	h.adminDoubanCrawl(c, true)
}

func (h *Handler) adminDoubanCrawl(c *gin.Context, rebuild bool) {
	if h.crawler == nil || !h.crawler.Configured() {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "douban crawler not configured"})
		return
	}

	if err := h.crawler.Crawl(c.Request.Context(), rebuild); err != nil {
		slog.Error("Admin douban crawl failed", "rebuild", rebuild, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "crawl failed"})
		return
	}

	h.AdminDoubanStatus(c)
}

func (h *Handler) AdminCommentsStatus(c *gin.Context) {
	if h.comments == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	overview, err := h.comments.Overview()
	if err != nil {
		slog.Error("Failed to load comments overview", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, commentsStatusResponse{
		Enabled:       h.mirror != nil && h.mirror.Configured(),
		Discussions:   overview.Discussions,
		Comments:      overview.Comments,
		LastUpdatedAt: timeOrNil(overview.LastUpdatedAt),
	})
}

func (h *Handler) AdminCommentsSync(c *gin.Context) {
	if h.mirror == nil || !h.mirror.Configured() {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "comments mirror not configured"})
		return
	}

	if err := h.mirror.Sync(c.Request.Context()); err != nil {
		slog.Error("Admin comments sync failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "sync failed"})
		return
	}

	h.AdminCommentsStatus(c)
}

func (h *Handler) AdminSearchStatus(c *gin.Context) {
	count, err := h.index.DocCount()
	if err != nil {
		slog.Error("Failed to read index doc count", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, searchStatusResponse{IndexDir: h.indexDir, DocCount: count})
}

func (h *Handler) AdminSearchRefresh(c *gin.Context) {
	h.adminIndexRun(c, false)
}

func (h *Handler) AdminSearchReindex(c *gin.Context) {
	h.adminIndexRun(c, true)
}

func (h *Handler) adminIndexRun(c *gin.Context, rebuild bool) {
	if h.ingester == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "ingester not configured"})
		return
	}

	run := h.ingester.Refresh
	if rebuild {
		run = h.ingester.Rebuild
	}
	if err := run(c.Request.Context()); err != nil {
		slog.Error("Admin index run failed", "rebuild", rebuild, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "index run failed"})
		return
	}

	h.AdminSearchStatus(c)
}

func (h *Handler) AdminSearchStats(c *gin.Context) {
	if h.searchEvents == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "db not configured"})
		return
	}

	to := time.Now().UTC()
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "to is invalid"})
			return
		}
		// Inclusive end of day.
		to = parsed.Add(24*time.Hour - time.Second)
	}

	from := to.Add(-defaultStatsRange)
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "from is invalid"})
			return
		}
		from = parsed
	}
	if from.After(to) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "from is after to"})
		return
	}

	limit, err := intParam(c, "limit", defaultStatsLimit)
	if err != nil || limit < 1 || limit > maxStatsLimit {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "limit is invalid"})
		return
	}

	stats, err := h.searchEvents.Stats(from, to, limit)
	if err != nil {
		slog.Error("Failed to load search stats", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	var zeroRate float64
	if stats.Total > 0 {
		zeroRate = float64(stats.ZeroResults) / float64(stats.Total)
	}

	top := make([]statsQueryEntry, 0, len(stats.TopQueries))
	for _, q := range stats.TopQueries {
		top = append(top, statsQueryEntry{
			Query:        q.Query,
			Count:        q.Count,
			ZeroResults:  q.ZeroResults,
			AvgElapsedMS: q.AvgElapsedMS,
		})
	}

	c.JSON(http.StatusOK, searchStatsResponse{
		Range: statsRange{From: from.Format("2006-01-02"), To: to.Format("2006-01-02")},
		Summary: statsSummary{
			Total:          stats.Total,
			ZeroResults:    stats.ZeroResults,
			ZeroResultRate: zeroRate,
			AvgElapsedMS:   stats.AvgElapsedMS,
		},
		TopQueries: top,
	})
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
