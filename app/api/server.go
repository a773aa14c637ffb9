package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itswincer/inkstone/app/cfg"
	"github.com/itswincer/inkstone/app/identity"
)

// NewServer creates the HTTP engine with all routes configured
func NewServer(handler *Handler, signer *identity.Signer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.Get().CORSAllowOrigins))

	setupRoutes(r, handler, signer)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, signer *identity.Signer) {
	r.GET("/health", handler.GetHealth)

	r.GET("/search", queryLengthMiddleware(), handler.Search)
	r.GET("/v2/search", queryLengthMiddleware(), handler.SearchV2)

	r.GET("/kudos", bidCookieMiddleware(signer, false), handler.GetKudos)
	r.PUT("/kudos", bidCookieMiddleware(signer, true), handler.PutKudos)

	r.POST("/pulse/pv", bidCookieMiddleware(signer, false), handler.PulsePageView)
	r.POST("/pulse/engage", bidCookieMiddleware(signer, false), handler.PulseEngage)

	r.GET("/douban/marks", handler.GetDoubanMarks)
	r.GET("/v2/comments", handler.GetComments)

	r.POST("/webhook/github", handler.GithubWebhook)

	admin := r.Group("/v2/admin", adminAuthMiddleware(handler))
	admin.GET("/health", handler.AdminHealth)
	admin.GET("/pulse/sites", handler.AdminPulseSites)
	admin.GET("/kudos", handler.AdminKudosStatus)
	admin.POST("/kudos/flush", handler.AdminKudosFlush)
	admin.GET("/search/status", handler.AdminSearchStatus)
	admin.GET("/search/stats", handler.AdminSearchStats)
	admin.POST("/search/refresh", handler.AdminSearchRefresh)
	admin.POST("/search/reindex", handler.AdminSearchReindex)
	admin.GET("/douban/status", handler.AdminDoubanStatus)
	admin.POST("/douban/refresh", handler.AdminDoubanRefresh)
	admin.POST("/douban/rebuild", handler.AdminDoubanRebuild)
	admin.GET("/comments/status", handler.AdminCommentsStatus)
	admin.POST("/comments/sync", handler.AdminCommentsSync)

	// Return 204 to avoid 404s from browsers probing for an icon.
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
