package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itswincer/inkstone/app/api"
	"github.com/itswincer/inkstone/app/cfg"
	"github.com/itswincer/inkstone/app/comments"
	"github.com/itswincer/inkstone/app/database"
	"github.com/itswincer/inkstone/app/douban"
	"github.com/itswincer/inkstone/app/feed"
	"github.com/itswincer/inkstone/app/identity"
	"github.com/itswincer/inkstone/app/kudos"
	"github.com/itswincer/inkstone/app/paths"
	"github.com/itswincer/inkstone/app/pulse"
	"github.com/itswincer/inkstone/app/search"
	"github.com/itswincer/inkstone/app/tasks"
)

func main() {
	config, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if config == nil {
		// Help was shown, exit gracefully
		return
	}

	slog.Info("Starting inkstone", "version", config.Version, "mode", config.Mode)

	httpClient := &http.Client{Timeout: config.RequestTimeout}

	index, err := search.Open(config.IndexDir)
	if err != nil {
		slog.Error("Failed to open search index", "dir", config.IndexDir, "error", err)
		os.Exit(1)
	}
	defer index.Close()

	// The store is optional: without a database URL, search and the
	// content pipeline still work and the store-backed endpoints
	// answer 503.
	var db *database.DB
	if config.DatabaseURL != "" {
		db, err = database.NewConnection(config.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		version, dirty, err := database.RunMigrations(db)
		if err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("Database ready", "migration_version", version, "dirty", dirty)
	} else {
		slog.Warn("No database configured, store-backed endpoints disabled")
	}

	validSet := paths.NewSet()
	pathsLoader := paths.NewLoader(validSet, httpClient)
	ingester := feed.NewIngester(index, httpClient)
	signer := identity.NewSigner(config.CookieSecret, config.StatsSecret)

	var kudosCache *kudos.Cache
	var recorder *pulse.Recorder
	var searchEvents api.SearchEventStore
	var doubanStore api.DoubanStore
	var commentsStore api.CommentsStore
	var kudosStore api.KudosStore
	var pulseSites api.PulseStore
	var crawler *douban.Crawler
	var mirror *comments.Mirror

	if db != nil {
		kudosRepo := database.NewKudosRepository(db)
		kudosCache = kudos.NewCache(kudosRepo)
		kudosStore = kudosRepo
		pulseRepo := database.NewPulseRepository(db)
		recorder = pulse.NewRecorder(pulseRepo, validSet)
		pulseSites = pulseRepo
		searchEvents = database.NewSearchEventRepository(db)
		doubanRepo := database.NewDoubanRepository(db)
		doubanStore = doubanRepo
		commentsRepo := database.NewCommentsRepository(db)
		commentsStore = commentsRepo
		crawler = douban.NewCrawler(doubanRepo, httpClient)
		mirror = comments.NewMirror(comments.NewClient(httpClient), commentsRepo)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 5*time.Minute)
	if config.ValidPathsURL != "" {
		if err := pathsLoader.Refresh(startupCtx); err != nil {
			slog.Warn("Initial valid-paths load failed", "error", err)
		}
	}

	if config.Rebuild {
		slog.Info("Rebuilding search index from feed")
		if err := ingester.Rebuild(startupCtx); err != nil {
			slog.Error("Index rebuild failed", "error", err)
			os.Exit(1)
		}
		if crawler != nil && crawler.Configured() {
			slog.Info("Recrawling douban marks")
			if err := crawler.Crawl(startupCtx, true); err != nil {
				slog.Warn("Douban recrawl failed", "error", err)
			}
		}
	}
	cancelStartup()

	if kudosCache != nil {
		if err := kudosCache.Warm(time.Now()); err != nil {
			slog.Warn("Failed to warm kudos cache", "error", err)
		}
	}

	var scheduler *tasks.Scheduler
	if config.WorkerEnabled() {
		scheduler = tasks.NewScheduler(buildTasks(config, ingester, pathsLoader, crawler, mirror, kudosCache)...)
		scheduler.Start()
		defer scheduler.Stop()
		slog.Info("Background scheduler started")
	}

	if !config.APIEnabled() {
		waitForShutdown(nil, nil)
		return
	}

	// Interface fields get explicit non-nil checks so a nil pointer
	// never hides inside a non-nil interface value.
	deps := api.Deps{
		Index:        index,
		Signer:       signer,
		ValidSet:     validSet,
		KudosCache:   kudosCache,
		Recorder:     recorder,
		SearchEvents: searchEvents,
		DoubanMarks:  doubanStore,
		Comments:     commentsStore,
		KudosStore:   kudosStore,
		PulseSites:   pulseSites,
		Ingester:     ingester,
	}
	if scheduler != nil {
		deps.Scheduler = scheduler
	}
	if crawler != nil {
		deps.Crawler = crawler
	}
	if mirror != nil {
		deps.Mirror = mirror
	}
	handler := api.NewHandler(deps)

	httpServer := &http.Server{
		Addr:         config.HTTPAddr,
		Handler:      api.NewServer(handler, signer),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", config.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	waitForShutdown(httpServer, serverErrChan)

	// Flush pending kudos before the process exits; the scheduler
	// deferred Stop runs after this.
	if kudosCache != nil {
		if err := kudosCache.Flush(); err != nil {
			slog.Warn("Final kudos flush failed", "error", err)
		}
	}

	slog.Info("Shutdown complete")
}

func buildTasks(config *cfg.Cfg, ingester *feed.Ingester, pathsLoader *paths.Loader,
	crawler *douban.Crawler, mirror *comments.Mirror, kudosCache *kudos.Cache) []tasks.Task {
	list := []tasks.Task{
		tasks.FeedRefreshTask(ingester, config.PollInterval),
	}

	if config.ValidPathsURL != "" {
		list = append(list, tasks.ValidPathsRefreshTask(pathsLoader, config.PollInterval))
	}
	if crawler != nil && crawler.Configured() {
		list = append(list, tasks.DoubanCrawlTask(crawler, config.DoubanPollInterval))
	}
	if mirror != nil {
		list = append(list, tasks.CommentsMirrorTask(mirror, config.CommentsPollInterval))
	}
	if kudosCache != nil {
		list = append(list, tasks.KudosFlushTask(kudosCache, config.KudosFlushInterval))
	}

	return list
}

func waitForShutdown(httpServer *http.Server, serverErrChan chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if serverErrChan == nil {
		sig := <-sigChan
		slog.Info("Received signal", "signal", sig.String())
		return
	}

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown error", "error", err)
		}
	}
}
