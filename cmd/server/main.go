package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"storefront-api/internal/config"
	"storefront-api/internal/services"
	"storefront-api/internal/sources"
	"storefront-api/pkg/browser"
	"storefront-api/pkg/cache"
	"storefront-api/pkg/logger"
	"storefront-api/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache = cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.DB, cfg.Redis.TTL)
	}
	defer redisCache.Close()

	var fetcher sources.Fetcher
	switch cfg.Sources.Fetcher {
	case "browser":
		chrome := browser.NewChromeFetcher(cfg.Sources.BrowserPath, cfg.Sources.UserAgent, cfg.Sources.Timeout)
		defer chrome.Close()
		fetcher = chrome
	default:
		fetcher = sources.NewHTTPFetcher(cfg.Sources.UserAgent, cfg.Sources.Timeout, cfg.Sources.MaxBodySize, cfg.Sources.Debug)
	}

	srv, err := newServer(cfg, fetcher, redisCache)
	if err != nil {
		log.Fatalf("Failed to initialise server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := srv.catalog.Load(ctx, false); err != nil {
		log.Errorf("Initial catalog load failed, serving 503 until reload: %v", err)
	}
	go srv.sessions.RunJanitor(ctx, time.Minute)
	go srv.limiters.runJanitor(ctx, time.Minute, limiterIdle)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Starting storefront server on :%s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Failed to shutdown HTTP server gracefully: %v", err)
	}
	log.Info("Server shutdown completed")
}

func newServer(cfg *config.Config, fetcher sources.Fetcher, redisCache *cache.RedisCache) (*server, error) {
	urls := cfg.SourceURLs()
	srcs := make([]sources.Source, 0, len(sources.Kinds))
	for _, kind := range sources.Kinds {
		if urls[string(kind)] == "" {
			log.Warnf("No URL configured for %s source", kind)
		}
		srcs = append(srcs, sources.Source{Kind: kind, URL: urls[string(kind)]})
	}

	engine, err := services.NewBrowseEngine(cfg.Search.Fuzzy, cfg.Search.MinScore, cfg.Search.Locale)
	if err != nil {
		return nil, err
	}

	formatter, err := utils.NewCurrencyFormatter(cfg.Checkout.Locale, cfg.Checkout.Currency)
	if err != nil {
		return nil, fmt.Errorf("currency formatter: %w", err)
	}
	if cfg.Checkout.Phone == "" {
		log.Warn("WHATSAPP_NUMBER is not set, checkout links will have no recipient")
	}

	return &server{
		cfg:        cfg,
		catalog:    services.NewCatalogService(srcs, cfg.Sources.Format, fetcher, redisCache, cfg.Sources.Timeout*2),
		engine:     engine,
		sessions:   services.NewSessionStore(cfg.Session.TTL, cfg.Search.ItemsPerPage),
		serializer: services.NewSerializer(formatter, cfg.Checkout.Phone, cfg.Checkout.URLTemplate),
		formatter:  formatter,
		cache:      redisCache,
		limiters:   newRateLimiters(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
	}, nil
}
