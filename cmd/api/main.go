package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/newsfuse/newsfuse/internal/aggregator"
	"github.com/newsfuse/newsfuse/internal/api"
	"github.com/newsfuse/newsfuse/internal/config"
	"github.com/newsfuse/newsfuse/internal/health"
	"github.com/newsfuse/newsfuse/internal/processor"
	"github.com/newsfuse/newsfuse/internal/provider"
	"github.com/newsfuse/newsfuse/internal/ratelimit"
	"github.com/newsfuse/newsfuse/internal/scheduler"
	"github.com/newsfuse/newsfuse/internal/storage"
)

func main() {
	cfg := config.Load()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	// 登记各个数据源
	if _, err := store.EnsureSource("newsapi", "NewsAPI", "search"); err != nil {
		log.Fatalf("ensure source newsapi failed: %v", err)
	}
	if _, err := store.EnsureSource("reddit", "Reddit", "discussion"); err != nil {
		log.Fatalf("ensure source reddit failed: %v", err)
	}
	if _, err := store.EnsureSource("rss", "RSS Feeds", "feed"); err != nil {
		log.Fatalf("ensure source rss failed: %v", err)
	}

	// 适配器显式构造、显式注入，凭证只在构造时传入
	providers := []provider.Provider{
		provider.NewNewsAPIProvider(cfg.NewsAPIKey, ""),
		provider.NewRedditProvider(cfg.RedditBaseURL),
		provider.NewFeedProvider(cfg.Content.Feeds),
	}

	limiter := ratelimit.New(cfg.Content.RateLimiterConfigs())
	registry := health.NewRegistry(health.DefaultFailureThreshold, health.DefaultCooldown)
	agg := aggregator.New(providers, limiter, registry)

	p := processor.New()
	s, err := scheduler.New(cfg.CronSpec, agg, p, store, cfg.Content)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()

	// API
	r := gin.Default()
	apiServer := api.NewServer(store, agg, cfg.Content)
	apiServer.RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}
