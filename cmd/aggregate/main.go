package main

import (
	"log"

	"github.com/newsfuse/newsfuse/internal/aggregator"
	"github.com/newsfuse/newsfuse/internal/config"
	"github.com/newsfuse/newsfuse/internal/health"
	"github.com/newsfuse/newsfuse/internal/processor"
	"github.com/newsfuse/newsfuse/internal/provider"
	"github.com/newsfuse/newsfuse/internal/ratelimit"
	"github.com/newsfuse/newsfuse/internal/scheduler"
	"github.com/newsfuse/newsfuse/internal/storage"
)

// 一个仅执行一轮聚合任务的命令行入口：适合手动触发或定时任务外部编排
func main() {
	cfg := config.Load()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	// 登记各个数据源（与 cmd/api 保持一致）
	if _, err := store.EnsureSource("newsapi", "NewsAPI", "search"); err != nil {
		log.Fatalf("ensure source newsapi failed: %v", err)
	}
	if _, err := store.EnsureSource("reddit", "Reddit", "discussion"); err != nil {
		log.Fatalf("ensure source reddit failed: %v", err)
	}
	if _, err := store.EnsureSource("rss", "RSS Feeds", "feed"); err != nil {
		log.Fatalf("ensure source rss failed: %v", err)
	}

	providers := []provider.Provider{
		provider.NewNewsAPIProvider(cfg.NewsAPIKey, ""),
		provider.NewRedditProvider(cfg.RedditBaseURL),
		provider.NewFeedProvider(cfg.Content.Feeds),
	}

	limiter := ratelimit.New(cfg.Content.RateLimiterConfigs())
	registry := health.NewRegistry(health.DefaultFailureThreshold, health.DefaultCooldown)
	agg := aggregator.New(providers, limiter, registry)

	s, err := scheduler.New(cfg.CronSpec, agg, processor.New(), store, cfg.Content)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}

	// 只执行一轮聚合任务后退出
	s.RunOnce()
}
