package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newsfuse/newsfuse/internal/content"
	"github.com/newsfuse/newsfuse/internal/provider"
	"github.com/newsfuse/newsfuse/internal/ratelimit"
)

const contentConfigEnv = "NEWSFUSE_CONTENT_CONFIG"

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	CronSpec string

	NewsAPIKey    string
	RedditBaseURL string

	Content ContentConfig
}

// ContentConfig 内容侧配置：话题、订阅源、限额与限流间隔。
// 基础设施用环境变量，内容配置用 YAML 文件，改话题/源不需要改部署。
type ContentConfig struct {
	Topics []string              `yaml:"topics"`
	Feeds  []provider.FeedSource `yaml:"feeds"`

	PerProviderLimit int `yaml:"perProviderLimit"`
	OverallLimit     int `yaml:"overallLimit"`
	TimeoutSeconds   int `yaml:"timeoutSeconds"`

	RateLimits map[string]RateLimitEntry `yaml:"rateLimits"`
}

type RateLimitEntry struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
	Burst           int `yaml:"burst"`
}

func Load() *Config {
	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		PostgresDSN:   getEnv("POSTGRES_DSN", "host=localhost user=newsfuse password=newsfuse dbname=newsfuse port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		CronSpec:      getEnv("CRON_SPEC", "0 * * * *"),
		NewsAPIKey:    getEnv("NEWSAPI_KEY", ""),
		RedditBaseURL: getEnv("REDDIT_BASE_URL", ""),
		Content:       defaultContent(),
	}

	if path := os.Getenv(contentConfigEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("config: cannot read %s: %v (using defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg.Content); err != nil {
			log.Printf("config: cannot parse %s: %v (using defaults)", path, err)
		}
	}

	if len(cfg.Content.Topics) == 0 {
		cfg.Content.Topics = defaultContent().Topics
	}
	if len(cfg.Content.Feeds) == 0 {
		cfg.Content.Feeds = defaultContent().Feeds
	}

	log.Printf("config loaded: port=%s cron=%s topics=%d feeds=%d",
		cfg.AppPort, cfg.CronSpec, len(cfg.Content.Topics), len(cfg.Content.Feeds))
	return cfg
}

func defaultContent() ContentConfig {
	return ContentConfig{
		Topics: []string{"technology", "science"},
		Feeds: []provider.FeedSource{
			{Name: "BBC News", URL: "https://feeds.bbci.co.uk/news/rss.xml"},
			{Name: "CNN", URL: "http://rss.cnn.com/rss/edition.rss"},
		},
		PerProviderLimit: 10,
		OverallLimit:     30,
		TimeoutSeconds:   30,
	}
}

// Timeout 单次聚合的整体截止时长
func (c ContentConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimiterConfigs 把 YAML 配置转换成限流器参数；
// 未配置的类别由限流器使用内置默认值
func (c ContentConfig) RateLimiterConfigs() map[content.SourceType]ratelimit.Config {
	out := make(map[content.SourceType]ratelimit.Config, len(c.RateLimits))
	for name, e := range c.RateLimits {
		if e.IntervalSeconds <= 0 || e.Burst <= 0 {
			continue
		}
		out[content.SourceType(name)] = ratelimit.Config{
			Interval: time.Duration(e.IntervalSeconds) * time.Second,
			Burst:    e.Burst,
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
