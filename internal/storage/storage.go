package storage

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/newsfuse/newsfuse/internal/processor"
)

// Source 描述一个已登记的数据源，例如 newsapi / reddit / rss
type Source struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Code   string `gorm:"size:64;uniqueIndex" json:"code"`
	Name   string `gorm:"size:128" json:"name"`
	Type   string `gorm:"size:32;index" json:"type"` // search / discussion / feed
	Status string `gorm:"size:32;index" json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item 聚合去重后的内容条目
type Item struct {
	ID         string `gorm:"primaryKey;size:40" json:"id"`
	Title      string `gorm:"size:512" json:"title"`
	URL        string `gorm:"size:1024;uniqueIndex" json:"url"`
	SourceName string `gorm:"size:128;index" json:"sourceName"`
	SourceType string `gorm:"size:32;index" json:"sourceType"`
	// 正文长度在 processor 中按 rune 截断，这里再做一次长度保护
	Body        string            `gorm:"size:700" json:"body"`
	Topic       string            `gorm:"size:128;index" json:"topic"`
	PublishedAt time.Time         `gorm:"index" json:"publishedAt"`
	FetchedAt   time.Time         `json:"fetchedAt"`
	Score       float64           `gorm:"index" json:"score"`
	ExtraData   datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Source{}, &Item{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}

	return &Store{DB: db, Redis: rdb}, nil
}

// EnsureSource 确保某个数据源已登记
func (s *Store) EnsureSource(code, name, sourceType string) (*Source, error) {
	src := &Source{}
	if err := s.DB.Where("code = ?", code).First(src).Error; err == nil {
		return src, nil
	}

	src = &Source{
		Code:   code,
		Name:   name,
		Type:   sourceType,
		Status: "active",
	}
	if err := s.DB.Create(src).Error; err != nil {
		return nil, err
	}
	return src, nil
}

const bodyColumnLimit = 700

// truncateRunesDB 按 rune 数截断，防止外部服务返回异常长文本导致入库失败
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// itemRecord 把处理结果转换成入库行和本轮要覆盖的列。
// 更新列必须从入参取值：FirstOrCreate 命中已有行时会把旧值扫回结构体，
// 用结构体字段构造更新会把旧值原样写回去。
func itemRecord(topic string, it processor.ProcessedItem) (*Item, map[string]any) {
	sources := make([]any, 0, len(it.Sources))
	for _, name := range it.Sources {
		sources = append(sources, name)
	}
	extra := datatypes.JSONMap{"sources": sources}
	body := truncateRunesDB(it.Body, bodyColumnLimit)

	row := &Item{
		ID:          it.ID,
		Title:       it.Title,
		URL:         it.URL,
		SourceName:  it.SourceName,
		SourceType:  it.SourceType,
		Body:        body,
		Topic:       topic,
		PublishedAt: it.PublishedAt,
		FetchedAt:   it.FetchedAt,
		Score:       it.Score,
		ExtraData:   extra,
	}
	updates := map[string]any{
		"title":      it.Title,
		"body":       body,
		"score":      it.Score,
		"extra_data": extra,
	}
	return row, updates
}

// SaveBatch 保存一批聚合结果，以规范化 URL 的哈希（ID）为幂等键：
// 同一条内容带不同追踪参数再次到达时命中同一行；已存在的条目更新正文、
// 评分与来源集合（同一事件随时间可能被更多来源报道）
func (s *Store) SaveBatch(topic string, items []processor.ProcessedItem) error {
	for _, it := range items {
		row, updates := itemRecord(topic, it)

		if err := s.DB.Where("id = ?", it.ID).FirstOrCreate(row).Error; err != nil {
			return err
		}
		if err := s.DB.Model(row).Updates(updates).Error; err != nil {
			return err
		}
	}
	return nil
}

// ListItems 查询已存储的条目；sort 支持 latest / hot
func (s *Store) ListItems(topic, sourceType, sortKey string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 20
	}

	q := s.DB.Model(&Item{})
	if topic != "" {
		q = q.Where("topic = ?", topic)
	}
	if sourceType != "" {
		q = q.Where("source_type = ?", sourceType)
	}

	switch sortKey {
	case "hot":
		q = q.Order("score DESC, published_at DESC")
	default:
		q = q.Order("published_at DESC, score DESC")
	}

	var items []Item
	if err := q.Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

const batchCacheTTL = 10 * time.Minute

func batchCacheKey(topic string) string {
	return "newsfuse:batch:" + topic
}

// CacheBatch 把某个话题最近一次聚合结果缓存到 Redis，
// API 读取时优先命中缓存，避免每次请求都触发外部源调用
func (s *Store) CacheBatch(ctx context.Context, topic string, payload []byte) {
	if err := s.Redis.Set(ctx, batchCacheKey(topic), payload, batchCacheTTL).Err(); err != nil {
		log.Printf("warn: cache batch for %q failed: %v", topic, err)
	}
}

// CachedBatch 读取话题的聚合缓存，未命中返回 (nil, false)
func (s *Store) CachedBatch(ctx context.Context, topic string) ([]byte, bool) {
	data, err := s.Redis.Get(ctx, batchCacheKey(topic)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}
