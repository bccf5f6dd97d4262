package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/newsfuse/newsfuse/internal/content"
	"github.com/newsfuse/newsfuse/internal/dedup"
)

const bodyRuneLimit = 600

// ProcessedItem 是写入存储层前的最终结构
type ProcessedItem struct {
	ID          string
	Title       string
	URL         string
	SourceName  string
	SourceType  string
	Body        string
	PublishedAt time.Time
	FetchedAt   time.Time
	Score       float64
	Sources     []string
}

// Processor 做入库前的数据清洗：生成稳定 ID、规范 UTF-8、控制正文长度。
// 去重由聚合器完成，这里只负责存储卫生。
type Processor struct{}

func New() *Processor {
	return &Processor{}
}

func (p *Processor) Process(items []content.Item) []ProcessedItem {
	out := make([]ProcessedItem, 0, len(items))

	for _, it := range items {
		title := strings.TrimSpace(toValidUTF8(it.Title))
		if title == "" {
			continue
		}

		out = append(out, ProcessedItem{
			// 用规范化 URL 做哈希，同一条内容带不同追踪参数时 ID 一致
			ID:          hashURL(dedup.NormalizeURL(it.URL)),
			Title:       title,
			URL:         it.URL,
			SourceName:  it.SourceName,
			SourceType:  string(it.SourceType),
			Body:        truncateRunes(toValidUTF8(it.Body), bodyRuneLimit),
			PublishedAt: it.PublishedAt,
			FetchedAt:   it.FetchedAt,
			Score:       it.Score,
			Sources:     it.Sources,
		})
	}

	return out
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// toValidUTF8 规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// truncateRunes 按 rune 数截断，超长时补省略号，保证不超过数据库字段长度
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit]) + "…"
}
