package provider

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/newsfuse/newsfuse/internal/content"
)

const (
	feedClientTimeout = 10 * time.Second
	feedUserAgent     = "newsfuse/1.0"
)

// FeedSource 一条 RSS/Atom 订阅配置
type FeedSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// FeedProvider 抓取一组 RSS/Atom 订阅源，并按查询词过滤条目。
// 单个源失败只记录并跳过；全部源失败才返回错误。
type FeedProvider struct {
	feeds []FeedSource
}

func NewFeedProvider(feeds []FeedSource) *FeedProvider {
	return &FeedProvider{feeds: feeds}
}

func (p *FeedProvider) Name() string {
	return "rss"
}

func (p *FeedProvider) Type() content.SourceType {
	return content.SourceFeed
}

// feedEntry 单条订阅条目的中间结构，RSS 与 Atom 统一到这里
type feedEntry struct {
	title       string
	link        string
	description string
	published   string
}

func (p *FeedProvider) Fetch(ctx context.Context, query string, limit int) ([]content.Item, error) {
	if limit <= 0 {
		limit = 10
	}
	if len(p.feeds) == 0 {
		return nil, NewError(KindUnavailable, p.Name(), fmt.Errorf("no feeds configured"))
	}

	keywords := queryKeywords(query)
	items := make([]content.Item, 0, limit)
	var failed int
	var lastErr error

	for _, feed := range p.feeds {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("rss: %w", ctx.Err())
		}
		if len(items) >= limit {
			break
		}

		entries, err := p.fetchFeed(ctx, feed.URL)
		if err != nil {
			log.Printf("rss: fetch %s failed: %v", feed.Name, err)
			failed++
			lastErr = err
			continue
		}

		total := len(entries)
		for i, e := range entries {
			if len(items) >= limit {
				break
			}
			if e.title == "" || e.link == "" {
				continue
			}
			if !matchKeywords(e.title+" "+e.description, keywords) {
				continue
			}

			items = append(items, content.Item{
				Title:      e.title,
				Body:       collapseHTML(e.description),
				URL:        e.link,
				SourceName: feed.Name,
				SourceType: content.SourceFeed,
				// 订阅源没有热度信号，用条目在源内的位置近似新鲜度/编辑权重
				Score:       float64(total-i) / float64(total),
				PublishedAt: parseFeedTime(e.published),
				Sources:     []string{feed.Name},
			})
		}
	}

	if failed == len(p.feeds) {
		return nil, NewError(KindUnavailable, p.Name(), lastErr)
	}

	return items, nil
}

// fetchFeed 用 colly 的 XML 回调抓取单个订阅源，同时兼容 RSS 2.0 与 Atom
func (p *FeedProvider) fetchFeed(ctx context.Context, feedURL string) ([]feedEntry, error) {
	c := colly.NewCollector(colly.UserAgent(feedUserAgent))

	timeout := feedClientTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("rss: %w", context.DeadlineExceeded)
	}
	c.SetRequestTimeout(timeout)

	var entries []feedEntry
	var status int

	// RSS 2.0
	c.OnXML("//item", func(e *colly.XMLElement) {
		entries = append(entries, feedEntry{
			title:       strings.TrimSpace(e.ChildText("title")),
			link:        strings.TrimSpace(e.ChildText("link")),
			description: e.ChildText("description"),
			published:   strings.TrimSpace(e.ChildText("pubDate")),
		})
	})

	// Atom
	c.OnXML("//entry", func(e *colly.XMLElement) {
		link := strings.TrimSpace(e.ChildAttr("link", "href"))
		desc := e.ChildText("summary")
		if desc == "" {
			desc = e.ChildText("content")
		}
		published := strings.TrimSpace(e.ChildText("published"))
		if published == "" {
			published = strings.TrimSpace(e.ChildText("updated"))
		}
		entries = append(entries, feedEntry{
			title:       strings.TrimSpace(e.ChildText("title")),
			link:        link,
			description: desc,
			published:   published,
		})
	})

	c.OnError(func(r *colly.Response, _ error) {
		status = r.StatusCode
	})

	if err := c.Visit(feedURL); err != nil {
		if status != 0 {
			return nil, NewError(kindFromStatus(status), p.Name(),
				fmt.Errorf("status %d", status))
		}
		return nil, NewError(KindUnavailable, p.Name(), err)
	}

	return entries, nil
}

// feedTimeLayouts RSS/Atom 里常见的几种时间格式
var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

// parseFeedTime 解析源上报的发布时间，失败回退为当前时间
func parseFeedTime(s string) time.Time {
	if s != "" {
		for _, layout := range feedTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Now()
}

func queryKeywords(query string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// matchKeywords 任一关键词命中即算匹配；空查询匹配所有条目
func matchKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	text = strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
