package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/newsfuse/newsfuse/internal/content"
)

const (
	newsAPIDefaultBaseURL  = "https://newsapi.org/v2"
	newsAPIMaxResponseSize = 1 << 20 // 1MB
	newsAPIClientTimeout   = 10 * time.Second
)

// NewsAPIProvider 通过 NewsAPI 的 everything 接口做新闻搜索
type NewsAPIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewNewsAPIProvider 构造搜索类适配器；baseURL 为空时使用官方地址
func NewNewsAPIProvider(apiKey, baseURL string) *NewsAPIProvider {
	if baseURL == "" {
		baseURL = newsAPIDefaultBaseURL
	}
	return &NewsAPIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: newsAPIClientTimeout},
	}
}

func (p *NewsAPIProvider) Name() string {
	return "newsapi"
}

func (p *NewsAPIProvider) Type() content.SourceType {
	return content.SourceSearch
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

func (p *NewsAPIProvider) Fetch(ctx context.Context, query string, limit int) ([]content.Item, error) {
	if limit <= 0 {
		limit = 10
	}

	apiURL := fmt.Sprintf("%s/everything?q=%s&pageSize=%d&language=en&sortBy=relevancy",
		p.baseURL, url.QueryEscape(query), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, NewError(KindUnavailable, p.Name(), err)
	}
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("newsapi: %w", ctx.Err())
		}
		return nil, NewError(KindUnavailable, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(kindFromStatus(resp.StatusCode), p.Name(),
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var out newsAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, newsAPIMaxResponseSize)).Decode(&out); err != nil {
		return nil, NewError(KindMalformed, p.Name(), err)
	}
	if out.Status != "ok" {
		return nil, NewError(KindMalformed, p.Name(),
			fmt.Errorf("status %q code %q: %s", out.Status, out.Code, out.Message))
	}

	total := len(out.Articles)
	items := make([]content.Item, 0, total)
	skipped := 0

	for i, a := range out.Articles {
		if a.Title == "" || a.URL == "" {
			skipped++
			continue
		}

		published := time.Now()
		if a.PublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
				published = t
			}
		}

		body := a.Description
		if a.Content != "" && len(a.Content) > len(body) {
			body = a.Content
		}

		sourceName := a.Source.Name
		if sourceName == "" {
			sourceName = "newsapi"
		}

		items = append(items, content.Item{
			Title:      a.Title,
			Body:       collapseHTML(body),
			URL:        a.URL,
			SourceName: sourceName,
			SourceType: content.SourceSearch,
			// NewsAPI 没有显式评分，用结果排名换算相关性：靠前的更相关
			Score:       float64(total-i) / float64(total),
			PublishedAt: published,
			Sources:     []string{sourceName},
		})
	}

	if skipped > 0 {
		log.Printf("newsapi: skipped %d malformed articles", skipped)
	}

	return items, nil
}
