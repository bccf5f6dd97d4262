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
	redditDefaultBaseURL  = "https://www.reddit.com"
	redditMaxResponseSize = 1 << 20 // 1MB
	redditClientTimeout   = 10 * time.Second
	redditUserAgent       = "newsfuse/1.0"
)

// RedditProvider 通过 Reddit 公开的 search.json 接口抓取社区讨论。
// 使用公共端点无需 OAuth，配额较低，由上层限流器统一约束调用频率。
type RedditProvider struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewRedditProvider(baseURL string) *RedditProvider {
	if baseURL == "" {
		baseURL = redditDefaultBaseURL
	}
	return &RedditProvider{
		baseURL:   baseURL,
		userAgent: redditUserAgent,
		client:    &http.Client{Timeout: redditClientTimeout},
	}
}

func (p *RedditProvider) Name() string {
	return "reddit"
}

func (p *RedditProvider) Type() content.SourceType {
	return content.SourceDiscussion
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
}

func (p *RedditProvider) Fetch(ctx context.Context, query string, limit int) ([]content.Item, error) {
	if limit <= 0 {
		limit = 10
	}

	searchURL := fmt.Sprintf("%s/search.json?q=%s&limit=%d&sort=relevance",
		p.baseURL, url.QueryEscape(query), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, NewError(KindUnavailable, p.Name(), err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reddit: %w", ctx.Err())
		}
		return nil, NewError(KindUnavailable, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(kindFromStatus(resp.StatusCode), p.Name(),
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var listing redditListing
	if err := json.NewDecoder(io.LimitReader(resp.Body, redditMaxResponseSize)).Decode(&listing); err != nil {
		return nil, NewError(KindMalformed, p.Name(), err)
	}

	items := make([]content.Item, 0, len(listing.Data.Children))
	skipped := 0

	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Title == "" || post.Permalink == "" {
			skipped++
			continue
		}

		published := time.Now()
		if post.CreatedUTC > 0 {
			published = time.Unix(int64(post.CreatedUTC), 0)
		}

		sourceName := "reddit"
		if post.Subreddit != "" {
			sourceName = "reddit/r/" + post.Subreddit
		}

		items = append(items, content.Item{
			Title:       post.Title,
			Body:        collapseHTML(post.Selftext),
			URL:         "https://www.reddit.com" + post.Permalink,
			SourceName:  sourceName,
			SourceType:  content.SourceDiscussion,
			Score:       float64(post.Score),
			PublishedAt: published,
			Sources:     []string{sourceName},
		})
	}

	if skipped > 0 {
		log.Printf("reddit: skipped %d malformed posts", skipped)
	}

	return items, nil
}
