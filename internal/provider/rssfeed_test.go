package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newsfuse/newsfuse/internal/content"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <item>
      <title>Solar storm expected this weekend</title>
      <link>https://feed.example.com/solar-storm</link>
      <description>&lt;p&gt;A strong &lt;b&gt;solar&lt;/b&gt; storm is coming.&lt;/p&gt;</description>
      <pubDate>Sun, 01 Jun 2025 08:30:00 +0000</pubDate>
    </item>
    <item>
      <title>Local bake sale raises funds</title>
      <link>https://feed.example.com/bake-sale</link>
      <description>Nothing about space here.</description>
      <pubDate>Sun, 01 Jun 2025 09:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(body))
	}))
}

func TestFeedFetchFiltersByQuery(t *testing.T) {
	srv := serveFeed(t, rssFixture)
	defer srv.Close()

	p := NewFeedProvider([]FeedSource{{Name: "Example Feed", URL: srv.URL + "/feed.xml"}})
	items, err := p.Fetch(context.Background(), "solar", 10)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	// 只有命中查询词的条目被保留
	if len(items) != 1 {
		t.Fatalf("expected 1 matching item, got %d", len(items))
	}

	it := items[0]
	if it.SourceType != content.SourceFeed {
		t.Fatalf("source type = %s, want feed", it.SourceType)
	}
	if it.SourceName != "Example Feed" {
		t.Fatalf("source name = %q", it.SourceName)
	}
	if it.URL != "https://feed.example.com/solar-storm" {
		t.Fatalf("url = %q", it.URL)
	}
	// description 里的 HTML 被折叠成纯文本
	if it.Body != "A strong solar storm is coming." {
		t.Fatalf("body = %q", it.Body)
	}
	want := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	if !it.PublishedAt.Equal(want) {
		t.Fatalf("publishedAt = %v, want %v", it.PublishedAt, want)
	}
}

func TestFeedFetchEmptyQueryKeepsAll(t *testing.T) {
	srv := serveFeed(t, rssFixture)
	defer srv.Close()

	p := NewFeedProvider([]FeedSource{{Name: "Example Feed", URL: srv.URL + "/feed.xml"}})
	items, err := p.Fetch(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("empty query should keep all entries, got %d", len(items))
	}
}

func TestFeedFetchAllFeedsDownIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewFeedProvider([]FeedSource{{Name: "Broken", URL: srv.URL + "/feed.xml"}})
	_, err := p.Fetch(context.Background(), "q", 5)
	if err == nil {
		t.Fatalf("expected error when every feed fails")
	}
	if got := KindOf(err); got != KindUnavailable {
		t.Fatalf("kind = %s, want unavailable", got)
	}
}

func TestFeedFetchPartialFeedFailureTolerated(t *testing.T) {
	good := serveFeed(t, rssFixture)
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	p := NewFeedProvider([]FeedSource{
		{Name: "Broken", URL: bad.URL + "/feed.xml"},
		{Name: "Example Feed", URL: good.URL + "/feed.xml"},
	})

	// 单个源失败只跳过，整次调用仍返回其余源的条目
	items, err := p.Fetch(context.Background(), "solar", 10)
	if err != nil {
		t.Fatalf("partial feed failure should not fail the call: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item from the healthy feed, got %d", len(items))
	}
}

func TestParseFeedTimeFallsBackToNow(t *testing.T) {
	got := parseFeedTime("gibberish")
	if time.Since(got) > time.Minute {
		t.Fatalf("unparsable time should fall back to now, got %v", got)
	}
}
