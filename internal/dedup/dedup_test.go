package dedup

import (
	"reflect"
	"testing"
	"time"

	"github.com/newsfuse/newsfuse/internal/content"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		// 追踪参数剔除
		{"https://example.com/story?utm_source=x&utm_medium=y", "https://example.com/story"},
		{"https://example.com/story?id=7&fbclid=abc", "https://example.com/story?id=7"},
		// 末尾斜杠与 fragment
		{"https://example.com/story/", "https://example.com/story"},
		{"https://example.com/story#section-2", "https://example.com/story"},
		// scheme 与 host 大小写
		{"HTTPS://Example.COM/story", "https://example.com/story"},
	}

	for _, c := range cases {
		if got := NormalizeURL(c.in); got != c.want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExactURLCollapseRegardlessOfOrder(t *testing.T) {
	now := time.Now()
	rich := content.Item{
		Title: "Go 1.25 released", URL: "https://example.com/go?utm_source=rss",
		Body: "full body with details", SourceName: "BBC News",
		SourceType: content.SourceFeed, PublishedAt: now, FetchedAt: now,
		Sources: []string{"BBC News"},
	}
	poor := content.Item{
		Title: "Go 1.25 released", URL: "https://example.com/go",
		Body: "short", SourceName: "CNN",
		SourceType: content.SourceFeed, PublishedAt: now, FetchedAt: now,
		Sources: []string{"CNN"},
	}

	d := New()
	for _, items := range [][]content.Item{{rich, poor}, {poor, rich}} {
		out := d.Deduplicate(items)
		if len(out) != 1 {
			t.Fatalf("expected 1 item after exact-URL dedup, got %d", len(out))
		}
		// 正文更长者胜出，与输入顺序无关
		if out[0].Body != rich.Body {
			t.Fatalf("richer body should win, got %q", out[0].Body)
		}
		// 两个来源都被累积
		want := []string{"BBC News", "CNN"}
		if !reflect.DeepEqual(out[0].Sources, want) {
			t.Fatalf("sources = %v, want %v", out[0].Sources, want)
		}
	}
}

func TestExactURLTieKeepsEarliestFetched(t *testing.T) {
	now := time.Now()
	early := content.Item{
		Title: "Same story", URL: "https://example.com/a",
		Body: "body", SourceName: "one", SourceType: content.SourceSearch,
		PublishedAt: now, FetchedAt: now.Add(-time.Hour), Sources: []string{"one"},
	}
	late := content.Item{
		Title: "Same story", URL: "https://example.com/a",
		Body: "text", SourceName: "two", SourceType: content.SourceSearch,
		PublishedAt: now, FetchedAt: now, Sources: []string{"two"},
	}

	out := New().Deduplicate([]content.Item{late, early})
	if len(out) != 1 {
		t.Fatalf("expected 1 item, got %d", len(out))
	}
	if out[0].SourceName != "one" {
		t.Fatalf("tie on body length should keep earliest-fetched, got %q", out[0].SourceName)
	}
}

func TestNearDuplicateMergedWithinWindow(t *testing.T) {
	now := time.Now()
	a := content.Item{
		Title: "OpenAI releases new GPT model today", URL: "https://site-a.com/1",
		Body: "a much longer body about the release", SourceName: "site-a",
		SourceType: content.SourceSearch, PublishedAt: now, Sources: []string{"site-a"},
	}
	b := content.Item{
		Title: "OpenAI releases new GPT model", URL: "https://site-b.com/2",
		Body: "short", SourceName: "site-b",
		SourceType: content.SourceDiscussion, PublishedAt: now.Add(-2 * time.Hour),
		Sources: []string{"site-b"},
	}

	out := New().Deduplicate([]content.Item{a, b})
	if len(out) != 1 {
		t.Fatalf("expected near-duplicates to merge, got %d items", len(out))
	}
	if out[0].URL != a.URL {
		t.Fatalf("richer body should be the representative, got %q", out[0].URL)
	}
	want := []string{"site-a", "site-b"}
	if !reflect.DeepEqual(out[0].Sources, want) {
		t.Fatalf("sources = %v, want %v", out[0].Sources, want)
	}
}

func TestNearDuplicateOutsideWindowStaysSeparate(t *testing.T) {
	now := time.Now()
	// 标题完全相同但相隔 48 小时：通用措辞不应跨长时间窗合并
	a := content.Item{
		Title: "Market closes higher on tech rally", URL: "https://example.com/jan",
		SourceName: "a", SourceType: content.SourceSearch, PublishedAt: now,
	}
	b := content.Item{
		Title: "Market closes higher on tech rally", URL: "https://example.com/mar",
		SourceName: "b", SourceType: content.SourceSearch, PublishedAt: now.Add(-48 * time.Hour),
	}

	out := New().Deduplicate([]content.Item{a, b})
	if len(out) != 2 {
		t.Fatalf("items 48h apart must stay separate, got %d", len(out))
	}
}

func TestDissimilarTitlesKept(t *testing.T) {
	now := time.Now()
	items := []content.Item{
		{Title: "Gold price hits record high", URL: "https://example.com/gold",
			SourceName: "a", SourceType: content.SourceSearch, PublishedAt: now},
		{Title: "New quantum computing breakthrough announced", URL: "https://example.com/quantum",
			SourceName: "b", SourceType: content.SourceSearch, PublishedAt: now},
	}

	out := New().Deduplicate(items)
	if len(out) != 2 {
		t.Fatalf("unrelated stories must not merge, got %d", len(out))
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	now := time.Now()
	items := []content.Item{
		{Title: "OpenAI releases new GPT model", URL: "https://a.com/1", Body: "long body text",
			SourceName: "a", SourceType: content.SourceSearch, PublishedAt: now, Sources: []string{"a"}},
		{Title: "OpenAI releases new GPT model today", URL: "https://b.com/2", Body: "x",
			SourceName: "b", SourceType: content.SourceFeed, PublishedAt: now, Sources: []string{"b"}},
		{Title: "Something entirely different happened", URL: "https://c.com/3", Body: "y",
			SourceName: "c", SourceType: content.SourceDiscussion, PublishedAt: now, Sources: []string{"c"}},
	}

	d := New()
	once := d.Deduplicate(items)
	twice := d.Deduplicate(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("dedup not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestTitleTokens(t *testing.T) {
	tokens := titleTokens("The Quick, Brown Fox!")
	if _, ok := tokens["the"]; ok {
		t.Fatalf("stop word should be removed: %v", tokens)
	}
	for _, w := range []string{"quick", "brown", "fox"} {
		if _, ok := tokens[w]; !ok {
			t.Fatalf("missing token %q in %v", w, tokens)
		}
	}
}
