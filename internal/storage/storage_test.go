package storage

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/newsfuse/newsfuse/internal/processor"
)

func TestItemRecordUpdatesCarryIncomingValues(t *testing.T) {
	now := time.Now()
	it := processor.ProcessedItem{
		ID:          "abc123",
		Title:       "updated title",
		URL:         "https://example.com/story?utm_source=rss",
		SourceName:  "BBC News",
		SourceType:  "feed",
		Body:        "updated body text",
		PublishedAt: now,
		FetchedAt:   now,
		Score:       0.9,
		Sources:     []string{"BBC News", "CNN"},
	}

	row, updates := itemRecord("technology", it)

	if row.ID != "abc123" || row.Topic != "technology" {
		t.Fatalf("row = %+v", row)
	}

	// 更新列取本轮入参的值，不依赖查库后结构体里的字段
	if updates["title"] != "updated title" {
		t.Fatalf("title update = %v", updates["title"])
	}
	if updates["body"] != "updated body text" {
		t.Fatalf("body update = %v", updates["body"])
	}
	if updates["score"] != 0.9 {
		t.Fatalf("score update = %v", updates["score"])
	}

	extra, ok := updates["extra_data"].(datatypes.JSONMap)
	if !ok {
		t.Fatalf("extra_data type = %T", updates["extra_data"])
	}
	want := []any{"BBC News", "CNN"}
	if !reflect.DeepEqual(extra["sources"], want) {
		t.Fatalf("sources = %v, want %v", extra["sources"], want)
	}
}

func TestItemRecordTruncatesBody(t *testing.T) {
	it := processor.ProcessedItem{
		ID:    "x",
		Title: "t",
		Body:  strings.Repeat("字", bodyColumnLimit+100),
	}

	row, updates := itemRecord("topic", it)

	if got := len([]rune(row.Body)); got != bodyColumnLimit {
		t.Fatalf("row body length = %d, want %d", got, bodyColumnLimit)
	}
	// 行和更新列必须是同一份截断后的正文
	if updates["body"] != row.Body {
		t.Fatalf("row and update body diverge")
	}
}
