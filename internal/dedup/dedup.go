package dedup

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/newsfuse/newsfuse/internal/content"
)

const (
	// DefaultThreshold 标题词集 Jaccard 相似度阈值，达到即视为同一事件
	DefaultThreshold = 0.8
	// DefaultWindow 近似去重的时间窗口：窗口外的相似标题视为不同事件，
	// 防止相隔很久的通用措辞被误合并
	DefaultWindow = 24 * time.Hour
)

// Deduplicator 跨源合并同一事件的条目：先按规范化 URL 精确合并，
// 再按标题相似度 + 时间窗口做近似合并
type Deduplicator struct {
	Threshold float64
	Window    time.Duration
}

func New() *Deduplicator {
	return &Deduplicator{Threshold: DefaultThreshold, Window: DefaultWindow}
}

// trackingParams URL 中常见的追踪参数，规范化时剔除
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {},
	"utm_term": {}, "utm_content": {},
	"fbclid": {}, "gclid": {}, "msclkid": {},
	"ref": {}, "source": {}, "from": {},
}

// NormalizeURL 统一 URL 形态作为去重主键：
// scheme/host 小写、去掉 fragment 与末尾斜杠、剔除追踪参数。
// 无法解析时退化为小写原文。
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if _, ok := trackingParams[strings.ToLower(k)]; ok {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// stopWords 标题比较时剔除的常见虚词
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "are": {},
	"was": {}, "be": {}, "it": {}, "its": {}, "this": {}, "that": {},
}

// titleTokens 标题规范化分词：小写、去标点、去停用词
func titleTokens(title string) map[string]struct{} {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r >= 0x4e00 && r <= 0x9fff:
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	tokens := make(map[string]struct{})
	for _, w := range strings.Fields(b.String()) {
		if _, ok := stopWords[w]; ok {
			continue
		}
		tokens[w] = struct{}{}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// mergeSources 合并来源名集合并排序，保证输出稳定
func mergeSources(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// richerOf 精确 URL 重复的保留策略：正文更长者胜，打平保留更早抓取的
func richerOf(a, b content.Item) content.Item {
	keep := a
	if len(b.Body) > len(a.Body) {
		keep = b
	} else if len(b.Body) == len(a.Body) && b.FetchedAt.Before(a.FetchedAt) {
		keep = b
	}
	keep.Sources = mergeSources(a.Sources, b.Sources)
	return keep
}

// representativeOf 近似重复的保留策略：正文更长者胜，打平比原始评分
func representativeOf(a, b content.Item) content.Item {
	keep := a
	if len(b.Body) > len(a.Body) {
		keep = b
	} else if len(b.Body) == len(a.Body) && b.Score > a.Score {
		keep = b
	}
	keep.Sources = mergeSources(a.Sources, b.Sources)
	return keep
}

// Deduplicate 去重入口。输入顺序固定时输出完全确定；
// 对自身输出再次执行得到相同结果（幂等）。
func (d *Deduplicator) Deduplicate(items []content.Item) []content.Item {
	if len(items) == 0 {
		return nil
	}

	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	window := d.Window
	if window <= 0 {
		window = DefaultWindow
	}

	// 第一阶段：规范化 URL 精确合并
	byURL := make(map[string]int, len(items))
	exact := make([]content.Item, 0, len(items))
	for _, it := range items {
		key := NormalizeURL(it.URL)
		if idx, ok := byURL[key]; ok {
			exact[idx] = richerOf(exact[idx], it)
			continue
		}
		byURL[key] = len(exact)
		exact = append(exact, it)
	}

	// 第二阶段：标题近似合并。倒排索引按 token 找候选——
	// Jaccard ≥ 阈值必然至少共享一个 token，避免对大批量做 O(n²) 全比较。
	type kept struct {
		item   content.Item
		tokens map[string]struct{}
	}
	var out []kept
	index := make(map[string][]int) // token -> out 下标

	for _, it := range exact {
		tokens := titleTokens(it.Title)

		mergedInto := -1
		checked := make(map[int]struct{})
		for t := range tokens {
			for _, idx := range index[t] {
				if _, ok := checked[idx]; ok {
					continue
				}
				checked[idx] = struct{}{}

				k := out[idx]
				gap := it.PublishedAt.Sub(k.item.PublishedAt)
				if gap < 0 {
					gap = -gap
				}
				if gap > window {
					continue
				}
				if jaccard(tokens, k.tokens) >= threshold {
					mergedInto = idx
					break
				}
			}
			if mergedInto >= 0 {
				break
			}
		}

		if mergedInto >= 0 {
			merged := representativeOf(out[mergedInto].item, it)
			mergedTokens := titleTokens(merged.Title)
			// 代表条目可能换了标题，把新标题的 token 也登记进索引，
			// 重复登记无妨，候选检查阶段有 checked 去重
			for t := range mergedTokens {
				index[t] = append(index[t], mergedInto)
			}
			out[mergedInto] = kept{item: merged, tokens: mergedTokens}
			continue
		}

		idx := len(out)
		out = append(out, kept{item: it, tokens: tokens})
		for t := range tokens {
			index[t] = append(index[t], idx)
		}
	}

	result := make([]content.Item, 0, len(out))
	for _, k := range out {
		it := k.item
		if len(it.Sources) == 0 && it.SourceName != "" {
			it.Sources = []string{it.SourceName}
		}
		result = append(result, it)
	}
	return result
}
