package content

import "time"

// SourceType 数据源类别：不同类别的配额与评分口径差异很大，限流与归一化都按类别进行
type SourceType string

const (
	SourceSearch     SourceType = "search"     // 新闻搜索类（NewsAPI 等）
	SourceDiscussion SourceType = "discussion" // 社区讨论类（Reddit 等）
	SourceFeed       SourceType = "feed"       // RSS/Atom 订阅类
)

// AllSourceTypes 返回全部数据源类别，调用方未指定 providerSet 时作为默认值
func AllSourceTypes() []SourceType {
	return []SourceType{SourceSearch, SourceDiscussion, SourceFeed}
}

// Item 是各适配器归一化后的统一条目结构。
// 创建后不可修改：去重合并时生成新条目而不是原地改写，
// 因此跨 goroutine 传递时无需加锁。
type Item struct {
	Title      string
	Body       string // 可能为空：部分源只给摘要或纯链接
	URL        string // 源内唯一标识，去重的主键，创建后不变
	SourceName string // 人类可读来源，例如具体媒体名或 subreddit
	SourceType SourceType
	// Score 是源内的相关性/热度信号，跨源比较前需在 Aggregator 的排序步骤中
	// 按 SourceType 做 min-max 归一化，原始值只在同类源之间可比
	Score       float64
	PublishedAt time.Time // 源上报的发布时间；缺失时适配器回退为抓取时间
	FetchedAt   time.Time // 由聚合器统一打点，适配器返回时保持零值
	// Sources 记录报道过同一条内容的所有来源名（去重合并时累积），
	// 供下游展示 "covered by N sources"；至少包含 SourceName 自身
	Sources []string
}

// WithFetchedAt 返回打上抓取时间戳的副本，保持 Item 本身不可变
func (it Item) WithFetchedAt(t time.Time) Item {
	it.FetchedAt = t
	return it
}
