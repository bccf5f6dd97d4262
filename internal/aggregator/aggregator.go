package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/newsfuse/newsfuse/internal/content"
	"github.com/newsfuse/newsfuse/internal/dedup"
	"github.com/newsfuse/newsfuse/internal/health"
	"github.com/newsfuse/newsfuse/internal/provider"
	"github.com/newsfuse/newsfuse/internal/ratelimit"
)

// ErrAllProvidersFailed 所有请求的源都失败或被跳过时的终态错误。
// 只要有一个源成功，聚合就返回部分结果而不是错误。
var ErrAllProvidersFailed = errors.New("aggregate: all providers failed")

const (
	defaultTimeout          = 30 * time.Second
	defaultPerProviderLimit = 10

	// 排序权重：归一化评分为主，新鲜度为辅
	rankScoreWeight   = 0.7
	rankRecencyWeight = 0.3
)

// Request 一次聚合调用的参数，调用结束即弃，不跨调用共享
type Request struct {
	Query            string
	Providers        []content.SourceType // 为空时使用全部已注册的源
	PerProviderLimit int
	OverallLimit     int           // 0 表示不截断
	Timeout          time.Duration // 0 表示默认超时
}

// Aggregator 聚合器：并发分发各源的抓取，合并、去重、排序后返回统一列表。
// 所有适配器在构造时显式注入，便于用假源做隔离测试。
type Aggregator struct {
	providers map[content.SourceType]provider.Provider
	order     []content.SourceType
	limiter   *ratelimit.Limiter
	registry  *health.Registry
	dedup     *dedup.Deduplicator
	now       func() time.Time
}

func New(providers []provider.Provider, limiter *ratelimit.Limiter, registry *health.Registry) *Aggregator {
	a := &Aggregator{
		providers: make(map[content.SourceType]provider.Provider, len(providers)),
		limiter:   limiter,
		registry:  registry,
		dedup:     dedup.New(),
		now:       time.Now,
	}
	for _, p := range providers {
		if _, ok := a.providers[p.Type()]; ok {
			log.Printf("aggregate: duplicate provider for type %s, keeping first", p.Type())
			continue
		}
		a.providers[p.Type()] = p
		a.order = append(a.order, p.Type())
	}
	return a
}

// Health 返回只读健康快照，供状态接口使用
func (a *Aggregator) Health() []health.Snapshot {
	return a.registry.Snapshots()
}

// fetchResult 单个源的抓取结果，经由 channel 汇入 fan-in 循环
type fetchResult struct {
	name      string
	items     []content.Item
	err       error
	throttled bool
	timedOut  bool
}

// Aggregate 聚合入口。返回 (items, partial, err)：
// partial=true 表示至少一个请求的源因失败/限流/超时没有贡献数据；
// 只有所有源都失败或被跳过时 err 才非空。
func (a *Aggregator) Aggregate(ctx context.Context, req Request) ([]content.Item, bool, error) {
	requested := req.Providers
	if len(requested) == 0 {
		requested = a.order
	}

	perLimit := req.PerProviderLimit
	if perLimit <= 0 {
		perLimit = defaultPerProviderLimit
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// fan-out：每个未熔断的源一个 goroutine，channel 带满缓冲避免放弃后泄漏
	results := make(chan fetchResult, len(requested))
	pending := make(map[string]struct{}, len(requested))
	dispatched := 0
	skipped := 0
	unknown := 0

	for _, t := range requested {
		p, ok := a.providers[t]
		if !ok {
			log.Printf("aggregate: no provider registered for type %s", t)
			unknown++
			continue
		}
		if !a.registry.Allow(p.Name()) {
			log.Printf("aggregate: circuit open, skipping %s", p.Name())
			skipped++
			continue
		}

		dispatched++
		pending[p.Name()] = struct{}{}
		go a.fetchOne(ctx, p, req.Query, perLimit, results)
	}

	if dispatched == 0 {
		if skipped > 0 {
			return nil, false, fmt.Errorf("%w: %d circuit-open, %d unknown", ErrAllProvidersFailed, skipped, unknown)
		}
		return nil, false, fmt.Errorf("%w: no providers matched request", ErrAllProvidersFailed)
	}

	// fan-in：等待全部完成或整体截止时间先到；超时后未返回的调用直接放弃
	fetchedAt := a.now()
	merged, succeeded, failed := a.collectResults(ctx, results, dispatched, pending, fetchedAt)

	// 熔断跳过的源和未注册的类别同样没有贡献数据，计入 partial 信号
	failed += skipped + unknown

	if succeeded == 0 {
		return nil, false, fmt.Errorf("%w: %d failed or skipped", ErrAllProvidersFailed, failed)
	}

	partial := failed > 0

	items := a.dedup.Deduplicate(merged)
	rank(items)

	if req.OverallLimit > 0 && len(items) > req.OverallLimit {
		items = items[:req.OverallLimit]
	}

	log.Printf("aggregate: query=%q providers=%d succeeded=%d items=%d partial=%v",
		req.Query, dispatched+skipped+unknown, succeeded, len(items), partial)

	return items, partial, nil
}

// collectResults 收取全部结果或等到整体截止时间。截止时间触发时先把
// 已经完成、还排在缓冲区里的结果非阻塞地收走——完成的调用不算放弃；
// 其余仍未返回的调用视为放弃，归还可能占用的探测名额，不惩罚健康度。
func (a *Aggregator) collectResults(ctx context.Context, results <-chan fetchResult, dispatched int, pending map[string]struct{}, fetchedAt time.Time) (merged []content.Item, succeeded, failed int) {
	handle := func(res fetchResult) {
		delete(pending, res.name)
		if a.recordOutcome(res) {
			succeeded++
			for _, it := range res.items {
				merged = append(merged, it.WithFetchedAt(fetchedAt))
			}
		} else {
			failed++
		}
	}

	received := 0
	for received < dispatched {
		select {
		case res := <-results:
			handle(res)
			received++
		case <-ctx.Done():
		drain:
			for received < dispatched {
				select {
				case res := <-results:
					handle(res)
					received++
				default:
					break drain
				}
			}

			if abandoned := dispatched - received; abandoned > 0 {
				log.Printf("aggregate: deadline elapsed, abandoning %d outstanding calls", abandoned)
				for name := range pending {
					a.registry.ReleaseProbe(name)
				}
				failed += abandoned
			}
			return merged, succeeded, failed
		}
	}
	return merged, succeeded, failed
}

// fetchOne 在独立 goroutine 中限流并调用单个源
func (a *Aggregator) fetchOne(ctx context.Context, p provider.Provider, query string, limit int, out chan<- fetchResult) {
	res := fetchResult{name: p.Name()}

	if err := a.limiter.Acquire(ctx, p.Type()); err != nil {
		res.throttled = true
		res.err = err
		out <- res
		return
	}

	items, err := p.Fetch(ctx, query, limit)
	if err != nil {
		res.err = err
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			res.timedOut = true
		}
	} else {
		res.items = items
	}
	out <- res
}

// recordOutcome 按错误类别更新健康度，返回该源是否算成功。
// 限流拒绝与截止时间放弃不惩罚健康度；配额用尽立即熔断；
// 其余适配器上报的失败计入连续失败计数。
func (a *Aggregator) recordOutcome(res fetchResult) bool {
	if res.err == nil {
		a.registry.RecordSuccess(res.name)
		return true
	}

	switch {
	case res.throttled:
		log.Printf("aggregate: %s throttled locally, skipping this round", res.name)
		a.registry.ReleaseProbe(res.name)
	case res.timedOut:
		log.Printf("aggregate: %s abandoned at deadline", res.name)
		a.registry.ReleaseProbe(res.name)
	case provider.KindOf(res.err) == provider.KindQuotaExceeded:
		log.Printf("aggregate: %s quota exceeded, tripping circuit: %v", res.name, res.err)
		a.registry.TripOpen(res.name)
	default:
		log.Printf("aggregate: %s failed: %v", res.name, res.err)
		a.registry.RecordFailure(res.name)
	}
	return false
}

// rank 排序：先把各类源的评分 min-max 归一到 [0,1]，
// 再按 评分(主) + 新鲜度(辅) 的加权组合降序；
// 打平时新的在前，仍打平按 URL 保证全序确定。
func rank(items []content.Item) {
	if len(items) < 2 {
		return
	}

	type bounds struct{ min, max float64 }
	scoreBounds := make(map[content.SourceType]bounds)
	var oldest, newest time.Time

	for i, it := range items {
		b, ok := scoreBounds[it.SourceType]
		if !ok {
			b = bounds{min: it.Score, max: it.Score}
		} else {
			if it.Score < b.min {
				b.min = it.Score
			}
			if it.Score > b.max {
				b.max = it.Score
			}
		}
		scoreBounds[it.SourceType] = b

		if i == 0 || it.PublishedAt.Before(oldest) {
			oldest = it.PublishedAt
		}
		if i == 0 || it.PublishedAt.After(newest) {
			newest = it.PublishedAt
		}
	}

	span := newest.Sub(oldest)
	combined := func(it content.Item) float64 {
		b := scoreBounds[it.SourceType]
		score := 0.5 // 单点无法归一化时取中性值
		if b.max > b.min {
			score = (it.Score - b.min) / (b.max - b.min)
		}
		recency := 0.5
		if span > 0 {
			recency = float64(it.PublishedAt.Sub(oldest)) / float64(span)
		}
		return rankScoreWeight*score + rankRecencyWeight*recency
	}

	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := combined(items[i]), combined(items[j])
		if ci != cj {
			return ci > cj
		}
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].URL < items[j].URL
	})
}
