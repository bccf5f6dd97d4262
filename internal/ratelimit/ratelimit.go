package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/newsfuse/newsfuse/internal/content"
)

// ErrThrottled 本地限流拒绝：等待令牌会超出调用方截止时间时立即返回，
// 不惩罚源的健康度，也不阻塞整次聚合
var ErrThrottled = errors.New("ratelimit: throttled")

// Config 单个源类别的限流参数。各类别配额相差几个数量级，必须独立配置。
type Config struct {
	Interval time.Duration // 令牌补充间隔
	Burst    int           // 桶容量，允许的突发量
}

// Limiter 按源类别维护独立令牌桶
type Limiter struct {
	mu      sync.Mutex
	buckets map[content.SourceType]*rate.Limiter
	configs map[content.SourceType]Config
}

// New 构造限流器；未配置的类别按 defaultConfig 处理
func New(configs map[content.SourceType]Config) *Limiter {
	if configs == nil {
		configs = map[content.SourceType]Config{}
	}
	return &Limiter{
		buckets: make(map[content.SourceType]*rate.Limiter),
		configs: configs,
	}
}

var defaultConfig = Config{Interval: 2 * time.Second, Burst: 3}

func (l *Limiter) bucket(t content.SourceType) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[t]; ok {
		return b
	}
	cfg, ok := l.configs[t]
	if !ok || cfg.Interval <= 0 || cfg.Burst <= 0 {
		cfg = defaultConfig
	}
	b := rate.NewLimiter(rate.Every(cfg.Interval), cfg.Burst)
	l.buckets[t] = b
	return b
}

// Acquire 消费一个令牌。无令牌时最多等待到 ctx 截止时间；
// 等待时长会超出截止时间则直接返回 ErrThrottled 而不是阻塞。
func (l *Limiter) Acquire(ctx context.Context, t content.SourceType) error {
	b := l.bucket(t)

	res := b.Reserve()
	if !res.OK() {
		return ErrThrottled
	}

	delay := res.Delay()
	if delay == 0 {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
		res.Cancel()
		return ErrThrottled
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		res.Cancel()
		return ErrThrottled
	}
}
