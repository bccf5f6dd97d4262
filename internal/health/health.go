package health

import (
	"sort"
	"sync"
	"time"
)

// State 熔断器状态机
type State string

const (
	StateClosed   State = "closed"    // 正常，放行所有调用
	StateOpen     State = "open"      // 熔断中，冷却窗口内跳过该源
	StateHalfOpen State = "half_open" // 冷却结束，放行一次探测调用
)

const (
	// DefaultFailureThreshold 连续失败多少次后熔断
	DefaultFailureThreshold = 3
	// DefaultCooldown 熔断后的冷却窗口
	DefaultCooldown = 5 * time.Minute
)

// Snapshot 对外暴露的只读健康快照，供状态接口展示
type Snapshot struct {
	Provider            string    `json:"provider"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastSuccess         time.Time `json:"lastSuccess"`
	LastFailure         time.Time `json:"lastFailure"`
}

type entry struct {
	state       State
	failures    int
	lastSuccess time.Time
	lastFailure time.Time
	openedAt    time.Time
	probing     bool // half-open 状态下已放行探测调用
}

// Registry 进程级的源健康登记表。多个聚合调用可能并发读写同一个源的
// 计数器，所有状态变更都在锁内完成。
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*entry
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Registry{
		entries:   make(map[string]*entry),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (r *Registry) get(name string) *entry {
	e, ok := r.entries[name]
	if !ok {
		e = &entry{state: StateClosed}
		r.entries[name] = e
	}
	return e
}

// Allow 判断该源当前是否允许调用。
// open 状态在冷却窗口内一律跳过；窗口结束转 half-open 并放行一次探测，
// 探测结果出来之前其余调用继续被跳过。
func (r *Registry) Allow(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.get(name)
	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if r.now().Sub(e.openedAt) >= r.cooldown {
			e.state = StateHalfOpen
			e.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if e.probing {
			return false
		}
		e.probing = true
		return true
	}
	return true
}

// RecordSuccess 调用成功：清零失败计数并闭合熔断器
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.get(name)
	e.state = StateClosed
	e.failures = 0
	e.probing = false
	e.lastSuccess = r.now()
}

// RecordFailure 记录一次适配器上报的失败。
// 限流拒绝和截止时间放弃不计入——那些情况调用方不应调用本方法。
func (r *Registry) RecordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.get(name)
	e.failures++
	e.lastFailure = r.now()

	if e.state == StateHalfOpen || e.failures >= r.threshold {
		e.state = StateOpen
		e.openedAt = r.now()
		e.probing = false
	}
}

// ReleaseProbe 归还 half-open 的探测名额。
// 探测调用因本地限流或截止时间被放弃时没有结论，既不惩罚也不闭合，
// 下一次聚合可以重新探测。
func (r *Registry) ReleaseProbe(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok && e.state == StateHalfOpen {
		e.probing = false
	}
}

// TripOpen 立即熔断：源侧配额用尽时冷却窗口内重试没有意义
func (r *Registry) TripOpen(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.get(name)
	e.failures++
	e.lastFailure = r.now()
	e.state = StateOpen
	e.openedAt = r.now()
	e.probing = false
}

// StateOf 返回某个源的当前状态（未登记过视为 closed）
func (r *Registry) StateOf(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		return e.state
	}
	return StateClosed
}

// Snapshots 返回全部源的健康快照，按名称排序保证输出稳定
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, Snapshot{
			Provider:            name,
			State:               e.state,
			ConsecutiveFailures: e.failures,
			LastSuccess:         e.lastSuccess,
			LastFailure:         e.lastFailure,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
