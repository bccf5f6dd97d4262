package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/newsfuse/newsfuse/internal/content"
)

// Provider 抽象一个外部内容源。实现必须：
// 1) 尊重 ctx 的截止时间，超时返回错误而不是无限阻塞；
// 2) 把源特有的错误翻译成统一的 ErrorKind；
// 3) 单条解析失败只跳过并计数，不让整次调用失败；
// 4) 除构造时持有的凭证外不保留跨调用状态。
type Provider interface {
	Name() string
	Type() content.SourceType
	Fetch(ctx context.Context, query string, limit int) ([]content.Item, error)
}

// ErrorKind 统一的错误分类，聚合器据此决定健康度惩罚与熔断
type ErrorKind int

const (
	KindUnauthorized  ErrorKind = iota + 1 // 凭证无效或过期，本次调用内不重试
	KindQuotaExceeded                      // 源侧配额用尽，冷却窗口内不再调用
	KindUnavailable                        // 网络或源侧临时故障，计入熔断计数
	KindMalformed                          // 响应整体无法解析
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindUnavailable:
		return "unavailable"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error 携带分类信息的适配器错误
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 构造分类错误，err 可为 nil
func NewError(kind ErrorKind, name string, err error) *Error {
	return &Error{Kind: kind, Provider: name, Err: err}
}

// KindOf 提取错误的分类；非 *Error 一律视为 Unavailable（网络层错误等）
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnavailable
}

// kindFromStatus 把 HTTP 状态码翻译成统一分类，各适配器共用
func kindFromStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindUnauthorized
	case status == 429:
		return KindQuotaExceeded
	default:
		return KindUnavailable
	}
}
