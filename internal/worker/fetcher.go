package worker

import (
	"context"

	"github.com/quantlens/offline-gate/internal/cache"
)

// CacheMode 对应 fetch 的 cache 选项，决定如何绕过中间 HTTP 缓存。
type CacheMode string

const (
	CacheModeDefault CacheMode = ""
	// CacheModeNoStore 完全绕过 HTTP 缓存，用于每次拦截请求。
	CacheModeNoStore CacheMode = "no-store"
	// CacheModeReload 强制回源并允许刷新中间缓存，用于 install 预取。
	CacheModeReload CacheMode = "reload"
)

// Fetcher 执行一次真实的网络请求。只有请求本身失败时才返回 error，
// 且该 error 必须 wrap ErrNetworkFailure；非 2xx 状态码属于成功的响应。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request, mode CacheMode) (*cache.Response, error)
}

// FetcherFunc 将函数适配为 Fetcher。
type FetcherFunc func(ctx context.Context, req *Request, mode CacheMode) (*cache.Response, error)

// Fetch 实现 Fetcher。
func (f FetcherFunc) Fetch(ctx context.Context, req *Request, mode CacheMode) (*cache.Response, error) {
	return f(ctx, req, mode)
}
