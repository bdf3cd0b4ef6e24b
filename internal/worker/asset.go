package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantlens/offline-gate/internal/cache"
)

// asset 实现 network-first 资源策略：网络 → 忽略查询串的缓存匹配 → 向调用方传播失败。
// 成功的网络响应不会写入缓存。
func (w *Worker) asset(ctx context.Context, req *Request) (*Result, error) {
	resp, netErr := w.fetcher.Fetch(ctx, req, CacheModeNoStore)
	if netErr == nil {
		return &Result{Response: resp, Source: SourceNetwork}, nil
	}

	// 缓存只按 GET 请求匹配。
	if !isCacheableMethod(req.Method) {
		return nil, fmt.Errorf("%w: %w", netErr, cache.ErrNotFound)
	}

	ns, err := w.openCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w (cache unavailable: %v)", netErr, err)
	}
	hit, err := ns.Match(ctx, req.Key(), cache.MatchOptions{IgnoreSearch: true})
	switch {
	case err == nil:
		return &Result{Response: hit, Source: SourceCache}, nil
	case errors.Is(err, cache.ErrNotFound):
		return nil, fmt.Errorf("%w: %w", netErr, cache.ErrNotFound)
	default:
		return nil, fmt.Errorf("%w (cache lookup: %v)", netErr, err)
	}
}
