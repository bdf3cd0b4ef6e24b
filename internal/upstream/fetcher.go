package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/quantlens/offline-gate/internal/cache"
	"github.com/quantlens/offline-gate/internal/worker"
)

// conditionalHeaders 在绕过缓存时剔除，避免 304 被当作完整页面写入 fallback。
var conditionalHeaders = []string{
	"If-None-Match",
	"If-Modified-Since",
	"If-Match",
	"If-Unmodified-Since",
	"If-Range",
}

// Fetcher 将 worker.Request 转发到站点源，实现 worker.Fetcher。
type Fetcher struct {
	client *http.Client
	base   *url.URL
}

// NewFetcher 构造指向 base 源站的 Fetcher。
func NewFetcher(client *http.Client, base *url.URL) (*Fetcher, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if base == nil || base.Host == "" {
		return nil, errors.New("upstream base url is required")
	}
	return &Fetcher{client: client, base: base}, nil
}

// Fetch 执行单次请求，不重试。传输层失败 wrap worker.ErrNetworkFailure。
func (f *Fetcher) Fetch(ctx context.Context, in *worker.Request, mode worker.CacheMode) (*cache.Response, error) {
	req, err := f.buildRequest(ctx, in, mode)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", worker.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	header := http.Header{}
	CopyHeaders(header, resp.Header)
	snapshot, err := cache.NewResponse(req.URL.String(), resp.StatusCode, header, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", worker.ErrNetworkFailure, err)
	}
	return snapshot, nil
}

func (f *Fetcher) buildRequest(ctx context.Context, in *worker.Request, mode worker.CacheMode) (*http.Request, error) {
	method := in.Method
	if method == "" {
		method = http.MethodGet
	}

	relative := &url.URL{Path: in.Path()}
	if in.URL != nil {
		relative.RawPath = in.URL.RawPath
		relative.RawQuery = in.URL.RawQuery
	}
	target := f.base.ResolveReference(relative)

	var body io.Reader = http.NoBody
	if len(in.Body) > 0 {
		body = bytes.NewReader(in.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}

	if in.Header != nil {
		CopyHeaders(req.Header, in.Header)
	}
	req.Header.Del("Accept-Encoding")
	req.Host = target.Host

	switch mode {
	case worker.CacheModeNoStore, worker.CacheModeReload:
		for _, key := range conditionalHeaders {
			req.Header.Del(key)
		}
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
	return req, nil
}
