package worker

import "errors"

var (
	// ErrNetworkFailure 表示网络请求本身失败（离线、DNS、超时），不包括非 2xx 状态码。
	ErrNetworkFailure = errors.New("network failure")
	// ErrSeedFailure 表示 install 阶段预取 fallback 文档失败，始终被吸收。
	ErrSeedFailure = errors.New("seed fallback document failed")
	// ErrOutOfScope 表示请求不在 Worker 的拦截范围内。
	ErrOutOfScope = errors.New("request outside worker scope")
	// ErrNotActive 表示 Worker 尚未激活却收到了 fetch 事件。
	ErrNotActive = errors.New("worker not active")
)
