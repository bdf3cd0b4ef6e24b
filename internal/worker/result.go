package worker

import "github.com/quantlens/offline-gate/internal/cache"

// Source 标记响应的来源，对应 X-Offline-Source 响应头。
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceSynthesized Source = "synthesized"
	// SourceFailed 仅用于指标，asset 网络失败且缓存未命中时记录。
	SourceFailed Source = "failed"
)

// Result 是一次 fetch 拦截的最终结果。
type Result struct {
	Response  *cache.Response
	Source    Source
	Kind      Kind
	Namespace string
}
