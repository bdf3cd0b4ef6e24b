package worker

import (
	"net/http"

	"github.com/quantlens/offline-gate/internal/cache"
)

// OfflineBody 是既无网络也无缓存 fallback 时返回的最小 HTML 页面。
const OfflineBody = "<!doctype html><title>Offline</title><h1>Offline</h1>"

func offlineResponse() *cache.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/html")
	return &cache.Response{
		Status: http.StatusOK,
		Header: header,
		Body:   []byte(OfflineBody),
	}
}
