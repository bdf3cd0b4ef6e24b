package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/quantlens/offline-gate/internal/cache"
)

// navigate 实现 network-first 导航策略：网络 → fallback 文档 → 合成离线页。
func (w *Worker) navigate(ctx context.Context, req *Request) *Result {
	resp, err := w.fetcher.Fetch(ctx, req, CacheModeNoStore)
	if err == nil {
		// 只有 GET 导航的响应可以作为 fallback 文档。
		if isCacheableMethod(req.Method) {
			w.scheduleFallbackWrite(resp.Clone())
		}
		return &Result{Response: resp, Source: SourceNetwork}
	}

	fields := w.fields("fetch")
	fields["kind"] = KindNavigation
	fields["path"] = req.Path()
	fields["error"] = err.Error()

	ns, openErr := w.openCurrent(ctx)
	if openErr == nil {
		cached, matchErr := ns.Match(ctx, w.cfg.FallbackKey(), cache.MatchOptions{})
		if matchErr == nil {
			w.logger.WithFields(fields).Info("navigation_served_fallback")
			return &Result{Response: cached, Source: SourceCache}
		}
		if !errors.Is(matchErr, cache.ErrNotFound) {
			fields["cache_error"] = matchErr.Error()
		}
	} else {
		fields["cache_error"] = openErr.Error()
	}

	w.logger.WithFields(fields).Warn("navigation_served_offline")
	return &Result{Response: offlineResponse(), Source: SourceSynthesized}
}

// scheduleFallbackWrite 不等待写入完成即返回；进程退出时任务可能被放弃。
func (w *Worker) scheduleFallbackWrite(snapshot *cache.Response) {
	if snapshot.Status == http.StatusPartialContent {
		return
	}
	w.scheduler.Go(func(ctx context.Context) {
		ns, err := w.openCurrent(ctx)
		if err == nil {
			err = ns.Put(ctx, w.cfg.FallbackKey(), snapshot)
		}
		if err != nil {
			fields := w.fields("fallback_write")
			fields["error"] = err.Error()
			w.logger.WithFields(fields).Warn("fallback_write_failed")
			return
		}
		w.logger.WithFields(w.fields("fallback_write")).Debug("fallback_write_complete")
	})
}
