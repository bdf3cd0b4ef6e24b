// Package proxy 将 Fiber 请求交给范围内激活的 Worker，并把策略结果写回客户端。
package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/quantlens/offline-gate/internal/cache"
	"github.com/quantlens/offline-gate/internal/logging"
	"github.com/quantlens/offline-gate/internal/server"
	"github.com/quantlens/offline-gate/internal/upstream"
	"github.com/quantlens/offline-gate/internal/worker"
)

const (
	headerOfflineSource    = "X-Offline-Source"
	headerOfflineNamespace = "X-Offline-Namespace"
)

// Handler 实现 server.ProxyHandler：构造 worker.Request，投递 fetch 事件并等待结果。
type Handler struct {
	logger *logrus.Logger
}

// NewHandler constructs a proxy handler with the shared logger.
func NewHandler(logger *logrus.Logger) *Handler {
	return &Handler{logger: logger}
}

// Handle 将请求交给 route 当前激活的 Worker；asset 网络失败且缓存未命中时返回 502。
func (h *Handler) Handle(c fiber.Ctx, route *server.WorkerRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)

	active := route.Active()
	if active == nil {
		h.logFailure(route, requestID, "worker_not_active", nil, started)
		return h.writeError(c, fiber.StatusServiceUnavailable, "worker_not_active")
	}

	req, err := buildWorkerRequest(c)
	if err != nil {
		h.logFailure(route, requestID, "invalid_request", err, started)
		return h.writeError(c, fiber.StatusBadRequest, "invalid_request")
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := active.Dispatch(ctx, worker.Event{Kind: worker.EventFetch, Request: req}).Result(ctx)
	if err != nil {
		status, code := classifyError(err)
		h.logFailure(route, requestID, code, err, started)
		return h.writeError(c, status, code)
	}

	h.logResult(route, requestID, req, result, started)
	return writeResult(c, req.Method, result)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, worker.ErrNetworkFailure) && errors.Is(err, cache.ErrNotFound):
		return fiber.StatusBadGateway, "network_and_cache_miss"
	case errors.Is(err, worker.ErrOutOfScope):
		return fiber.StatusNotFound, "scope_unmapped"
	case errors.Is(err, worker.ErrNotActive):
		return fiber.StatusServiceUnavailable, "worker_not_active"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "request_cancelled"
	case errors.Is(err, worker.ErrNetworkFailure):
		return fiber.StatusBadGateway, "network_failure"
	default:
		return fiber.StatusInternalServerError, "fetch_failed"
	}
}

// buildWorkerRequest 把 Fiber 请求转换为 worker.Request，保留原始 path/query 以便缓存键与源站一致。
func buildWorkerRequest(c fiber.Ctx) (*worker.Request, error) {
	rawURI := string(c.Request().URI().RequestURI())
	if rawURI == "" {
		rawURI = "/"
	}
	parsed, err := url.ParseRequestURI(rawURI)
	if err != nil {
		return nil, err
	}

	header := fiberHeadersAsHTTP(c)
	header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := header.Get("X-Forwarded-For"); prior != "" {
			header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			header.Set("X-Forwarded-For", ip)
		}
	}
	header.Set("X-Forwarded-Proto", c.Protocol())

	req := &worker.Request{
		Method: c.Method(),
		URL:    &url.URL{Path: parsed.Path, RawPath: parsed.RawPath, RawQuery: parsed.RawQuery},
		Header: header,
		Mode:   header.Get("Sec-Fetch-Mode"),
	}
	if body := c.Body(); len(body) > 0 {
		req.Body = append([]byte(nil), body...)
	}
	return req, nil
}

func writeResult(c fiber.Ctx, method string, result *worker.Result) error {
	resp := result.Response
	if resp == nil {
		return fiber.NewError(fiber.StatusInternalServerError, "empty worker result")
	}

	copyResponseHeaders(c, resp.Header)
	c.Set(headerOfflineSource, string(result.Source))
	if result.Namespace != "" {
		c.Set(headerOfflineNamespace, result.Namespace)
	}
	if server.RequestID(c) != "" {
		c.Set("X-Request-ID", server.RequestID(c))
	}

	c.Status(resp.Status)
	if method == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

// copyResponseHeaders 跳过 hop-by-hop 与 Content-Length，长度由 fasthttp 根据 body 计算。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if upstream.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Append(key, value)
		}
	}
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(route *server.WorkerRoute, requestID string, req *worker.Request, result *worker.Result, started time.Time) {
	if h.logger == nil {
		return
	}
	fields := logging.RequestFields(
		route.Config.Name,
		result.Namespace,
		string(result.Kind),
		string(result.Source),
		result.Response.Status,
	)
	fields["action"] = "fetch"
	fields["path"] = req.Key()
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	h.logger.WithFields(fields).Info("fetch_complete")
}

func (h *Handler) logFailure(route *server.WorkerRoute, requestID, code string, err error, started time.Time) {
	if h.logger == nil {
		return
	}
	fields := logging.WorkerFields(route.Config)
	fields["action"] = "fetch"
	fields["error_code"] = code
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	h.logger.WithFields(fields).Warn("fetch_failed")
}
