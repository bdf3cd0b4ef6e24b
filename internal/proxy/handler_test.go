package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/quantlens/offline-gate/internal/cache"
	"github.com/quantlens/offline-gate/internal/config"
	"github.com/quantlens/offline-gate/internal/server"
	"github.com/quantlens/offline-gate/internal/worker"
)

func TestHandlerNavigationOnlineServesNetwork(t *testing.T) {
	env := newProxyEnv(t)

	resp := env.do(t, navigate("/site/reports"))
	body := readBody(t, resp)
	if resp.StatusCode != fiber.StatusOK || body != "<h1>page /site/reports</h1>" {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("X-Offline-Source"); got != "network" {
		t.Fatalf("expected network source, got %s", got)
	}
	if got := resp.Header.Get("X-Offline-Namespace"); got != "quantlens-shell-v1" {
		t.Fatalf("unexpected namespace header: %s", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
	if got := env.lastCacheControl.Load(); got != "no-cache" {
		t.Fatalf("navigation should bypass http caches, got Cache-Control=%v", got)
	}
}

func TestHandlerNavigationOfflineServesLastPage(t *testing.T) {
	env := newProxyEnv(t)

	// online navigation replaces the fallback slot with the latest page
	_ = readBody(t, env.do(t, navigate("/site/latest")))
	env.origin.Close()

	resp := env.do(t, navigate("/site/anything"))
	body := readBody(t, resp)
	if resp.StatusCode != fiber.StatusOK || body != "<h1>page /site/latest</h1>" {
		t.Fatalf("expected fallback document, got %d %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("X-Offline-Source"); got != "cache" {
		t.Fatalf("expected cache source, got %s", got)
	}
}

func TestHandlerNavigationOfflineWithoutFallbackSynthesizes(t *testing.T) {
	env := newProxyEnv(t)
	env.origin.Close()

	resp := env.do(t, navigate("/docs/"))
	_ = readBody(t, resp)
	if got := resp.Header.Get("X-Offline-Source"); got != "cache" {
		t.Fatalf("root worker seeded while online, expected cache source, got %s", got)
	}

	ns, err := env.store.Open(context.Background(), "quantlens-root-v1")
	if err != nil {
		t.Fatalf("open namespace: %v", err)
	}
	if _, err := env.store.Delete(context.Background(), ns.Name()); err != nil {
		t.Fatalf("delete namespace: %v", err)
	}

	resp = env.do(t, navigate("/docs/"))
	body := readBody(t, resp)
	if resp.StatusCode != fiber.StatusOK || body != worker.OfflineBody {
		t.Fatalf("expected synthesized offline page, got %d %s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}
	if got := resp.Header.Get("X-Offline-Source"); got != "synthesized" {
		t.Fatalf("expected synthesized source, got %s", got)
	}
}

func TestHandlerAssetOfflineMatchesIgnoringSearch(t *testing.T) {
	env := newProxyEnv(t)

	ns, err := env.store.Open(context.Background(), "quantlens-shell-v1")
	if err != nil {
		t.Fatalf("open namespace: %v", err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/javascript")
	if err := ns.Put(context.Background(), "/site/script.js?v=1", &cache.Response{Status: http.StatusOK, Header: header, Body: []byte("console.log(1)")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	env.origin.Close()

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/site/script.js?v=2", nil))
	body := readBody(t, resp)
	if resp.StatusCode != fiber.StatusOK || body != "console.log(1)" {
		t.Fatalf("expected cached asset, got %d %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/javascript" {
		t.Fatalf("cached headers should be replayed, got %s", got)
	}
}

func TestHandlerAssetOfflineMissReturnsBadGateway(t *testing.T) {
	env := newProxyEnv(t)
	env.origin.Close()

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/site/missing.css", nil))
	body := readBody(t, resp)
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "network_and_cache_miss") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHandlerAssetOnlinePassesStatusThrough(t *testing.T) {
	env := newProxyEnv(t)

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/site/gone.js", nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("upstream 404 should pass through, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Offline-Source"); got != "network" {
		t.Fatalf("expected network source, got %s", got)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{worker.ErrOutOfScope, fiber.StatusNotFound, "scope_unmapped"},
		{worker.ErrNotActive, fiber.StatusServiceUnavailable, "worker_not_active"},
		{context.DeadlineExceeded, fiber.StatusGatewayTimeout, "request_cancelled"},
		{worker.ErrNetworkFailure, fiber.StatusBadGateway, "network_failure"},
		{io.ErrUnexpectedEOF, fiber.StatusInternalServerError, "fetch_failed"},
	}
	for _, tc := range cases {
		status, code := classifyError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.code, status, code)
		}
	}
}

type proxyEnv struct {
	app              *fiber.App
	origin           *httptest.Server
	store            cache.Store
	lastCacheControl atomic.Value
}

func newProxyEnv(t *testing.T) *proxyEnv {
	t.Helper()
	env := &proxyEnv{}

	env.origin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.lastCacheControl.Store(r.Header.Get("Cache-Control"))
		if strings.HasSuffix(r.URL.Path, ".js") || strings.HasSuffix(r.URL.Path, ".css") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "<h1>page "+r.URL.Path+"</h1>")
	}))
	t.Cleanup(env.origin.Close)

	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	env.store = store

	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, UpstreamTimeout: config.Duration(time.Second)},
		Workers: []config.WorkerConfig{
			{Name: "shell", Scope: "/site/", Upstream: env.origin.URL, NamespacePrefix: "quantlens-shell", Version: "v1", FallbackPath: "index.html"},
			{Name: "root", Scope: "/", Upstream: env.origin.URL, NamespacePrefix: "quantlens-root", Version: "v1", FallbackPath: "/site/index.html"},
		},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry, err := server.NewWorkerRegistry(cfg, server.RegistryOptions{
		Logger:    logger,
		Store:     store,
		Scheduler: worker.InlineScheduler,
	})
	if err != nil {
		t.Fatalf("registry init failed: %v", err)
	}
	if err := registry.Start(context.Background()); err != nil {
		t.Fatalf("registry start failed: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      NewHandler(logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("app init failed: %v", err)
	}
	env.app = app
	return env
}

func (e *proxyEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func navigate(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}
