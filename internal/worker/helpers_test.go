package worker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantlens/offline-gate/internal/cache"
)

type fakeCall struct {
	Key  string
	Mode CacheMode
}

// fakeNetwork 模拟站点源，可随时切换离线。
type fakeNetwork struct {
	mu      sync.Mutex
	offline bool
	pages   map[string]string
	calls   []fakeCall
}

func newFakeNetwork(pages map[string]string) *fakeNetwork {
	return &fakeNetwork{pages: pages}
}

func (n *fakeNetwork) SetOffline(offline bool) {
	n.mu.Lock()
	n.offline = offline
	n.mu.Unlock()
}

func (n *fakeNetwork) SetPage(path, body string) {
	n.mu.Lock()
	n.pages[path] = body
	n.mu.Unlock()
}

func (n *fakeNetwork) Calls() []fakeCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]fakeCall(nil), n.calls...)
}

func (n *fakeNetwork) Fetch(_ context.Context, req *Request, mode CacheMode) (*cache.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fakeCall{Key: req.Key(), Mode: mode})
	if n.offline {
		return nil, fmt.Errorf("%w: dial tcp 127.0.0.1:80: connect: connection refused", ErrNetworkFailure)
	}

	header := http.Header{}
	body, ok := n.pages[req.Path()]
	if !ok {
		header.Set("Content-Type", "text/plain")
		return &cache.Response{URL: req.Key(), Status: http.StatusNotFound, Header: header, Body: []byte("not found")}, nil
	}
	if strings.HasSuffix(req.Path(), ".js") {
		header.Set("Content-Type", "application/javascript")
	} else {
		header.Set("Content-Type", "text/html; charset=utf-8")
	}
	return &cache.Response{URL: req.Key(), Status: http.StatusOK, Header: header, Body: []byte(body)}, nil
}

// queueScheduler 收集后台任务，由测试显式执行。
type queueScheduler struct {
	mu    sync.Mutex
	tasks []func(context.Context)
}

func (q *queueScheduler) Go(task func(context.Context)) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

func (q *queueScheduler) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *queueScheduler) RunAll() {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range tasks {
		task(context.Background())
	}
}

func shellConfig() Config {
	return Config{
		Name:            "shell",
		Scope:           "/site/",
		NamespacePrefix: "quantlens-shell",
		Version:         "2025-09-18-1",
		FallbackPath:    "index.html",
	}
}

func rootConfig() Config {
	return Config{
		Name:            "root",
		Scope:           "/",
		NamespacePrefix: "quantlens-root",
		Version:         "2025-09-18-root-1",
		FallbackPath:    "/site/index.html",
	}
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	return newDriverStore(t, cache.DriverFS)
}

func newDriverStore(t *testing.T, driver string) cache.Store {
	t.Helper()
	store, err := cache.New(driver, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type storeFactory func(t *testing.T) cache.Store

// forEachDriver 在 fs 与 sqlite 两种缓存驱动上各运行一次 fn。
func forEachDriver(t *testing.T, fn func(t *testing.T, newStore storeFactory)) {
	t.Helper()
	for _, driver := range []string{cache.DriverFS, cache.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			fn(t, func(t *testing.T) cache.Store {
				return newDriverStore(t, driver)
			})
		})
	}
}

func newTestWorker(t *testing.T, cfg Config, store cache.Store, network Fetcher, scheduler Scheduler) *Worker {
	t.Helper()
	if scheduler == nil {
		scheduler = InlineScheduler
	}
	w, err := New(cfg, store, network, Options{Scheduler: scheduler})
	require.NoError(t, err)
	return w
}

// startWorker 走完整的 install → activate 流程。
func startWorker(t *testing.T, w *Worker) *Registration {
	t.Helper()
	reg := NewRegistration(w.Config().Scope)
	require.NoError(t, reg.Update(context.Background(), w))
	return reg
}

func navigationRequest(t *testing.T, rawURL string) *Request {
	t.Helper()
	req, err := NewRequest(rawURL)
	require.NoError(t, err)
	req.Mode = ModeNavigate
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

func assetRequest(t *testing.T, rawURL string) *Request {
	t.Helper()
	req, err := NewRequest(rawURL)
	require.NoError(t, err)
	req.Mode = "no-cors"
	req.Header.Set("Accept", "*/*")
	return req
}
