package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quantlens/offline-gate/internal/cache"
)

// Options 注入 Worker 的可选协作者，零值均有默认实现。
type Options struct {
	Logger *logrus.Logger
	// Scheduler 执行 fire-and-forget 的 fallback 写入，默认 TrackedScheduler。
	Scheduler Scheduler
	Observer  Observer
}

// Worker 是一个参数化的离线拦截实例。
type Worker struct {
	cfg       Config
	store     cache.Store
	fetcher   Fetcher
	logger    *logrus.Logger
	scheduler Scheduler
	observer  Observer

	mu      sync.RWMutex
	state   State
	clients Clients
}

// New 校验配置并构造 Worker，初始状态为 parsed。
func New(cfg Config, store cache.Store, fetcher Fetcher, opts Options) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = &TrackedScheduler{}
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Worker{
		cfg:       cfg,
		store:     store,
		fetcher:   fetcher,
		logger:    logger,
		scheduler: scheduler,
		observer:  observer,
		state:     StateParsed,
	}, nil
}

// Config 返回 Worker 的配置副本。
func (w *Worker) Config() Config {
	return w.cfg
}

// State 返回当前生命周期阶段。
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

// Drain 等待默认调度器上仍在进行的后台写入；注入自定义 Scheduler 时直接返回。
func (w *Worker) Drain(ctx context.Context) error {
	if tracked, ok := w.scheduler.(*TrackedScheduler); ok {
		return tracked.Wait(ctx)
	}
	return nil
}

// Install 打开当前命名空间并尝试预取 fallback 文档。预取失败（离线、非 2xx、写入失败）
// 只记录日志，install 本身仍然成功；只有命名空间无法打开时才返回错误。
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)

	ns, err := w.store.Open(ctx, w.cfg.Namespace())
	if err != nil {
		w.setState(StateParsed)
		w.observer.ObserveLifecycle(w.cfg.Name, EventInstall, "error")
		return fmt.Errorf("open namespace %s: %w", w.cfg.Namespace(), err)
	}

	fields := w.fields("install")
	fields["fallback"] = w.cfg.FallbackKey()
	if err := w.seed(ctx, ns); err != nil {
		fields["error"] = err.Error()
		w.logger.WithFields(fields).Warn("install_seed_skipped")
		w.observer.ObserveLifecycle(w.cfg.Name, EventInstall, "seed_skipped")
	} else {
		w.logger.WithFields(fields).Info("install_complete")
		w.observer.ObserveLifecycle(w.cfg.Name, EventInstall, "ok")
	}

	w.setState(StateInstalled)
	return nil
}

func (w *Worker) seed(ctx context.Context, ns cache.Namespace) error {
	req, err := NewRequest(w.cfg.FallbackKey())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSeedFailure, err)
	}
	resp, err := w.fetcher.Fetch(ctx, req, CacheModeReload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSeedFailure, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: upstream status %d", ErrSeedFailure, resp.Status)
	}
	if err := ns.Put(ctx, w.cfg.FallbackKey(), resp); err != nil {
		return fmt.Errorf("%w: %w", ErrSeedFailure, err)
	}
	return nil
}

// Activate 删除同前缀下除当前版本外的全部命名空间，随后立即接管范围内所有客户端。
// 清理失败不会阻止激活，错误会被返回供调用方记录。重复执行是幂等的。
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(StateActivating)

	deleted, pruneErr := w.prune(ctx)

	// 先进入 activated 再接管，接管后路由到本实例的请求不会遇到 ErrNotActive。
	w.setState(StateActivated)
	w.mu.RLock()
	clients := w.clients
	w.mu.RUnlock()
	if clients != nil {
		clients.Claim(w)
	}

	fields := w.fields("activate")
	fields["deleted"] = deleted
	fields["claimed"] = clients != nil
	if pruneErr != nil {
		fields["error"] = pruneErr.Error()
		w.logger.WithFields(fields).Error("activate_prune_failed")
		w.observer.ObserveLifecycle(w.cfg.Name, EventActivate, "error")
		return pruneErr
	}
	w.logger.WithFields(fields).Info("activate_complete")
	w.observer.ObserveLifecycle(w.cfg.Name, EventActivate, "ok")
	return nil
}

func (w *Worker) prune(ctx context.Context) ([]string, error) {
	current := w.cfg.Namespace()
	names, err := w.store.Keys(ctx, w.cfg.StalePrefix())
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}

	var (
		mu      sync.Mutex
		deleted []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		if name == current {
			continue
		}
		g.Go(func() error {
			existed, err := w.store.Delete(gctx, name)
			if err != nil {
				return fmt.Errorf("delete namespace %s: %w", name, err)
			}
			if existed {
				mu.Lock()
				deleted = append(deleted, name)
				mu.Unlock()
				w.observer.ObserveNamespaceDeleted(w.cfg.Name, name)
			}
			return nil
		})
	}
	err = g.Wait()
	return deleted, err
}

// Fetch 是 FetchRouter：分类请求并交给对应策略。navigation 永不返回 error；
// asset 在网络失败且缓存未命中时返回同时 wrap ErrNetworkFailure 与 cache.ErrNotFound 的错误。
func (w *Worker) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	if !w.cfg.InScope(req.Path()) {
		return nil, fmt.Errorf("%w: %s", ErrOutOfScope, req.Path())
	}
	switch state := w.State(); state {
	case StateActivated, StateRedundant:
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotActive, state)
	}

	started := time.Now()
	kind := Classify(req)

	var (
		result *Result
		err    error
	)
	if kind == KindNavigation {
		result = w.navigate(ctx, req)
	} else {
		result, err = w.asset(ctx, req)
	}

	source := SourceFailed
	if result != nil {
		result.Kind = kind
		result.Namespace = w.cfg.Namespace()
		source = result.Source
	}
	w.observer.ObserveFetch(w.cfg.Name, kind, source, time.Since(started))
	return result, err
}

func (w *Worker) openCurrent(ctx context.Context) (cache.Namespace, error) {
	return w.store.Open(ctx, w.cfg.Namespace())
}

func (w *Worker) fields(action string) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"worker":    w.cfg.Name,
		"scope":     w.cfg.Scope,
		"namespace": w.cfg.Namespace(),
	}
}

func isCacheableMethod(method string) bool {
	return method == "" || method == http.MethodGet
}
