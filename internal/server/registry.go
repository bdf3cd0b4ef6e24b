package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quantlens/offline-gate/internal/cache"
	"github.com/quantlens/offline-gate/internal/config"
	"github.com/quantlens/offline-gate/internal/logging"
	"github.com/quantlens/offline-gate/internal/upstream"
	"github.com/quantlens/offline-gate/internal/worker"
)

// WorkerRoute 将 Worker 配置与派生对象（解析后的 Upstream、注册项）聚合在一起，
// 供路由/代理层直接复用。
type WorkerRoute struct {
	// Config 是 config.toml 中声明的 Worker 字段副本。
	Config config.WorkerConfig
	// ListenPort 记录当前监听端口，方便日志输出。
	ListenPort int
	// UpstreamURL 在构造 Registry 时提前解析完成。
	UpstreamURL *url.URL
	// Registration 持有该范围内当前激活的 Worker。
	Registration *worker.Registration

	initial *worker.Worker
}

// Active 返回当前接管该范围的 Worker。
func (r *WorkerRoute) Active() *worker.Worker {
	if r == nil || r.Registration == nil {
		return nil
	}
	return r.Registration.Active()
}

// RegistryOptions 注入 Registry 构造 Worker 时需要的协作者。
type RegistryOptions struct {
	Logger   *logrus.Logger
	Store    cache.Store
	Client   *http.Client
	Observer worker.Observer
	// Scheduler 为空时每个 Worker 使用独立的 TrackedScheduler。
	Scheduler worker.Scheduler
}

// WorkerRegistry 提供请求路径到 WorkerRoute 的查询能力，范围按最长前缀匹配。
type WorkerRegistry struct {
	logger  *logrus.Logger
	routes  map[string]*WorkerRoute
	ordered []*WorkerRoute
	// byScope 按范围长度倒序，Lookup 时第一个命中即为最长前缀。
	byScope []*WorkerRoute
}

// NewWorkerRegistry 根据配置构建每个范围的 Worker。调用方应在启动阶段创建一次，
// 随后调用 Start 完成 install/activate。
func NewWorkerRegistry(cfg *config.Config, opts RegistryOptions) (*WorkerRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	client := opts.Client
	if client == nil {
		client = upstream.NewHTTPClient(cfg.Global.UpstreamTimeout.DurationValue())
	}

	registry := &WorkerRegistry{
		logger: opts.Logger,
		routes: make(map[string]*WorkerRoute, len(cfg.Workers)),
	}

	for _, wc := range cfg.Workers {
		if _, exists := registry.routes[wc.Name]; exists {
			return nil, fmt.Errorf("duplicate worker name %s", wc.Name)
		}
		for _, existing := range registry.ordered {
			if existing.Config.Scope == wc.Scope {
				return nil, fmt.Errorf("duplicate scope %s for worker %s", wc.Scope, wc.Name)
			}
		}

		route, err := buildWorkerRoute(cfg, wc, client, opts)
		if err != nil {
			return nil, err
		}
		registry.routes[wc.Name] = route
		registry.ordered = append(registry.ordered, route)
	}

	registry.byScope = append([]*WorkerRoute(nil), registry.ordered...)
	sort.SliceStable(registry.byScope, func(i, j int) bool {
		return len(registry.byScope[i].Config.Scope) > len(registry.byScope[j].Config.Scope)
	})

	return registry, nil
}

func buildWorkerRoute(cfg *config.Config, wc config.WorkerConfig, client *http.Client, opts RegistryOptions) (*WorkerRoute, error) {
	upstreamURL, err := url.Parse(wc.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream for worker %s: %w", wc.Name, err)
	}
	fetcher, err := upstream.NewFetcher(client, upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("worker %s: %w", wc.Name, err)
	}

	w, err := worker.New(workerConfig(wc), opts.Store, fetcher, worker.Options{
		Logger:    opts.Logger,
		Scheduler: opts.Scheduler,
		Observer:  opts.Observer,
	})
	if err != nil {
		return nil, err
	}

	return &WorkerRoute{
		Config:       wc,
		ListenPort:   cfg.Global.ListenPort,
		UpstreamURL:  upstreamURL,
		Registration: worker.NewRegistration(wc.Scope),
		initial:      w,
	}, nil
}

func workerConfig(wc config.WorkerConfig) worker.Config {
	return worker.Config{
		Name:            wc.Name,
		Scope:           wc.Scope,
		NamespacePrefix: wc.NamespacePrefix,
		Version:         wc.Version,
		FallbackPath:    wc.FallbackPath,
	}
}

// Start 依次安装并激活所有 Worker。install 失败（命名空间无法打开）时返回错误；
// activate 的清理失败只记录日志，Worker 仍然接管其范围。
func (r *WorkerRegistry) Start(ctx context.Context) error {
	if r == nil {
		return errors.New("registry is nil")
	}
	for _, route := range r.ordered {
		if route.initial == nil {
			continue
		}
		err := route.Registration.Update(ctx, route.initial)
		if route.Active() == nil {
			return fmt.Errorf("start worker %s: %w", route.Config.Name, err)
		}
		if err != nil && r.logger != nil {
			fields := logging.WorkerFields(route.Config)
			fields["action"] = "startup"
			fields["error"] = err.Error()
			r.logger.WithFields(fields).Warn("worker activated with prune errors")
		}
		route.initial = nil
	}
	return nil
}

// Drain 并发等待所有激活 Worker 的后台写入完成，ctx 超时后放弃剩余写入。
func (r *WorkerRegistry) Drain(ctx context.Context) error {
	if r == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, route := range r.ordered {
		active := route.Active()
		if active == nil {
			continue
		}
		g.Go(func() error {
			return active.Drain(gctx)
		})
	}
	return g.Wait()
}

// Lookup 根据请求路径查找最长前缀匹配的 WorkerRoute。
func (r *WorkerRegistry) Lookup(requestPath string) (*WorkerRoute, bool) {
	if r == nil {
		return nil, false
	}
	for _, route := range r.byScope {
		if workerConfig(route.Config).InScope(requestPath) {
			return route, true
		}
	}
	return nil, false
}

// Get 按名称返回 WorkerRoute，供诊断接口使用。
func (r *WorkerRegistry) Get(name string) (*WorkerRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[name]
	return route, ok
}

// List 返回当前注册的 WorkerRoute 列表（按配置定义的顺序），用于诊断输出。
func (r *WorkerRegistry) List() []*WorkerRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	return append([]*WorkerRoute(nil), r.ordered...)
}
