// Package metrics 以 prometheus 指标记录离线策略命中与生命周期事件。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantlens/offline-gate/internal/worker"
)

// DefaultNamespace 是指标名前缀。
const DefaultNamespace = "offline_gate"

// Options 控制指标模块的构造参数。
type Options struct {
	// Namespace 为空时使用 DefaultNamespace。
	Namespace string
	// DisableRuntimeCollectors 为 true 时不注册 Go/进程指标，测试中使用。
	DisableRuntimeCollectors bool
}

// Collectors 持有独立的 prometheus.Registry，并实现 worker.Observer。
type Collectors struct {
	registry          *prometheus.Registry
	fetches           *prometheus.CounterVec
	fetchLatency      *prometheus.HistogramVec
	lifecycle         *prometheus.CounterVec
	namespacesDeleted *prometheus.CounterVec
}

var _ worker.Observer = (*Collectors)(nil)

// New 构造一组指标并注册到新的 Registry。
func New(opts Options) (*Collectors, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collectors{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_total",
				Help:      "Intercepted requests by worker, request kind and response source",
			},
			[]string{"worker", "kind", "source"},
		),
		fetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time spent resolving an intercepted request",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"worker", "kind"},
		),
		lifecycle: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_events_total",
				Help:      "Install and activate events by result",
			},
			[]string{"worker", "event", "result"},
		),
		namespacesDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "namespaces_deleted_total",
				Help:      "Stale cache namespaces removed during activation",
			},
			[]string{"worker"},
		),
	}

	if !opts.DisableRuntimeCollectors {
		if err := c.registry.Register(prometheus.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := c.registry.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}
	for _, collector := range []prometheus.Collector{c.fetches, c.fetchLatency, c.lifecycle, c.namespacesDeleted} {
		if err := c.registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry 返回底层 Registry。
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler 返回暴露指标的 http.Handler。
func (c *Collectors) Handler() http.Handler {
	if c == nil || c.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) ObserveFetch(name string, kind worker.Kind, source worker.Source, elapsed time.Duration) {
	c.fetches.WithLabelValues(name, string(kind), string(source)).Inc()
	c.fetchLatency.WithLabelValues(name, string(kind)).Observe(elapsed.Seconds())
}

func (c *Collectors) ObserveLifecycle(name string, event worker.EventKind, result string) {
	c.lifecycle.WithLabelValues(name, string(event), result).Inc()
}

func (c *Collectors) ObserveNamespaceDeleted(name string, _ string) {
	c.namespacesDeleted.WithLabelValues(name).Inc()
}
