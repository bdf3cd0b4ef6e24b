package routes

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/quantlens/offline-gate/internal/server"
	"github.com/quantlens/offline-gate/internal/worker"
)

// RegisterWorkerRoutes 暴露 /-/workers 诊断接口，供运维查询各范围当前激活的 Worker。
func RegisterWorkerRoutes(app *fiber.App, registry *server.WorkerRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/workers", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"workers": encodeWorkers(registry.List()),
		})
	})

	app.Get("/-/workers/:name", func(c fiber.Ctx) error {
		name := strings.TrimSpace(c.Params("name"))
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "worker_name_required"})
		}
		route, ok := registry.Get(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "worker_not_found"})
		}
		return c.JSON(encodeWorker(route))
	})
}

// RegisterMetricsRoute 通过 adaptor 挂载 prometheus 的 http.Handler。
func RegisterMetricsRoute(app *fiber.App, handler http.Handler) {
	if app == nil || handler == nil {
		return
	}
	app.Get("/-/metrics", adaptor.HTTPHandler(handler))
}

type workerPayload struct {
	Name         string `json:"name"`
	Scope        string `json:"scope"`
	Upstream     string `json:"upstream"`
	Namespace    string `json:"namespace"`
	Version      string `json:"version"`
	FallbackPath string `json:"fallback_path"`
	FallbackKey  string `json:"fallback_key"`
	State        string `json:"state"`
}

func encodeWorkers(routes []*server.WorkerRoute) []workerPayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]workerPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeWorker(route))
	}
	return result
}

func encodeWorker(route *server.WorkerRoute) workerPayload {
	payload := workerPayload{
		Name:         route.Config.Name,
		Scope:        route.Config.Scope,
		Upstream:     route.Config.Upstream,
		Namespace:    route.Config.Namespace(),
		Version:      route.Config.Version,
		FallbackPath: route.Config.FallbackPath,
		State:        string(worker.StateParsed),
	}
	if active := route.Active(); active != nil {
		cfg := active.Config()
		payload.Namespace = cfg.Namespace()
		payload.Version = cfg.Version
		payload.FallbackKey = cfg.FallbackKey()
		payload.State = string(active.State())
	}
	return payload
}
