package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/quantlens/offline-gate/internal/cache"
	"github.com/quantlens/offline-gate/internal/config"
	"github.com/quantlens/offline-gate/internal/logging"
	"github.com/quantlens/offline-gate/internal/metrics"
	"github.com/quantlens/offline-gate/internal/proxy"
	"github.com/quantlens/offline-gate/internal/server"
	"github.com/quantlens/offline-gate/internal/server/routes"
	"github.com/quantlens/offline-gate/internal/version"
)

// configEnvKey 允许通过环境变量指定配置路径，--config 优先。
const configEnvKey = "OFFLINE_GATE_CONFIG"

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["workers"] = config.WorkerSummaries(cfg.Workers)
		fields["storage_driver"] = cfg.Global.StorageDriver
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 缓存 → Worker 注册表（install/activate）→ Fiber server。
	store, err := cache.New(cfg.Global.StorageDriver, cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}
	defer store.Close()

	collectors, err := metrics.New(metrics.Options{})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化指标失败: %v\n", err)
		return 1
	}

	registry, err := server.NewWorkerRegistry(cfg, server.RegistryOptions{
		Logger:   logger,
		Store:    store,
		Observer: collectors,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Worker 注册表失败: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := registry.Start(ctx); err != nil {
		fmt.Fprintf(stdErr, "Worker 启动失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["workers"] = config.WorkerSummaries(cfg.Workers)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_driver"] = cfg.Global.StorageDriver
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	app, err := newHTTPApp(cfg, registry, collectors, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务初始化失败: %v\n", err)
		return 1
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Global.ListenPort))
	if err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}

	if err := serve(ctx, app, ln, registry, cfg.Global.DrainTimeout.DurationValue(), logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务异常退出: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("offline-gate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 OFFLINE_GATE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnvKey)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func newHTTPApp(cfg *config.Config, registry *server.WorkerRegistry, collectors *metrics.Collectors, logger *logrus.Logger) (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      proxy.NewHandler(logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterWorkerRoutes(app, registry)
	routes.RegisterMetricsRoute(app, collectors.Handler())
	return app, nil
}

// serve 在 ln 上运行 app，ctx 结束后停止接收新请求，并在 drainTimeout 内等待后台 fallback 写入完成。
func serve(ctx context.Context, app *fiber.App, ln net.Listener, registry *server.WorkerRegistry, drainTimeout time.Duration, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   ln.Addr().String(),
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"action": "shutdown"}).WithError(err).Warn("Fiber 关闭失败")
	}
	if err := registry.Drain(shutdownCtx); err != nil {
		fields := logrus.Fields{"action": "drain"}
		if errors.Is(err, context.DeadlineExceeded) {
			logger.WithFields(fields).Warn("后台写入未在超时内完成，已放弃")
		} else {
			logger.WithFields(fields).WithError(err).Warn("等待后台写入失败")
		}
	}

	logger.WithFields(logrus.Fields{"action": "shutdown"}).Info("服务已停止")
	return nil
}
