package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quantlens/offline-gate/internal/config"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 用户不受目录权限限制")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "offline-gate.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offline-gate.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestWorkerFields(t *testing.T) {
	fields := WorkerFields(config.WorkerConfig{
		Name:            "shell",
		Scope:           "/site/",
		NamespacePrefix: "quantlens-shell",
		Version:         "v1",
	})
	if fields["namespace"] != "quantlens-shell-v1" {
		t.Fatalf("unexpected namespace field: %v", fields["namespace"])
	}
	if fields["scope"] != "/site/" || fields["worker"] != "shell" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestRequestFields(t *testing.T) {
	fields := RequestFields("root", "quantlens-root-v1", "navigation", "cache", 200)
	if fields["source"] != "cache" || fields["status"] != 200 {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
