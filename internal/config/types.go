package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有 Worker 共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	StorageDriver   string   `mapstructure:"StorageDriver"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	DrainTimeout    Duration `mapstructure:"DrainTimeout"`
}

// WorkerConfig 描述一个离线拦截实例：拦截范围、源站与缓存命名空间参数。
type WorkerConfig struct {
	Name            string `mapstructure:"Name"`
	Scope           string `mapstructure:"Scope"`
	Upstream        string `mapstructure:"Upstream"`
	NamespacePrefix string `mapstructure:"NamespacePrefix"`
	Version         string `mapstructure:"Version"`
	FallbackPath    string `mapstructure:"FallbackPath"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Workers []WorkerConfig `mapstructure:"Worker"`
}

// Namespace 返回 Worker 当前版本的命名空间名称，仅用于日志展示。
func (w WorkerConfig) Namespace() string {
	return w.NamespacePrefix + "-" + w.Version
}

// WorkerSummaries 返回所有 Worker 的 name:scope@namespace 摘要，供启动日志使用。
func WorkerSummaries(workers []WorkerConfig) []string {
	if len(workers) == 0 {
		return nil
	}
	result := make([]string, len(workers))
	for i, w := range workers {
		result[i] = fmt.Sprintf("%s:%s@%s", w.Name, w.Scope, w.Namespace())
	}
	return result
}
