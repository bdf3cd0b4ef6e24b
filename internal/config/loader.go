package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// globalOnlyKeys 只能出现在顶层，出现在 [[Worker]] 内时直接报错而不是静默忽略。
var globalOnlyKeys = []string{"ListenPort", "StoragePath", "StorageDriver"}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectWorkerLevelGlobals(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Workers {
		applyWorkerDefaults(&cfg.Workers[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("StorageDriver", "fs")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("DrainTimeout", "5s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.StorageDriver) == "" {
		g.StorageDriver = "fs"
	}
	g.StorageDriver = strings.ToLower(strings.TrimSpace(g.StorageDriver))
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.DrainTimeout.DurationValue() == 0 {
		g.DrainTimeout = Duration(5 * time.Second)
	}
}

func applyWorkerDefaults(w *WorkerConfig) {
	w.Name = strings.TrimSpace(w.Name)
	w.Scope = normalizeScope(w.Scope)
	w.NamespacePrefix = strings.TrimSpace(w.NamespacePrefix)
	w.Version = strings.TrimSpace(w.Version)
	w.FallbackPath = strings.TrimSpace(w.FallbackPath)
	if w.FallbackPath == "" {
		w.FallbackPath = "index.html"
	}
}

// normalizeScope 保证范围以 / 开头且以 / 结尾：site → /site/。
func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "/"
	}
	if !strings.HasPrefix(scope, "/") {
		scope = "/" + scope
	}
	if !strings.HasSuffix(scope, "/") {
		scope += "/"
	}
	return scope
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

func rejectWorkerLevelGlobals(v *viper.Viper) error {
	raw := v.Get("Worker")
	workers, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	for idx, entry := range workers {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name := fmt.Sprintf("#%d", idx)
		if rawName, ok := lookupFold(m, "Name"); ok {
			if str, ok := rawName.(string); ok && str != "" {
				name = str
			}
		}
		for _, key := range globalOnlyKeys {
			if _, exists := lookupFold(m, key); exists {
				return newFieldError(workerField(name, key), "只能在全局配置中设置")
			}
		}
	}

	return nil
}

// lookupFold 大小写不敏感地查找键，viper 对嵌套表的键大小写处理并不统一。
func lookupFold(m map[string]interface{}, key string) (interface{}, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
