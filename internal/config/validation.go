package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedStorageDrivers = map[string]struct{}{
	"fs":     {},
	"sqlite": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if _, ok := supportedStorageDrivers[g.StorageDriver]; !ok {
		return newFieldError("Global.StorageDriver", "仅支持 fs|sqlite")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.DrainTimeout.DurationValue() < 0 {
		return newFieldError("Global.DrainTimeout", "不能为负数")
	}

	if len(c.Workers) == 0 {
		return errors.New("至少需要配置一个 Worker")
	}

	seenNames := map[string]struct{}{}
	seenScopes := map[string]string{}
	for i := range c.Workers {
		w := &c.Workers[i]
		if w.Name == "" {
			return newFieldError("Worker[].Name", "不能为空")
		}
		if _, exists := seenNames[w.Name]; exists {
			return newFieldError(workerField(w.Name, "Name"), "重复")
		}
		seenNames[w.Name] = struct{}{}

		if !strings.HasPrefix(w.Scope, "/") || !strings.HasSuffix(w.Scope, "/") {
			return newFieldError(workerField(w.Name, "Scope"), "必须以 / 开头并以 / 结尾")
		}
		if other, exists := seenScopes[w.Scope]; exists {
			return newFieldError(workerField(w.Name, "Scope"), fmt.Sprintf("与 %s 重复", other))
		}
		seenScopes[w.Scope] = w.Name

		if err := validateNamespacePart(w.NamespacePrefix); err != nil {
			return fmt.Errorf("%s: %w", workerField(w.Name, "NamespacePrefix"), err)
		}
		if err := validateNamespacePart(w.Version); err != nil {
			return fmt.Errorf("%s: %w", workerField(w.Name, "Version"), err)
		}
		if w.FallbackPath == "" {
			return newFieldError(workerField(w.Name, "FallbackPath"), "不能为空")
		}
		if strings.Contains(w.FallbackPath, "://") {
			return newFieldError(workerField(w.Name, "FallbackPath"), "只能是同源路径")
		}
		if err := validateUpstream(w.Upstream); err != nil {
			return fmt.Errorf("%s: %w", workerField(w.Name, "Upstream"), err)
		}
	}

	return nil
}

func validateNamespacePart(value string) error {
	if value == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(value, `/\ `) {
		return errors.New("不允许包含路径分隔符或空格")
	}
	if strings.HasPrefix(value, ".") {
		return errors.New("不能以 . 开头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
