package worker

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Config 是单个 Worker 的不可变参数，两种部署形态之间唯一的差异点。
type Config struct {
	// Name 用于日志与诊断，例如 shell / root。
	Name string
	// Scope 是拦截范围的路径前缀，必须以 / 开头并以 / 结尾。
	Scope string
	// NamespacePrefix 例如 quantlens-shell，完整命名空间为 prefix-version。
	NamespacePrefix string
	// Version 手动递增，是唯一的缓存失效手段。
	Version string
	// FallbackPath 为相对路径时相对于 Scope 解析，绝对路径原样使用。
	FallbackPath string
}

// Validate 检查配置完整性。
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("worker name required")
	}
	if !strings.HasPrefix(c.Scope, "/") || !strings.HasSuffix(c.Scope, "/") {
		return fmt.Errorf("worker %s: scope must start and end with /: %q", c.Name, c.Scope)
	}
	if strings.TrimSpace(c.NamespacePrefix) == "" {
		return fmt.Errorf("worker %s: namespace prefix required", c.Name)
	}
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("worker %s: version required", c.Name)
	}
	if strings.TrimSpace(c.FallbackPath) == "" {
		return fmt.Errorf("worker %s: fallback path required", c.Name)
	}
	if strings.ContainsAny(c.NamespacePrefix+c.Version, `/\`) {
		return fmt.Errorf("worker %s: namespace must not contain path separators", c.Name)
	}
	return nil
}

// Namespace 返回当前版本的命名空间名称。
func (c Config) Namespace() string {
	return c.StalePrefix() + c.Version
}

// StalePrefix 返回同一前缀下所有版本共享的名称前缀，activate 据此清理旧命名空间。
func (c Config) StalePrefix() string {
	return c.NamespacePrefix + "-"
}

// FallbackKey 返回 fallback 文档在缓存中的键（绝对路径）。
func (c Config) FallbackKey() string {
	if strings.HasPrefix(c.FallbackPath, "/") {
		return c.FallbackPath
	}
	resolved := path.Join(c.Scope, c.FallbackPath)
	if strings.HasSuffix(c.FallbackPath, "/") && !strings.HasSuffix(resolved, "/") {
		resolved += "/"
	}
	return resolved
}

// InScope 判断请求路径是否落在当前 Worker 的拦截范围内。
func (c Config) InScope(requestPath string) bool {
	if requestPath == "" {
		requestPath = "/"
	}
	return strings.HasPrefix(requestPath, c.Scope) || requestPath+"/" == c.Scope
}
