package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Store 管理全部命名空间，对应平台侧的 caches 全局对象。
// 所有操作各自原子，不提供跨操作事务。
type Store interface {
	// Open 打开（必要时创建）指定命名空间并返回句柄。
	Open(ctx context.Context, namespace string) (Namespace, error)

	// Keys 返回以 prefix 开头的命名空间名称，按字典序排列；prefix 为空时返回全部。
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Delete 删除整个命名空间及其条目，返回该命名空间此前是否存在。
	Delete(ctx context.Context, namespace string) (bool, error)

	// Close 释放底层资源。
	Close() error
}

// Namespace 是单个命名空间的句柄。
type Namespace interface {
	Name() string

	// Put 以 key 写入响应快照，同 key 旧值被覆盖（后写者胜）。
	Put(ctx context.Context, key string, resp *Response) error

	// Match 查找 key 对应的条目，未命中时返回 ErrNotFound。
	Match(ctx context.Context, key string, opts MatchOptions) (*Response, error)
}

// MatchOptions 控制 Match 的比较方式。
type MatchOptions struct {
	// IgnoreSearch 为 true 时忽略查询串，仅比较路径。
	IgnoreSearch bool
}

// ErrNotFound 表示缓存未命中（CacheMiss）。
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidNamespace 表示命名空间名称为空或包含非法字符。
var ErrInvalidNamespace = errors.New("invalid cache namespace")

// Key 是解析后的请求标识，Path 始终以 / 开头，Query 不含 '?'。
type Key struct {
	Path  string
	Query string
}

// String 还原为 path?query 形式。
func (k Key) String() string {
	if k.Query == "" {
		return k.Path
	}
	return k.Path + "?" + k.Query
}

// ParseKey 将请求 URL（绝对或相对）规范化为 Key。
func ParseKey(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Key{}, errors.New("cache key required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Key{}, fmt.Errorf("parse cache key %q: %w", raw, err)
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return Key{Path: p, Query: u.RawQuery}, nil
}

func validateNamespace(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidNamespace
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %s", ErrInvalidNamespace, name)
	}
	return nil
}
