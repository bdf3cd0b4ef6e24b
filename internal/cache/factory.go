package cache

import (
	"fmt"
	"strings"
)

// Driver 名称与配置中的 StorageDriver 一致。
const (
	DriverFS     = "fs"
	DriverSQLite = "sqlite"
)

// New 根据驱动名构建 Store，空驱动名回退为 fs。
func New(driver, basePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverFS:
		return NewFileStore(basePath)
	case DriverSQLite:
		return NewSQLiteStore(basePath)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
