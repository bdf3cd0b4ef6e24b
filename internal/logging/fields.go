package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/quantlens/offline-gate/internal/config"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// WorkerFields 输出 Worker 的标识字段：名称、范围与当前命名空间。
func WorkerFields(w config.WorkerConfig) logrus.Fields {
	return logrus.Fields{
		"worker":    w.Name,
		"scope":     w.Scope,
		"namespace": w.Namespace(),
	}
}

// RequestFields 提供 worker/命名空间/策略来源字段，供请求日志复用。
func RequestFields(worker, namespace, kind, source string, status int) logrus.Fields {
	return logrus.Fields{
		"worker":    worker,
		"namespace": namespace,
		"kind":      kind,
		"source":    source,
		"status":    status,
	}
}
