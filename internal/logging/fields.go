package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供路径/命中状态等字段，供 Request Bridge 请求日志复用。
func RequestFields(path string, cacheHit bool, status int, elapsedMS int64) logrus.Fields {
	return logrus.Fields{
		"path":       path,
		"cache_hit":  cacheHit,
		"status":     status,
		"elapsed_ms": elapsedMS,
	}
}
