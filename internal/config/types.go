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

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
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

// Config 描述单个代理实例的运行时行为。不同于多 Hub 路由模型，这里只有
// 一份全局参数和一组上游地址：所有请求都针对同一套仓库协议竞速抓取。
type Config struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	StoragePath     string   `mapstructure:"StoragePath"`
	Upstreams       []string `mapstructure:"Upstreams"`
	FailedCacheTTL  Duration `mapstructure:"FailedCacheTTL"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSizeMB    int      `mapstructure:"LogMaxSizeMB"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
}

// UpstreamSummary 返回适合写入启动日志的上游摘要。
func (c *Config) UpstreamSummary() string {
	return fmt.Sprintf("%d upstream(s): %s", len(c.Upstreams), strings.Join(c.Upstreams, ", "))
}
