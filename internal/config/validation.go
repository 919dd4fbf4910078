package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if c.StoragePath == "" {
		return newFieldError("StoragePath", "不能为空")
	}
	if c.FailedCacheTTL.DurationValue() <= 0 {
		return newFieldError("FailedCacheTTL", "必须大于 0")
	}
	if c.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}

	if len(c.Upstreams) == 0 {
		return newFieldError("Upstreams", "至少需要配置一个上游")
	}
	seen := map[string]struct{}{}
	for i, raw := range c.Upstreams {
		if err := validateUpstream(raw); err != nil {
			return fmt.Errorf("Upstreams[%d]: %w", i, err)
		}
		if _, dup := seen[raw]; dup {
			return newFieldError(fmt.Sprintf("Upstreams[%d]", i), "与已有上游重复")
		}
		seen[raw] = struct{}{}
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
