package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dep2p/go-ats/pkg/types"
)

// ============================================================================
//                              配置加载
// ============================================================================

// LoadFile 从 JSON 文件加载配置
//
// 文件中未出现的字段保留默认值。
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv 应用环境变量覆盖
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// 支持的环境变量（均使用 ATS_ 前缀）：
//   - ATS_MAX_PEERS
//   - ATS_MIN_BANDWIDTH
//   - ATS_NOTIFY_THRESHOLD
//   - ATS_PREFERENCE_AGING_INTERVAL（如 "10s"）
//   - ATS_QUOTA_<SCOPE>_IN / ATS_QUOTA_<SCOPE>_OUT（如 ATS_QUOTA_WAN_OUT）
//
// 无法解析的值返回错误，不会被静默忽略。
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get(EnvMaxPeers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvMaxPeers, err)
		}
		c.Mesh.MaxPeers = n
	}

	if v, ok := get(EnvMinBandwidth); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvMinBandwidth, err)
		}
		c.Solver.MinBandwidth = n
	}

	if v, ok := get(EnvNotifyThreshold); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvNotifyThreshold, err)
		}
		c.Solver.NotifyThreshold = n
	}

	if v, ok := get(EnvAgingInterval); ok {
		if err := c.Preference.AgingInterval.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, EnvAgingInterval, err)
		}
	}

	for _, scope := range types.AllNetworkTypes() {
		quota := c.Quotas.For(scope)
		for _, dir := range []string{"IN", "OUT"} {
			name := fmt.Sprintf(EnvQuotaFormat, strings.ToUpper(scope.String()), dir)
			v, ok := get(name)
			if !ok {
				continue
			}
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			if dir == "IN" {
				quota.In = n
			} else {
				quota.Out = n
			}
		}
		c.Quotas.Set(scope, quota)
	}

	return nil
}
