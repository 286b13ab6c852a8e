package config

import (
	"go.uber.org/fx"
)

// Module 返回配置 Fx 模块
//
// 从 *Config 拆分出各子配置，供组件按需注入。
// 调用方负责以 fx.Supply 提供 *Config。
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			func(c *Config) QuotaConfig { return c.Quotas },
			func(c *Config) AddressConfig { return c.Address },
			func(c *Config) MeshConfig { return c.Mesh },
			func(c *Config) SolverConfig { return c.Solver },
			func(c *Config) PreferenceConfig { return c.Preference },
			func(c *Config) SamplerConfig { return c.Sampler },
			func(c *Config) ReservationConfig { return c.Reservation },
			func(c *Config) DiagnosticsConfig { return c.Diagnostics },
		),
		fx.Invoke(Validate),
	)
}
