package preference

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-ats/internal/config"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config config.PreferenceConfig
	Clock  clock.Clock `optional:"true"`
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("ats/preference",
		fx.Provide(func(input ModuleInput) *Aggregator {
			return New(input.Config, input.Clock)
		}),
	)
}
