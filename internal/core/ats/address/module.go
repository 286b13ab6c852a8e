package address

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/metrics"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config  config.AddressConfig `optional:"true"`
	Metrics *metrics.Metrics     `optional:"true"`
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("ats/address",
		fx.Provide(
			func(input ModuleInput) *Table {
				return NewTable(input.Metrics, WithAveragingWindow(input.Config.AveragingWindow))
			},
			func() *Classifier {
				c := NewClassifier(nil)
				if err := c.Refresh(); err != nil {
					log.Warn("read interface addresses failed", "error", err)
				}
				return c
			},
		),
	)
}
