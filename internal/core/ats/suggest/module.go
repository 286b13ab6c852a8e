package suggest

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/preference"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/pkg/interfaces"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config config.SolverConfig
	Quotas config.QuotaConfig
	Table  *address.Table
	Solver interfaces.Solver

	Preferences *preference.Aggregator `optional:"true"`
	Clock       clock.Clock            `optional:"true"`
	Metrics     *metrics.Metrics       `optional:"true"`
}

// ProvideEngine 提供推荐引擎
func ProvideEngine(input ModuleInput) *Engine {
	return New(input.Config, input.Quotas, Deps{
		Table:       input.Table,
		Solver:      input.Solver,
		Preferences: input.Preferences,
		Clock:       input.Clock,
		Metrics:     input.Metrics,
	})
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("ats/suggest",
		fx.Provide(ProvideEngine),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC     fx.Lifecycle
	Engine *Engine
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			log.Info("推荐引擎停止")
			return input.Engine.Close()
		},
	})
}
