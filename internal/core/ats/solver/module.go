package solver

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/pkg/interfaces"
)

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("ats/solver",
		fx.Provide(func(cfg config.SolverConfig) interfaces.Solver {
			return NewProportional(cfg)
		}),
	)
}
