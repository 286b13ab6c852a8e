package peers

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Local 本地节点标识
	Local types.PeerID `name:"local"`

	Config      config.MeshConfig
	Transmitter interfaces.Transmitter

	// Offerer Hello 投递（可选）
	Offerer interfaces.HelloOfferer `optional:"true"`

	// DHT 路径查询（可选）
	DHT interfaces.DHT `optional:"true"`

	// Clock 时钟（可选）
	Clock clock.Clock `optional:"true"`

	Metrics *metrics.Metrics `optional:"true"`
}

// ProvideDirectory 提供节点目录
func ProvideDirectory(input ModuleInput) (*Directory, error) {
	return New(input.Local, input.Config, Deps{
		Transmitter: input.Transmitter,
		Offerer:     input.Offerer,
		DHT:         input.DHT,
		Clock:       input.Clock,
		Metrics:     input.Metrics,
	})
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("mesh/peers",
		fx.Provide(ProvideDirectory),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC        fx.Lifecycle
	Directory *Directory
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			log.Info("节点目录停止", "peers", input.Directory.Count())
			return input.Directory.Close()
		},
	})
}
