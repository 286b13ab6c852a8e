package bandwidth

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/metrics"
)

const (
	// trimInterval 清理空闲节点的周期
	trimInterval = time.Minute

	// idleTimeout 无流量多久后清理节点统计
	idleTimeout = 10 * time.Minute
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Sampler     config.SamplerConfig
	Reservation config.ReservationConfig

	Clock   clock.Clock      `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Sampler  *Sampler
	Reserver *Reserver
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	return ModuleOutput{
		Sampler:  NewSampler(input.Sampler, input.Clock, input.Metrics),
		Reserver: NewReserver(input.Reservation, input.Clock, input.Metrics),
	}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("ats/bandwidth",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Sampler *Sampler
	Clock   clock.Clock `optional:"true"`
}

func registerLifecycle(input lifecycleInput) {
	clk := input.Clock
	if clk == nil {
		clk = clock.New()
	}

	var stopTrim chan struct{}

	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			log.Info("带宽统计模块启动")

			stopTrim = make(chan struct{})
			go func() {
				ticker := clk.Ticker(trimInterval)
				defer ticker.Stop()

				for {
					select {
					case <-ticker.C:
						if n := input.Sampler.TrimIdle(clk.Now().Add(-idleTimeout)); n > 0 {
							log.Debug("清理空闲节点统计", "count", n)
						}
					case <-stopTrim:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			log.Info("带宽统计模块停止")
			if stopTrim != nil {
				close(stopTrim)
			}
			return nil
		},
	})
}
