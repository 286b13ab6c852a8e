package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/bandwidth"
	"github.com/dep2p/go-ats/internal/core/ats/preference"
	"github.com/dep2p/go-ats/internal/core/ats/suggest"
	"github.com/dep2p/go-ats/internal/core/mesh/peers"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

// ============================================================================
//                              分配下发
// ============================================================================

type allocationInput struct {
	fx.In

	Engine    *suggest.Engine
	Reserver  *bandwidth.Reserver
	Directory *peers.Directory `optional:"true"`
}

// wireAllocationListener 把分配结果下发到预留和发送队列
//
// 入站带宽决定预留速率，出站带宽决定网状网络队列的发送速率。
func wireAllocationListener(input allocationInput) {
	input.Engine.AddListener(func(peer types.PeerID, a interfaces.Assignment) {
		input.Reserver.SetBandwidth(peer, a.Bandwidth.In)
		if input.Directory != nil {
			input.Directory.SetBandwidth(peer, a.Bandwidth.Out)
		}
	})
}

// ============================================================================
//                              后台任务
// ============================================================================

// runTicker 在 OnStart 启动周期任务，OnStop 停止
func runTicker(lc fx.Lifecycle, clk clock.Clock, name string, interval time.Duration, fn func()) {
	var stop chan struct{}
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			stop = make(chan struct{})
			go func() {
				defer close(done)
				ticker := clk.Ticker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-ticker.C:
						fn()
					case <-stop:
						return
					}
				}
			}()
			log.Debug("后台任务启动", "task", name, "interval", interval)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if stop == nil {
				return nil
			}
			close(stop)
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})
}

type agingInput struct {
	fx.In

	LC          fx.Lifecycle
	Clock       clock.Clock
	Config      config.PreferenceConfig
	Preferences *preference.Aggregator
	Engine      *suggest.Engine
}

// registerAgingLoop 周期性老化偏好，有变化时重新求解
func registerAgingLoop(input agingInput) {
	interval := time.Duration(input.Config.AgingInterval)
	if interval <= 0 {
		interval = config.DefaultAgingInterval
	}
	runTicker(input.LC, input.Clock, "preference-aging", interval, func() {
		if input.Preferences.Age() {
			input.Engine.Recompute()
		}
	})
}

type samplerInput struct {
	fx.In

	LC      fx.Lifecycle
	Clock   clock.Clock
	Sampler *bandwidth.Sampler
	Table   *address.Table
}

// registerSamplerLoop 周期性采样吞吐量并写入活跃地址
func registerSamplerLoop(input samplerInput) {
	runTicker(input.LC, input.Clock, "throughput-sampler", input.Sampler.Interval(), func() {
		feedUtilization(input.Sampler.Tick(), input.Table)
	})
}

// feedUtilization 把速率写入各节点的活跃地址
func feedUtilization(stats []bandwidth.PeerStats, table *address.Table) int {
	n := 0
	for _, ps := range stats {
		rec, ok := table.Active(ps.Peer)
		if !ok {
			continue
		}
		table.SetUtilization(rec, uint64(ps.Stats.RateIn), uint64(ps.Stats.RateOut))
		n++
	}
	return n
}

type interfaceInput struct {
	fx.In

	LC         fx.Lifecycle
	Clock      clock.Clock
	Config     config.AddressConfig
	Classifier *address.Classifier
}

// registerInterfaceLoop 周期性刷新本机接口网段
func registerInterfaceLoop(input interfaceInput) {
	interval := time.Duration(input.Config.InterfaceRefresh)
	if interval <= 0 {
		interval = config.DefaultInterfaceRefresh
	}
	runTicker(input.LC, input.Clock, "interface-refresh", interval, func() {
		_ = input.Classifier.Refresh()
	})
}

// ============================================================================
//                              信号等待
// ============================================================================

// WaitSignal 等待退出信号或 ctx 结束
func WaitSignal(ctx context.Context) os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		return sig
	case <-ctx.Done():
		return nil
	}
}
