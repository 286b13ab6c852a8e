package app

import (
	"context"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/bandwidth"
	"github.com/dep2p/go-ats/internal/core/ats/preference"
	"github.com/dep2p/go-ats/internal/core/ats/suggest"
	"github.com/dep2p/go-ats/internal/core/mesh/peers"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/internal/debug/introspect"
)

// Runtime 表示一个已通过 fx 组装完成的运行时
//
// Directory 在未加载网状网络模块时为 nil；Introspect 在未启用自省服务时为 nil。
type Runtime struct {
	Config      *config.Config
	Table       *address.Table
	Classifier  *address.Classifier
	Engine      *suggest.Engine
	Preferences *preference.Aggregator
	Sampler     *bandwidth.Sampler
	Reserver    *bandwidth.Reserver
	Directory   *peers.Directory
	Metrics     *metrics.Metrics
	Introspect  *introspect.Server

	stop func(ctx context.Context) error
}

// Stop 停止运行时（触发 fx 生命周期 OnStop）
func (r *Runtime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}
