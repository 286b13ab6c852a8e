package introspect

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/bandwidth"
	"github.com/dep2p/go-ats/internal/core/ats/preference"
	"github.com/dep2p/go-ats/internal/core/ats/suggest"
	"github.com/dep2p/go-ats/internal/core/mesh/peers"
)

// Module 返回自省服务 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// IntrospectParams 自省服务依赖参数
type IntrospectParams struct {
	fx.In

	Config      config.DiagnosticsConfig
	Clock       clock.Clock            `optional:"true"`
	Table       *address.Table         `optional:"true"`
	Engine      *suggest.Engine        `optional:"true"`
	Preferences *preference.Aggregator `optional:"true"`
	Sampler     *bandwidth.Sampler     `optional:"true"`
	Directory   *peers.Directory       `optional:"true"`
}

// IntrospectOutput 自省服务输出
type IntrospectOutput struct {
	fx.Out

	Server *Server `optional:"true"`
}

// NewFromParams 从参数创建自省服务，未启用时返回空输出
func NewFromParams(params IntrospectParams) IntrospectOutput {
	if !params.Config.EnableIntrospect {
		return IntrospectOutput{}
	}

	return IntrospectOutput{
		Server: New(Config{
			Addr:        params.Config.IntrospectAddr,
			Clock:       params.Clock,
			Table:       params.Table,
			Engine:      params.Engine,
			Preferences: params.Preferences,
			Sampler:     params.Sampler,
			Directory:   params.Directory,
		}),
	}
}

type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Server *Server `optional:"true"`
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(input lifecycleInput) {
	if input.Server == nil {
		return
	}
	server := input.Server
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}
