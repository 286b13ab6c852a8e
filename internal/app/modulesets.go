// Package app 提供模块集合清单
//
// modulesets.go 集中维护"哪些模块属于哪一层"，是 Bootstrap 组装的唯一模块来源。
package app

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/bandwidth"
	"github.com/dep2p/go-ats/internal/core/ats/preference"
	"github.com/dep2p/go-ats/internal/core/ats/solver"
	"github.com/dep2p/go-ats/internal/core/ats/suggest"
	"github.com/dep2p/go-ats/internal/core/mesh/peers"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/internal/debug/introspect"
)

// FoundationModules 基础层模块组合
//
// 指标始终加载。
func FoundationModules() fx.Option {
	return fx.Options(
		metrics.Module(),
	)
}

// ATSModules 传输选择模块组合
//
// 地址表、求解器、偏好聚合器、推荐引擎、吞吐量采样与预留。
func ATSModules() fx.Option {
	return fx.Options(
		address.Module(),
		solver.Module(),
		preference.Module(),
		suggest.Module(),
		bandwidth.Module(),
	)
}

// MeshModules 网状网络模块组合
//
// 依赖核心传输层，未提供 Transmitter 时不加载。
func MeshModules() fx.Option {
	return fx.Options(
		peers.Module(),
	)
}

// DiagnosticsModules 诊断模块组合
//
// 自省服务由 Diagnostics.EnableIntrospect 控制，未启用时不监听端口。
func DiagnosticsModules() fx.Option {
	return fx.Options(
		introspect.Module(),
	)
}
