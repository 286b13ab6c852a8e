// Package metrics 提供 go-ats 的 Prometheus 指标
//
// 指标注册到调用方提供的 Registerer，而不是全局默认注册表，
// 同一进程内可以并存多个服务实例（测试中尤为常见）。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const namespace = "ats"

// Metrics 服务指标集合
type Metrics struct {
	// 地址表
	Addresses    prometheus.Gauge
	ScopeChanges prometheus.Counter

	// 分配与通知
	Suggestions   *prometheus.CounterVec
	QuotaClamps   *prometheus.CounterVec
	Recomputes    prometheus.Counter
	Subscriptions prometheus.Gauge

	// 网状网络
	Peers        prometheus.Gauge
	PeersEvicted prometheus.Counter
	QueueDropped *prometheus.CounterVec
	PathsAdded   *prometheus.CounterVec

	// 采样与预留
	ClockAnomalies prometheus.Counter
	Reservations   *prometheus.CounterVec
}

// New 创建指标并注册到 reg
//
// reg 为 nil 时只创建不注册。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Addresses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "address",
			Name:      "records",
			Help:      "Number of address records in the table",
		}),
		ScopeChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "address",
			Name:      "scope_changes_total",
			Help:      "Number of address updates that changed the network scope",
		}),
		Suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggest",
			Name:      "notifications_total",
			Help:      "Number of suggestion callbacks delivered",
		}, []string{"kind"}),
		QuotaClamps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggest",
			Name:      "quota_clamps_total",
			Help:      "Number of solver results scaled down to respect a scope quota",
		}, []string{"scope"}),
		Recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggest",
			Name:      "recomputes_total",
			Help:      "Number of solver runs",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "suggest",
			Name:      "subscriptions",
			Help:      "Number of active suggestion subscriptions",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "peers",
			Help:      "Number of peers in the directory",
		}),
		PeersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "peers_evicted_total",
			Help:      "Number of peers evicted under the directory cap",
		}),
		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "queue_dropped_total",
			Help:      "Number of queued messages dropped without being sent",
		}, []string{"reason"}),
		PathsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "paths_total",
			Help:      "Number of path registrations by outcome",
		}, []string{"outcome"}),
		ClockAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bandwidth",
			Name:      "clock_anomalies_total",
			Help:      "Number of samples with a non-positive interval",
		}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bandwidth",
			Name:      "reservations_total",
			Help:      "Number of reservation requests by outcome",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

// Nop 返回未注册的指标集合
func Nop() *Metrics {
	return New(nil)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Addresses,
		m.ScopeChanges,
		m.Suggestions,
		m.QuotaClamps,
		m.Recomputes,
		m.Subscriptions,
		m.Peers,
		m.PeersEvicted,
		m.QueueDropped,
		m.PathsAdded,
		m.ClockAnomalies,
		m.Reservations,
	}
}

// Params 指标依赖参数
type Params struct {
	fx.In

	Registerer prometheus.Registerer `optional:"true"`
}

// Module 返回指标 Fx 模块
//
// 未注入 Registerer 时使用私有注册表。
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(func(p Params) *Metrics {
			reg := p.Registerer
			if reg == nil {
				reg = prometheus.NewRegistry()
			}
			return New(reg)
		}),
	)
}
