package app

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

// BootstrapOption Bootstrap 配置选项
type BootstrapOption func(*Bootstrap)

// WithConfig 设置配置
func WithConfig(cfg *config.Config) BootstrapOption {
	return func(b *Bootstrap) {
		b.config = cfg
	}
}

// WithLocal 设置本地节点标识
func WithLocal(id types.PeerID) BootstrapOption {
	return func(b *Bootstrap) {
		b.local = id
	}
}

// WithTransmitter 设置核心传输层
//
// 未设置时不加载网状网络模块。
func WithTransmitter(t interfaces.Transmitter) BootstrapOption {
	return func(b *Bootstrap) {
		b.transmitter = t
	}
}

// WithHelloOfferer 设置 Hello 投递
func WithHelloOfferer(o interfaces.HelloOfferer) BootstrapOption {
	return func(b *Bootstrap) {
		b.offerer = o
	}
}

// WithDHT 设置路径查询
func WithDHT(d interfaces.DHT) BootstrapOption {
	return func(b *Bootstrap) {
		b.dht = d
	}
}

// WithClock 设置时钟
func WithClock(clk clock.Clock) BootstrapOption {
	return func(b *Bootstrap) {
		b.clock = clk
	}
}

// WithRegisterer 设置指标注册器
func WithRegisterer(reg prometheus.Registerer) BootstrapOption {
	return func(b *Bootstrap) {
		b.registerer = reg
	}
}
