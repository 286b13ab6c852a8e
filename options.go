package ats

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-ats/internal/app"
	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config     *config.Config
	configFile string
	logFile    string

	introspectAddr string

	local       types.PeerID
	transmitter interfaces.Transmitter
	offerer     interfaces.HelloOfferer
	dht         interfaces.DHT

	clock      clock.Clock
	registerer prometheus.Registerer
}

// toBootstrap 转换为引导选项
func (o *options) toBootstrap() ([]app.BootstrapOption, error) {
	cfg := o.config
	if o.configFile != "" {
		loaded, err := LoadConfig(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}
	if o.introspectAddr != "" {
		cfg.Diagnostics.EnableIntrospect = true
		cfg.Diagnostics.IntrospectAddr = o.introspectAddr
	}

	opts := []app.BootstrapOption{
		app.WithConfig(cfg),
		app.WithLocal(o.local),
	}
	if o.transmitter != nil {
		opts = append(opts, app.WithTransmitter(o.transmitter))
	}
	if o.offerer != nil {
		opts = append(opts, app.WithHelloOfferer(o.offerer))
	}
	if o.dht != nil {
		opts = append(opts, app.WithDHT(o.dht))
	}
	if o.clock != nil {
		opts = append(opts, app.WithClock(o.clock))
	}
	if o.registerer != nil {
		opts = append(opts, app.WithRegisterer(o.registerer))
	}
	return opts, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用给定配置
func WithConfig(cfg *Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("nil config")
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置，ATS_ 环境变量覆盖文件内容
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configFile = path
		return nil
	}
}

// WithLogFile 把日志写入文件
func WithLogFile(path string) Option {
	return func(o *options) error {
		o.logFile = path
		return nil
	}
}

// WithIntrospect 在 addr 上启用本地自省 HTTP 服务
func WithIntrospect(addr string) Option {
	return func(o *options) error {
		if addr == "" {
			return fmt.Errorf("empty introspect address")
		}
		o.introspectAddr = addr
		return nil
	}
}

// WithLocalPeer 设置本地节点标识
func WithLocalPeer(id PeerID) Option {
	return func(o *options) error {
		if id.IsEmpty() {
			return types.ErrEmptyPeerID
		}
		o.local = id
		return nil
	}
}

// WithTransmitter 提供核心传输层，启用网状网络
func WithTransmitter(t interfaces.Transmitter) Option {
	return func(o *options) error {
		o.transmitter = t
		return nil
	}
}

// WithHelloOfferer 提供 Hello 投递
func WithHelloOfferer(h interfaces.HelloOfferer) Option {
	return func(o *options) error {
		o.offerer = h
		return nil
	}
}

// WithDHT 提供路径查询
func WithDHT(d interfaces.DHT) Option {
	return func(o *options) error {
		o.dht = d
		return nil
	}
}

// WithClock 替换时钟
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithRegisterer 把指标注册到 reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}
