// Package app 提供 go-ats 应用编排层
//
// app 包负责：
//   - fx 模块组装
//   - 外部协作者注入
//   - 后台任务与生命周期管理
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("app")

const (
	// startTimeout fx 启动超时
	startTimeout = 30 * time.Second

	// stopTimeout fx 停止超时
	stopTimeout = 30 * time.Second
)

// Bootstrap 应用引导程序
//
// Bootstrap 负责：
//   - 解析配置
//   - 组装 fx 模块
//   - 管理应用生命周期
type Bootstrap struct {
	config *config.Config
	local  types.PeerID

	transmitter interfaces.Transmitter
	offerer     interfaces.HelloOfferer
	dht         interfaces.DHT
	clock       clock.Clock
	registerer  prometheus.Registerer

	fxApp   *fx.App
	runtime Runtime
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts ...BootstrapOption) *Bootstrap {
	b := &Bootstrap{}
	for _, opt := range opts {
		opt(b)
	}
	if b.config == nil {
		b.config = config.NewConfig()
	}
	if b.clock == nil {
		b.clock = clock.New()
	}
	return b
}

// MeshEnabled 是否加载网状网络模块
func (b *Bootstrap) MeshEnabled() bool {
	return b.transmitter != nil
}

// Build 构建运行时（不启动）
func (b *Bootstrap) Build() (*Runtime, error) {
	if err := b.setupLogging(); err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	if b.MeshEnabled() && b.local.IsEmpty() {
		return nil, fmt.Errorf("mesh requires a local peer id")
	}

	b.fxApp = fx.New(
		fx.Options(b.setupModules()...),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)
	if err := b.fxApp.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}

	rt := b.runtime
	rt.Config = b.config
	rt.stop = b.Stop
	return &rt, nil
}

// Start 构建并启动运行时
func (b *Bootstrap) Start(ctx context.Context) (*Runtime, error) {
	rt, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := b.StartBuilt(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}

// StartBuilt 启动已构建的应用（触发 fx OnStart）
func (b *Bootstrap) StartBuilt(ctx context.Context) error {
	if b.fxApp == nil {
		return fmt.Errorf("start fx app: not built")
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := b.fxApp.Start(startCtx); err != nil {
		return fmt.Errorf("start fx app: %w", err)
	}
	log.Info("运行时已启动", "mesh", b.MeshEnabled())
	return nil
}

// Stop 停止应用
func (b *Bootstrap) Stop(ctx context.Context) error {
	if b.fxApp == nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	return b.fxApp.Stop(stopCtx)
}

// setupModules 组装所有 fx 模块
func (b *Bootstrap) setupModules() []fx.Option {
	modules := []fx.Option{
		b.setupConfigModule(),
		b.setupExternals(),
		FoundationModules(),
		ATSModules(),
	}
	if b.MeshEnabled() {
		modules = append(modules, MeshModules())
	}
	modules = append(modules,
		DiagnosticsModules(),
		fx.Invoke(wireAllocationListener),
		fx.Invoke(registerAgingLoop),
		fx.Invoke(registerSamplerLoop),
		fx.Invoke(registerInterfaceLoop),
		b.populate(),
	)
	return modules
}

// setupConfigModule 配置模块
func (b *Bootstrap) setupConfigModule() fx.Option {
	return fx.Options(
		fx.Supply(b.config),
		config.Module(),
	)
}

// setupExternals 注入外部协作者
func (b *Bootstrap) setupExternals() fx.Option {
	opts := []fx.Option{
		fx.Provide(func() clock.Clock { return b.clock }),
	}
	if b.registerer != nil {
		opts = append(opts, fx.Provide(func() prometheus.Registerer { return b.registerer }))
	}
	if !b.local.IsEmpty() {
		opts = append(opts, fx.Provide(
			fx.Annotate(func() types.PeerID { return b.local }, fx.ResultTags(`name:"local"`)),
		))
	}
	if b.transmitter != nil {
		opts = append(opts, fx.Provide(func() interfaces.Transmitter { return b.transmitter }))
	}
	if b.offerer != nil {
		opts = append(opts, fx.Provide(func() interfaces.HelloOfferer { return b.offerer }))
	}
	if b.dht != nil {
		opts = append(opts, fx.Provide(func() interfaces.DHT { return b.dht }))
	}
	return fx.Options(opts...)
}

// populate 取出运行时组件
func (b *Bootstrap) populate() fx.Option {
	rt := &b.runtime
	opts := []fx.Option{
		fx.Populate(&rt.Table, &rt.Classifier, &rt.Engine, &rt.Preferences, &rt.Sampler, &rt.Reserver, &rt.Metrics),
	}
	if b.MeshEnabled() {
		opts = append(opts, fx.Populate(&rt.Directory))
	}
	if b.config.Diagnostics.EnableIntrospect {
		opts = append(opts, fx.Populate(&rt.Introspect))
	}
	return fx.Options(opts...)
}

// setupLogging 配置日志输出
//
// 如果指定了 LogFile，将所有日志重定向到文件
func (b *Bootstrap) setupLogging() error {
	if b.config.LogFile == "" {
		return nil
	}

	file, err := os.OpenFile(b.config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	// 文件在进程生命周期内保持打开
	logger.SetOutput(file)
	log.Info("日志文件初始化成功", "path", b.config.LogFile)
	return nil
}
