package ats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-ats/internal/app"
	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/mesh/peers"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/internal/util/logger"
)

var log = logger.Logger("ats")

// Service 自动传输选择服务
//
// Service 是门面，聚合地址表、推荐引擎、偏好聚合器、吞吐量采样、
// 带宽预留以及可选的网状网络目录。
//
// 组件在 New 返回时即可使用；Start 启动偏好老化和吞吐量采样等后台任务。
type Service struct {
	bootstrap *app.Bootstrap
	rt        *app.Runtime

	mu      sync.RWMutex
	started bool
	closed  bool
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建服务但不启动后台任务
func New(_ context.Context, opts ...Option) (*Service, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	bopts, err := o.toBootstrap()
	if err != nil {
		return nil, err
	}

	b := app.NewBootstrap(bopts...)
	rt, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build service: %w", err)
	}

	return &Service{bootstrap: b, rt: rt}, nil
}

// Start 快捷启动函数，等价于 New() + Start()
func Start(ctx context.Context, opts ...Option) (*Service, error) {
	svc, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("start service: %w", err)
	}
	return svc, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动后台任务
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	if err := s.bootstrap.StartBuilt(ctx); err != nil {
		return err
	}
	s.started = true
	log.Info("服务已启动", "mesh", s.rt.Directory != nil)
	return nil
}

// Close 关闭服务
//
// 取消全部订阅、停止后台任务并关闭网状网络目录。重复调用无副作用。
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs error
	if s.started {
		// OnStop 钩子负责关闭引擎和目录
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		errs = multierr.Append(errs, s.rt.Stop(ctx))
	} else {
		errs = multierr.Append(errs, s.rt.Engine.Close())
		if s.rt.Directory != nil {
			errs = multierr.Append(errs, s.rt.Directory.Close())
		}
	}
	s.started = false

	if errs != nil {
		log.Warn("关闭服务时出错", "error", errs)
	} else {
		log.Info("服务已关闭")
	}
	return errs
}

// IsRunning 检查后台任务是否在运行
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.closed
}

func (s *Service) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              组件访问
// ════════════════════════════════════════════════════════════════════════════

// Config 返回生效的配置
func (s *Service) Config() *Config {
	return s.rt.Config
}

// Mesh 返回网状网络节点目录，未启用时为 nil
func (s *Service) Mesh() *peers.Directory {
	return s.rt.Directory
}

// Metrics 返回指标集合
func (s *Service) Metrics() *metrics.Metrics {
	return s.rt.Metrics
}

// Addresses 返回地址表
func (s *Service) Addresses() *address.Table {
	return s.rt.Table
}
