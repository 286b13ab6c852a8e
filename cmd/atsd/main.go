// Package main 提供 atsd 命令行入口
//
// atsd 加载配置、启动自动传输选择服务，并可选地暴露 Prometheus 指标。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-ats"
	"github.com/dep2p/go-ats/internal/app"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("atsd")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, ok, err := parseOptions(args)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if opts.LogLevel != "" {
		logger.Apply(logger.ParseLevels(opts.LogLevel))
	}

	if opts.ShowVersion {
		fmt.Println(ats.VersionInfo())
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	if opts.PrintConfig {
		return printConfig(cfg)
	}

	svcOpts, err := serviceOptions(opts, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	svcOpts = append(svcOpts, ats.WithRegisterer(reg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := ats.Start(ctx, svcOpts...)
	if err != nil {
		return fmt.Errorf("启动服务失败: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn("关闭服务失败", "error", err)
		}
	}()

	printQuotas(cfg)
	log.Info("atsd 已启动", "version", ats.Version)

	g, gctx := errgroup.WithContext(ctx)
	if opts.MetricsAddr != "" {
		srv := newMetricsServer(opts.MetricsAddr, reg)
		g.Go(func() error {
			log.Info("指标服务已启动", "addr", opts.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("指标服务异常退出: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		// 指标服务失败时 gctx 结束，同样进入退出流程
		if sig := app.WaitSignal(gctx); sig != nil {
			log.Info("收到信号，正在退出", "signal", sig.String())
		}
		cancel()
		return nil
	})
	return g.Wait()
}

// newMetricsServer 创建 Prometheus 指标 HTTP 服务
func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func printConfig(cfg *ats.Config) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func printQuotas(cfg *ats.Config) {
	fmt.Println("网络范围配额（入站/出站，字节/秒）：")
	for _, scope := range types.AllNetworkTypes() {
		q := cfg.Quotas.For(scope)
		fmt.Printf("  %-12s %12d / %-12d\n", scope.String(), q.In, q.Out)
	}
}
