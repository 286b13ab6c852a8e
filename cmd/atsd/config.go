package main

import (
	"fmt"

	flags "github.com/jessevdk/go-flags"

	"github.com/dep2p/go-ats"
	"github.com/dep2p/go-ats/pkg/types"
)

// ============================================================================
//                              命令行参数
// ============================================================================

// options 命令行参数
//
// 优先级：命令行参数 > ATS_ 环境变量 > 配置文件 > 默认值。
type options struct {
	ConfigFile  string `short:"c" long:"config" description:"JSON 配置文件路径"`
	LogFile     string `long:"log" description:"日志文件路径"`
	LogLevel    string `long:"log-level" description:"日志级别，如 info 或 ats/suggest=debug,info（覆盖 ATS_LOG_LEVEL）"`
	Local       string `long:"local" description:"本地节点标识（base58）"`
	MetricsAddr string `long:"metrics-addr" description:"Prometheus 指标监听地址，如 127.0.0.1:9464"`

	IntrospectAddr string `long:"introspect-addr" description:"启用本地自省服务并监听该地址，如 127.0.0.1:6060"`

	MaxPeers     int    `long:"max-peers" description:"节点目录容量"`
	MinBandwidth uint64 `long:"min-bandwidth" description:"每个活跃地址的最低带宽（字节/秒）"`

	PrintConfig bool `long:"print-config" description:"打印生效的配置后退出"`
	ShowVersion bool `short:"V" long:"version" description:"显示版本信息"`
}

// parseOptions 解析命令行参数
//
// 请求帮助时返回 ok=false 且 err=nil。
func parseOptions(args []string) (*options, bool, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS]"
	if _, err := parser.ParseArgs(args); err != nil {
		if flags.WroteHelp(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &opts, true, nil
}

// loadConfig 按优先级合成配置
func loadConfig(opts *options) (*ats.Config, error) {
	cfg := ats.DefaultConfig()
	if opts.ConfigFile != "" {
		loaded, err := ats.LoadConfig(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if opts.MaxPeers > 0 {
		cfg.Mesh.MaxPeers = opts.MaxPeers
	}
	if opts.MinBandwidth > 0 {
		cfg.Solver.MinBandwidth = opts.MinBandwidth
	}
	if opts.LogFile != "" {
		cfg.LogFile = opts.LogFile
	}
	if opts.IntrospectAddr != "" {
		cfg.Diagnostics.EnableIntrospect = true
		cfg.Diagnostics.IntrospectAddr = opts.IntrospectAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serviceOptions 转换为服务选项
func serviceOptions(opts *options, cfg *ats.Config) ([]ats.Option, error) {
	out := []ats.Option{ats.WithConfig(cfg)}
	if opts.Local != "" {
		id, err := types.ParsePeerID(opts.Local)
		if err != nil {
			return nil, fmt.Errorf("parse --local: %w", err)
		}
		out = append(out, ats.WithLocalPeer(id))
	}
	return out, nil
}
