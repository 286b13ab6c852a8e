package ats

import (
	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/bandwidth"
	"github.com/dep2p/go-ats/internal/core/ats/preference"
	"github.com/dep2p/go-ats/internal/core/ats/suggest"
	"github.com/dep2p/go-ats/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

type (
	// Config 服务配置
	Config = config.Config

	// PeerID 节点标识
	PeerID = types.PeerID

	// NetworkType 网络范围
	NetworkType = types.NetworkType

	// Bandwidth 入站/出站带宽（字节/秒）
	Bandwidth = types.Bandwidth

	// Preference 节点偏好
	Preference = types.Preference

	// BandwidthPreference 带宽偏好
	BandwidthPreference = types.BandwidthPreference

	// LatencyPreference 延迟偏好
	LatencyPreference = types.LatencyPreference

	// Address 传输地址
	Address = address.Address

	// SessionID 会话标识
	SessionID = address.SessionID

	// Properties 地址性能属性
	Properties = address.Properties

	// AddressRecord 地址表中的记录
	AddressRecord = address.Record

	// AddressInfo 地址记录快照
	AddressInfo = address.Info

	// ListFilter 地址列表过滤条件
	ListFilter = address.Filter

	// Suggestion 推荐结果
	Suggestion = suggest.Suggestion

	// Subscription 推荐订阅
	Subscription = suggest.Subscription

	// PreferenceRecord 偏好记录快照
	PreferenceRecord = preference.Record

	// TrafficStats 节点吞吐量统计
	TrafficStats = bandwidth.Stats

	// ReservationFunc 异步预留结果回调
	ReservationFunc = bandwidth.ResultFunc

	// ReservationRequest 可取消的异步预留
	ReservationRequest = bandwidth.Request
)

// 网络范围
const (
	NetworkUnspecified = types.NetworkUnspecified
	NetworkLoopback    = types.NetworkLoopback
	NetworkLAN         = types.NetworkLAN
	NetworkWAN         = types.NetworkWAN
	NetworkWLAN        = types.NetworkWLAN
)

// NoSession 未关联会话
const NoSession = address.NoSession

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return config.NewConfig()
}

// LoadConfig 从 JSON 文件加载配置并应用 ATS_ 环境变量
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
