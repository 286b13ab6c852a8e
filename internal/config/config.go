// Package config 提供 go-ats 配置管理层
//
// config 包负责：
//   - 定义内部配置结构
//   - 提供默认值
//   - 配置校验
//   - 从 JSON 文件和 ATS_ 环境变量加载
//
// 配置在启动时读取一次，运行期间配额不可变。
package config

import (
	"github.com/dep2p/go-ats/pkg/types"
)

// Config 内部配置结构
type Config struct {
	// Quotas 各网络范围的带宽配额
	Quotas QuotaConfig `json:"quotas"`

	// Address 地址属性平滑与网络范围识别配置
	Address AddressConfig `json:"address"`

	// Mesh 网状网络节点目录与发送队列配置
	Mesh MeshConfig `json:"mesh"`

	// Solver 带宽分配配置
	Solver SolverConfig `json:"solver"`

	// Preference 偏好老化配置
	Preference PreferenceConfig `json:"preference"`

	// Sampler 吞吐量采样配置
	Sampler SamplerConfig `json:"sampler"`

	// Reservation 带宽预留配置
	Reservation ReservationConfig `json:"reservation"`

	// Diagnostics 本地诊断配置
	Diagnostics DiagnosticsConfig `json:"diagnostics"`

	// LogFile 日志文件路径，为空时输出到 stderr
	LogFile string `json:"log_file,omitempty"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Quotas:      DefaultQuotaConfig(),
		Address:     DefaultAddressConfig(),
		Mesh:        DefaultMeshConfig(),
		Solver:      DefaultSolverConfig(),
		Preference:  DefaultPreferenceConfig(),
		Sampler:     DefaultSamplerConfig(),
		Reservation: DefaultReservationConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
	}
}

// ============================================================================
//                              配额配置
// ============================================================================

// Quota 单个网络范围的入站/出站配额（字节/秒）
type Quota struct {
	In  uint64 `json:"in"`
	Out uint64 `json:"out"`
}

// QuotaConfig 各网络范围的配额
type QuotaConfig struct {
	Unspecified Quota `json:"unspecified"`
	Loopback    Quota `json:"loopback"`
	LAN         Quota `json:"lan"`
	WAN         Quota `json:"wan"`
	WLAN        Quota `json:"wlan"`
}

// For 返回指定网络范围的配额
func (q *QuotaConfig) For(scope types.NetworkType) Quota {
	if p := q.slot(scope); p != nil {
		return *p
	}
	return Quota{}
}

// Set 设置指定网络范围的配额
func (q *QuotaConfig) Set(scope types.NetworkType, quota Quota) {
	if p := q.slot(scope); p != nil {
		*p = quota
	}
}

func (q *QuotaConfig) slot(scope types.NetworkType) *Quota {
	switch scope {
	case types.NetworkUnspecified:
		return &q.Unspecified
	case types.NetworkLoopback:
		return &q.Loopback
	case types.NetworkLAN:
		return &q.LAN
	case types.NetworkWAN:
		return &q.WAN
	case types.NetworkWLAN:
		return &q.WLAN
	default:
		return nil
	}
}

// DefaultQuotaConfig 默认配额
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		Unspecified: Quota{In: DefaultUnspecifiedQuota, Out: DefaultUnspecifiedQuota},
		Loopback:    Quota{In: DefaultLoopbackQuota, Out: DefaultLoopbackQuota},
		LAN:         Quota{In: DefaultLANQuota, Out: DefaultLANQuota},
		WAN:         Quota{In: DefaultWANQuota, Out: DefaultWANQuota},
		WLAN:        Quota{In: DefaultWLANQuota, Out: DefaultWLANQuota},
	}
}

// ============================================================================
//                              网状网络配置
// ============================================================================

// MeshConfig 节点目录与发送队列配置
type MeshConfig struct {
	// MaxPeers 节点目录容量，超出时淘汰最久未联系的空闲节点
	MaxPeers int `json:"max_peers"`

	// MaxQueuedMessages 每个邻居队列允许的普通消息数
	MaxQueuedMessages int `json:"max_queued_messages"`

	// MaxTunnelConnections 每条隧道希望维持的连接数
	MaxTunnelConnections int `json:"max_tunnel_connections"`

	// DHTReplication DHT 查询的复制级别
	DHTReplication int `json:"dht_replication"`

	// SearchCacheSize DHT 结果去重缓存大小
	SearchCacheSize int `json:"search_cache_size"`
}

// DefaultMeshConfig 默认网状网络配置
func DefaultMeshConfig() MeshConfig {
	return MeshConfig{
		MaxPeers:             DefaultMaxPeers,
		MaxQueuedMessages:    DefaultMaxQueuedMessages,
		MaxTunnelConnections: DefaultMaxTunnelConnections,
		DHTReplication:       DefaultDHTReplication,
		SearchCacheSize:      DefaultSearchCacheSize,
	}
}

// ============================================================================
//                              分配配置
// ============================================================================

// SolverConfig 带宽分配配置
type SolverConfig struct {
	// MinBandwidth 每个活跃地址的最低带宽（字节/秒）
	MinBandwidth uint64 `json:"min_bandwidth"`

	// ProportionalityFactor 偏好对分配份额的放大系数
	ProportionalityFactor float64 `json:"proportionality_factor"`

	// StabilityFactor 切换活跃地址所需的优势倍数
	StabilityFactor float64 `json:"stability_factor"`

	// NotifyThreshold 低于该变化量（字节/秒）的分配变化不通知订阅者
	NotifyThreshold uint64 `json:"notify_threshold"`
}

// DefaultSolverConfig 默认分配配置
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		MinBandwidth:          DefaultMinBandwidth,
		ProportionalityFactor: DefaultProportionalityFactor,
		StabilityFactor:       DefaultStabilityFactor,
		NotifyThreshold:       DefaultNotifyThreshold,
	}
}

// ============================================================================
//                              偏好配置
// ============================================================================

// PreferenceConfig 偏好老化配置
type PreferenceConfig struct {
	// AgingInterval 老化周期
	AgingInterval Duration `json:"aging_interval"`

	// AgingFactor 每个周期保留的偏差比例 (0,1)
	AgingFactor float64 `json:"aging_factor"`

	// Epsilon 与基线差值小于该值时视为回到基线
	Epsilon float64 `json:"epsilon"`

	// Baseline 偏好基线
	Baseline float64 `json:"baseline"`
}

// DefaultPreferenceConfig 默认偏好配置
func DefaultPreferenceConfig() PreferenceConfig {
	return PreferenceConfig{
		AgingInterval: Duration(DefaultAgingInterval),
		AgingFactor:   DefaultAgingFactor,
		Epsilon:       DefaultPreferenceEpsilon,
		Baseline:      0,
	}
}

// ============================================================================
//                              采样配置
// ============================================================================

// SamplerConfig 吞吐量采样配置
type SamplerConfig struct {
	// Interval 采样周期
	Interval Duration `json:"interval"`

	// Alpha EWMA 平滑系数 (0,1]
	Alpha float64 `json:"alpha"`
}

// DefaultSamplerConfig 默认采样配置
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Interval: Duration(DefaultSampleInterval),
		Alpha:    DefaultSampleAlpha,
	}
}

// ============================================================================
//                              预留配置
// ============================================================================

// ReservationConfig 带宽预留配置
type ReservationConfig struct {
	// MaxCarry 未使用带宽最多累积的时长
	MaxCarry Duration `json:"max_carry"`
}

// DefaultReservationConfig 默认预留配置
func DefaultReservationConfig() ReservationConfig {
	return ReservationConfig{
		MaxCarry: Duration(DefaultMaxCarry),
	}
}

// ============================================================================
//                              诊断配置
// ============================================================================

// ============================================================================
//                              地址配置
// ============================================================================

// AddressConfig 地址属性配置
type AddressConfig struct {
	// AveragingWindow 时延与跳数取最近多少次上报的平均值
	AveragingWindow int `json:"averaging_window"`

	// InterfaceRefresh 重新读取本机网络接口的周期
	InterfaceRefresh Duration `json:"interface_refresh"`
}

// DefaultAddressConfig 默认地址配置
func DefaultAddressConfig() AddressConfig {
	return AddressConfig{
		AveragingWindow:  DefaultAveragingWindow,
		InterfaceRefresh: Duration(DefaultInterfaceRefresh),
	}
}

// DiagnosticsConfig 本地诊断配置
type DiagnosticsConfig struct {
	// EnableIntrospect 启用本地自省 HTTP 服务
	EnableIntrospect bool `json:"enable_introspect"`

	// IntrospectAddr 自省服务监听地址
	IntrospectAddr string `json:"introspect_addr,omitempty"`
}

// DefaultDiagnosticsConfig 默认诊断配置（自省服务关闭）
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		IntrospectAddr: DefaultIntrospectAddr,
	}
}
