package config

import "time"

// ============================================================================
//                              预设默认值
// ============================================================================

// 配额默认值（字节/秒）
const (
	// DefaultUnspecifiedQuota 未知范围默认配额
	DefaultUnspecifiedQuota = 64 * 1024

	// DefaultLoopbackQuota 回环默认配额
	DefaultLoopbackQuota = 16 * 1024 * 1024

	// DefaultLANQuota 局域网默认配额
	DefaultLANQuota = 16 * 1024 * 1024

	// DefaultWANQuota 广域网默认配额
	DefaultWANQuota = 1024 * 1024

	// DefaultWLANQuota 无线局域网默认配额
	DefaultWLANQuota = 4 * 1024 * 1024
)

// 网状网络默认值
const (
	// DefaultMaxPeers 默认节点目录容量
	DefaultMaxPeers = 1000

	// DefaultMaxQueuedMessages 默认每邻居队列容量
	DefaultMaxQueuedMessages = 1000

	// DefaultMaxTunnelConnections 默认每隧道连接数
	DefaultMaxTunnelConnections = 3

	// DefaultDHTReplication 默认 DHT 复制级别
	DefaultDHTReplication = 3

	// DefaultSearchCacheSize 默认 DHT 结果去重缓存大小
	DefaultSearchCacheSize = 256
)

// 分配默认值
const (
	// DefaultMinBandwidth 默认最低带宽
	DefaultMinBandwidth = 32 * 1024

	// DefaultProportionalityFactor 默认偏好放大系数
	DefaultProportionalityFactor = 2.0

	// DefaultStabilityFactor 默认切换优势倍数
	DefaultStabilityFactor = 1.25

	// DefaultNotifyThreshold 默认通知阈值
	DefaultNotifyThreshold = 1024
)

// 偏好默认值
const (
	// DefaultAgingInterval 默认老化周期
	DefaultAgingInterval = 10 * time.Second

	// DefaultAgingFactor 默认老化系数
	DefaultAgingFactor = 0.95

	// DefaultPreferenceEpsilon 默认回归基线阈值
	DefaultPreferenceEpsilon = 0.01
)

// 采样与预留默认值
const (
	// DefaultSampleInterval 默认采样周期
	DefaultSampleInterval = time.Second

	// DefaultSampleAlpha 默认 EWMA 平滑系数
	DefaultSampleAlpha = 0.25

	// DefaultMaxCarry 默认带宽累积上限
	DefaultMaxCarry = 5 * time.Second
)

// 地址默认值
const (
	// DefaultAveragingWindow 默认属性平均窗口
	DefaultAveragingWindow = 3

	// DefaultInterfaceRefresh 默认网络接口刷新周期
	DefaultInterfaceRefresh = time.Second
)

// DefaultIntrospectAddr 自省服务默认监听地址，只绑定本地回环
const DefaultIntrospectAddr = "127.0.0.1:6060"

// 环境变量
const (
	// EnvPrefix 环境变量前缀
	EnvPrefix = "ATS_"

	// EnvMaxPeers 节点目录容量
	EnvMaxPeers = "MAX_PEERS"

	// EnvMinBandwidth 最低带宽
	EnvMinBandwidth = "MIN_BANDWIDTH"

	// EnvNotifyThreshold 通知阈值
	EnvNotifyThreshold = "NOTIFY_THRESHOLD"

	// EnvAgingInterval 偏好老化周期
	EnvAgingInterval = "PREFERENCE_AGING_INTERVAL"

	// EnvQuotaFormat 配额变量格式：ATS_QUOTA_<SCOPE>_<IN|OUT>
	EnvQuotaFormat = "QUOTA_%s_%s"
)
