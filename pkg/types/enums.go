package types

// ============================================================================
//                              NetworkType - 网络范围
// ============================================================================

// NetworkType 地址所属的网络范围
//
// 每个范围拥有独立的入站/出站带宽配额。
type NetworkType int

const (
	// NetworkUnspecified 未知范围
	NetworkUnspecified NetworkType = iota
	// NetworkLoopback 本机回环
	NetworkLoopback
	// NetworkLAN 局域网
	NetworkLAN
	// NetworkWAN 广域网
	NetworkWAN
	// NetworkWLAN 无线局域网
	NetworkWLAN
)

// AllNetworkTypes 返回全部网络范围（按枚举顺序）
func AllNetworkTypes() []NetworkType {
	return []NetworkType{
		NetworkUnspecified,
		NetworkLoopback,
		NetworkLAN,
		NetworkWAN,
		NetworkWLAN,
	}
}

// String 返回网络范围的字符串表示
func (n NetworkType) String() string {
	switch n {
	case NetworkUnspecified:
		return "unspecified"
	case NetworkLoopback:
		return "loopback"
	case NetworkLAN:
		return "lan"
	case NetworkWAN:
		return "wan"
	case NetworkWLAN:
		return "wlan"
	default:
		return "unknown"
	}
}

// IsValid 检查是否为已知网络范围
func (n NetworkType) IsValid() bool {
	return n >= NetworkUnspecified && n <= NetworkWLAN
}

// ParseNetworkType 从字符串解析网络范围
func ParseNetworkType(s string) (NetworkType, bool) {
	for _, n := range AllNetworkTypes() {
		if n.String() == s {
			return n, true
		}
	}
	return NetworkUnspecified, false
}

// ============================================================================
//                              Bandwidth - 带宽
// ============================================================================

// Bandwidth 一对入站/出站带宽（字节/秒）
type Bandwidth struct {
	In  uint64
	Out uint64
}

// IsZero 检查是否为 0/0（断开信号）
func (b Bandwidth) IsZero() bool {
	return b.In == 0 && b.Out == 0
}
