package types

// ============================================================================
//                              Preference - 偏好
// ============================================================================

// PreferenceKind 偏好种类
type PreferenceKind int

const (
	// PreferenceBandwidth 偏好更高带宽
	PreferenceBandwidth PreferenceKind = iota
	// PreferenceLatency 偏好更低延迟
	PreferenceLatency
)

// String 返回偏好种类的字符串表示
func (k PreferenceKind) String() string {
	switch k {
	case PreferenceBandwidth:
		return "bandwidth"
	case PreferenceLatency:
		return "latency"
	default:
		return "unknown"
	}
}

// Preference 客户端为某个节点表达的偏好
//
// 这是一个封闭的和类型：只有本包定义的实现，
// 无效的偏好种类无法被构造。
type Preference interface {
	Kind() PreferenceKind
	Value() float64

	isPreference()
}

// BandwidthPreference 带宽偏好权重
type BandwidthPreference float64

// Kind 实现 Preference
func (BandwidthPreference) Kind() PreferenceKind { return PreferenceBandwidth }

// Value 实现 Preference
func (p BandwidthPreference) Value() float64 { return float64(p) }

func (BandwidthPreference) isPreference() {}

// LatencyPreference 延迟偏好权重
type LatencyPreference float64

// Kind 实现 Preference
func (LatencyPreference) Kind() PreferenceKind { return PreferenceLatency }

// Value 实现 Preference
func (p LatencyPreference) Value() float64 { return float64(p) }

func (LatencyPreference) isPreference() {}
