package types

// Priority 核心传输层的发送优先级
type Priority int

const (
	// PriorityBackground 后台流量
	PriorityBackground Priority = iota
	// PriorityBestEffort 尽力而为
	PriorityBestEffort
	// PriorityUrgent 紧急
	PriorityUrgent
	// PriorityCriticalControl 关键控制消息
	PriorityCriticalControl
)

// String 返回优先级名称
func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "background"
	case PriorityBestEffort:
		return "best-effort"
	case PriorityUrgent:
		return "urgent"
	case PriorityCriticalControl:
		return "critical-control"
	default:
		return "unknown"
	}
}
