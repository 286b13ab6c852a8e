package queue

import (
	"time"

	"github.com/dep2p/go-ats/pkg/types"
)

// MessageType 排队消息种类
type MessageType int

const (
	// TypeConnectionCreate 建链请求
	TypeConnectionCreate MessageType = iota
	// TypeConnectionAck 建链确认
	TypeConnectionAck
	// TypeConnectionBroken 链路断开通知
	TypeConnectionBroken
	// TypeConnectionDestroy 连接销毁
	TypeConnectionDestroy
	// TypeKX 密钥交换
	TypeKX
	// TypeEncrypted 加密数据
	TypeEncrypted
	// TypeAck 流控确认
	TypeAck
	// TypePoll 流控轮询
	TypePoll
)

// String 返回种类名称
func (t MessageType) String() string {
	switch t {
	case TypeConnectionCreate:
		return "connection-create"
	case TypeConnectionAck:
		return "connection-ack"
	case TypeConnectionBroken:
		return "connection-broken"
	case TypeConnectionDestroy:
		return "connection-destroy"
	case TypeKX:
		return "kx"
	case TypeEncrypted:
		return "encrypted"
	case TypeAck:
		return "ack"
	case TypePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// IsPriority ACK/POLL 插队并可使用第二个发送时机
func (t MessageType) IsPriority() bool {
	return t == TypeAck || t == TypePoll
}

// IsPayload KX 与加密数据属于连接负载
func (t MessageType) IsPayload() bool {
	return t == TypeKX || t == TypeEncrypted
}

// Conn 队列所需的连接视图
type Conn interface {
	// IsSendable 加密数据在该方向上是否可以发送
	IsSendable(fwd bool) bool

	// IsOrigin 本地节点是否为该方向的起点
	IsOrigin(fwd bool) bool

	// RecordSent 登记一个已发送的加密数据
	RecordSent(fwd bool) uint32
}

// SentFunc 条目完成回调，sent 为 0 表示未发送（取消或丢弃）
type SentFunc func(e *Entry, sent int)

// Entry 一个待发送的消息
type Entry struct {
	typ      MessageType
	conn     Conn
	fwd      bool
	payload  []byte
	prio     types.Priority
	enqueued time.Time
	cont     SentFunc
	done     bool
}

// Type 返回消息种类
func (e *Entry) Type() MessageType { return e.typ }

// Conn 返回所属连接，已分离的条目返回 nil
func (e *Entry) Conn() Conn { return e.conn }

// Fwd 返回发送方向
func (e *Entry) Fwd() bool { return e.fwd }

// Payload 返回消息内容
func (e *Entry) Payload() []byte { return e.payload }

// Size 返回消息大小
func (e *Entry) Size() int { return len(e.payload) }

// Priority 返回传输优先级
func (e *Entry) Priority() types.Priority { return e.prio }

// Enqueued 返回入队时间
func (e *Entry) Enqueued() time.Time { return e.enqueued }

// complete 执行一次完成回调
func (e *Entry) complete(sent int) {
	if e.done {
		return
	}
	e.done = true
	if e.cont != nil {
		e.cont(e, sent)
	}
}

// PriorityFor 计算消息的传输优先级
//
// 本地发起的流量取 Urgent/CriticalControl，转发的流量取 BestEffort/Urgent；
// 加密数据取两者中较低者，其余消息取较高者。
func PriorityFor(typ MessageType, c Conn, fwd bool) types.Priority {
	low, high := types.PriorityBestEffort, types.PriorityUrgent
	if c != nil && c.IsOrigin(fwd) {
		low, high = types.PriorityUrgent, types.PriorityCriticalControl
	}
	if typ == TypeEncrypted {
		return low
	}
	return high
}
