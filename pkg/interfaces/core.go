package interfaces

import (
	"github.com/dep2p/go-ats/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// Transmitter 接口
// ════════════════════════════════════════════════════════════════════════════

// TransmitFunc 在传输层可以发送时被调用
//
// buf 是可写入的缓冲区；返回写入的字节数。
// len(buf) == 0 表示传输层放弃本次发送（例如对端断开），返回值被忽略。
type TransmitFunc func(buf []byte) int

// TransmitHandle 一次发送时机请求
type TransmitHandle interface {
	// Cancel 取消尚未触发的请求，重复调用无副作用
	Cancel()
}

// Transmitter 核心传输层的发送时机通知
type Transmitter interface {
	// NotifyTransmitReady 请求在可以向 peer 发送 size 字节时回调 fn
	NotifyTransmitReady(peer types.PeerID, size int, prio types.Priority, fn TransmitFunc) TransmitHandle
}

// ════════════════════════════════════════════════════════════════════════════
// HelloOfferer 接口
// ════════════════════════════════════════════════════════════════════════════

// HelloOfferer 把节点的 Hello 交给传输层尝试建链
type HelloOfferer interface {
	OfferHello(hello *types.Hello) error
}
