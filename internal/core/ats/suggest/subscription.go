package suggest

import (
	"github.com/google/uuid"

	"github.com/dep2p/go-ats/pkg/types"
)

// Subscription 推荐订阅
type Subscription struct {
	id     uuid.UUID
	peer   types.PeerID
	fn     Callback
	engine *Engine

	// 以下字段由 engine.mu 保护
	cancelled bool
	last      state
}

// ID 返回订阅标识
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Peer 返回订阅的节点
func (s *Subscription) Peer() types.PeerID {
	return s.peer
}

// Cancel 取消订阅，重复调用无副作用
//
// 取消后不会再有新的回调；已排队但尚未执行的回调被丢弃。
func (s *Subscription) Cancel() {
	s.engine.cancel(s)
}
