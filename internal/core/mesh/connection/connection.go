// Package connection 实现沿一条路径建立的逐跳连接
//
// 连接由路径播种，从 New 经 Sent/Ack 到 Ready；任何链路断开都会
// 使连接进入 Broken，Broken 连接只保留到其队列条目被取消为止，随后销毁。
package connection

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/dep2p/go-ats/internal/core/mesh/meshpath"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("mesh/connection")

// ============================================================================
//                              ID - 连接标识
// ============================================================================

// ID 连接标识：blake3(路径 ‖ 随机数)
type ID [32]byte

// String 返回十六进制前缀
func (id ID) String() string {
	return hex.EncodeToString(id[:6])
}

// NewID 为路径生成新的连接标识
func NewID(p *meshpath.Path) ID {
	nonce := uuid.New()
	h := blake3.New(32, nil)
	_, _ = h.Write(p.Bytes())
	_, _ = h.Write(nonce[:])

	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// ============================================================================
//                              State - 连接状态
// ============================================================================

// State 连接状态
type State int

const (
	// StateNew 已创建，尚未发送建链请求
	StateNew State = iota
	// StateSent 建链请求已发出
	StateSent
	// StateAck 已收到建链确认
	StateAck
	// StateReady 可以承载加密数据
	StateReady
	// StateBroken 路径上某条链路断开
	StateBroken
	// StateDestroyed 已销毁
	StateDestroyed
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateSent:
		return "sent"
	case StateAck:
		return "ack"
	case StateReady:
		return "ready"
	case StateBroken:
		return "broken"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition 非法状态迁移
var ErrInvalidTransition = fmt.Errorf("connection: invalid state transition: %w", types.ErrLogic)

// ErrNotOnPath 本地节点不在路径上
var ErrNotOnPath = fmt.Errorf("connection: local peer not on path: %w", types.ErrLogic)

// ============================================================================
//                              Connection
// ============================================================================

// BrokenFunc 连接断开回调
type BrokenFunc func(c *Connection, peer types.PeerID)

// Connection 沿路径建立的连接
type Connection struct {
	mu sync.Mutex

	id     ID
	path   *meshpath.Path
	ownPos int

	state          State
	destroyPending bool

	fwd flowControl
	bwd flowControl

	onBroken BrokenFunc
}

// New 沿路径创建连接
//
// 本地节点必须出现在路径上，其位置决定前后跳。
func New(local types.PeerID, p *meshpath.Path, onBroken BrokenFunc) (*Connection, error) {
	pos := p.Index(local)
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotOnPath, p)
	}
	return &Connection{
		id:       NewID(p),
		path:     p,
		ownPos:   pos,
		state:    StateNew,
		fwd:      newFlowControl(),
		bwd:      newFlowControl(),
		onBroken: onBroken,
	}, nil
}

// ID 返回连接标识
func (c *Connection) ID() ID {
	return c.id
}

// Path 返回播种路径
func (c *Connection) Path() *meshpath.Path {
	return c.path
}

// State 返回当前状态
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState 迁移状态
//
// 握手状态只能前进；任何状态都可以进入 Broken 或 Destroyed；
// Destroyed 是终态。
func (c *Connection) SetState(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !validTransition(c.state, s) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, s)
	}
	c.state = s
	return nil
}

func validTransition(from, to State) bool {
	switch {
	case from == StateDestroyed:
		return false
	case to == StateBroken || to == StateDestroyed:
		return true
	case from == StateBroken:
		return false
	default:
		return to >= from
	}
}

// IsOrigin 本地节点是否为该方向的起点
func (c *Connection) IsOrigin(fwd bool) bool {
	if fwd {
		return c.ownPos == 0
	}
	return c.ownPos == c.path.Len()-1
}

// IsTerminal 本地节点是否为该方向的终点
func (c *Connection) IsTerminal(fwd bool) bool {
	return c.IsOrigin(!fwd)
}

// NextHop 返回该方向的下一跳，本地为终点时返回空 ID
func (c *Connection) NextHop(fwd bool) types.PeerID {
	i := c.ownPos - 1
	if fwd {
		i = c.ownPos + 1
	}
	if i < 0 || i >= c.path.Len() {
		return types.EmptyPeerID
	}
	return c.path.At(i)
}

// PrevHop 返回该方向的上一跳
func (c *Connection) PrevHop(fwd bool) types.PeerID {
	return c.NextHop(!fwd)
}

// Hops 返回与本地节点相邻的跳
func (c *Connection) Hops() []types.PeerID {
	var hops []types.PeerID
	for _, fwd := range []bool{true, false} {
		if h := c.NextHop(fwd); !h.IsEmpty() {
			hops = append(hops, h)
		}
	}
	return hops
}

// IsSendable 加密数据在该方向上是否可以发送
//
// 需要连接就绪且流控窗口未耗尽。
func (c *Connection) IsSendable(fwd bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady || c.destroyPending {
		return false
	}
	return c.fc(fwd).canSend()
}

// RecordSent 记录一个加密数据已发送，返回其包号
func (c *Connection) RecordSent(fwd bool) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fc(fwd).next()
}

// ReceiveAck 处理对端确认，返回窗口是否前移
func (c *Connection) ReceiveAck(fwd bool, ack uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fc(fwd).ack(ack)
}

func (c *Connection) fc(fwd bool) *flowControl {
	if fwd {
		return &c.fwd
	}
	return &c.bwd
}

// MarkDestroy 标记连接待销毁
//
// 标记后不再发送新数据，已排队的销毁消息仍会发出。
func (c *Connection) MarkDestroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyPending = true
}

// DestroyPending 是否已标记待销毁
func (c *Connection) DestroyPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyPending
}

// NotifyBroken 通知连接某一跳不可达
//
// 连接进入 Broken 并触发回调；已断开或已销毁的连接不重复触发。
func (c *Connection) NotifyBroken(peer types.PeerID) {
	c.mu.Lock()
	if c.state == StateBroken || c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	c.state = StateBroken
	cb := c.onBroken
	c.mu.Unlock()

	log.Debug("connection broken", "conn", c.id.String(), "peer", peer.ShortString())
	if cb != nil {
		cb(c, peer)
	}
}

// Destroy 销毁连接
func (c *Connection) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDestroyed
	c.onBroken = nil
}

// String 返回可读表示
func (c *Connection) String() string {
	return fmt.Sprintf("conn(%s %s)", c.id, c.State())
}
