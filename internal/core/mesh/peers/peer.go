package peers

import (
	"fmt"
	"time"

	"github.com/dep2p/go-ats/internal/core/mesh/connection"
	"github.com/dep2p/go-ats/internal/core/mesh/meshpath"
	"github.com/dep2p/go-ats/internal/core/mesh/queue"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

// Peer 节点目录中的一个节点
//
// 所有方法都在所属目录的锁下执行。
type Peer struct {
	dir *Directory

	id          types.PeerID
	lastContact time.Time

	paths *meshpath.Registry

	// 仅直连邻居非 nil
	conns map[connection.ID]*connection.Connection
	queue *queue.Queue

	hello  *types.Hello
	tunnel *Tunnel
	search interfaces.SearchHandle

	bandwidth    uint64
	hasBandwidth bool
}

func newPeer(d *Directory, id types.PeerID, now time.Time) *Peer {
	return &Peer{
		dir:         d,
		id:          id,
		lastContact: now,
		paths:       meshpath.NewRegistry(d.local, id),
	}
}

// ID 返回节点标识
func (p *Peer) ID() types.PeerID {
	return p.id
}

// LastContact 返回最近一次访问时间
func (p *Peer) LastContact() time.Time {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	return p.lastContact
}

// IsNeighbor 是否为直连邻居
func (p *Peer) IsNeighbor() bool {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	return p.isNeighbor()
}

func (p *Peer) isNeighbor() bool {
	return p.conns != nil
}

// isUsed 有隧道或存在短于 3 跳的路径
func (p *Peer) isUsed() bool {
	return p.tunnel != nil || p.paths.HasShortPath()
}

// ============================================================================
//                              路径
// ============================================================================

// AddPath 添加到该节点的路径
func (p *Peer) AddPath(path *meshpath.Path, trusted bool) (*meshpath.Path, error) {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	return p.dir.addPathLocked(p, path, trusted)
}

// AddPathToOrigin 把以该节点为起点的路径反向后登记
//
// 用于收到建链请求时记录回到发起方的路径。
func (p *Peer) AddPathToOrigin(path *meshpath.Path, trusted bool) (*meshpath.Path, error) {
	return p.AddPath(path.Invert(), trusted)
}

// RemovePath 移除跳序列相同的路径
func (p *Peer) RemovePath(path *meshpath.Path) bool {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	return p.paths.Remove(path)
}

// Paths 返回路径快照
func (p *Peer) Paths() []*meshpath.Path {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	return p.paths.Paths()
}

// NotifyBrokenLink 远端报告 a-b 链路断开，相关路径失效
func (p *Peer) NotifyBrokenLink(a, b types.PeerID) int {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	return p.paths.InvalidateLink(a, b)
}

// ============================================================================
//                              连接
// ============================================================================

// Queue 返回邻居发送队列，非邻居返回 nil
func (p *Peer) Queue() *queue.Queue {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	return p.queue
}

// AddConnection 登记经过该邻居的连接
func (p *Peer) AddConnection(c *connection.Connection) error {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	return p.addConnectionLocked(c)
}

func (p *Peer) addConnectionLocked(c *connection.Connection) error {
	if !p.isNeighbor() {
		return types.LogicErrorf("add connection %s: %s is not a neighbor", c.ID(), p.id.ShortString())
	}
	p.conns[c.ID()] = c
	return nil
}

// RemoveConnection 注销连接，未登记的连接无操作
func (p *Peer) RemoveConnection(c *connection.Connection) error {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	if !p.isNeighbor() {
		return types.LogicErrorf("remove connection %s: %s is not a neighbor", c.ID(), p.id.ShortString())
	}
	delete(p.conns, c.ID())
	return nil
}

// Connections 返回经过该邻居的连接
func (p *Peer) Connections() []*connection.Connection {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	out := make([]*connection.Connection, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c)
	}
	return out
}

// TunnelState 返回隧道状态，没有隧道时返回 TunnelNew 和 false
func (p *Peer) TunnelState() (TunnelState, bool) {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	if p.tunnel == nil {
		return TunnelNew, false
	}
	p.tunnel.refreshState()
	return p.tunnel.state, true
}

// TunnelConnections 返回隧道中的连接
func (p *Peer) TunnelConnections() []*connection.Connection {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	if p.tunnel == nil {
		return nil
	}
	out := make([]*connection.Connection, 0, len(p.tunnel.conns))
	for _, c := range p.tunnel.conns {
		out = append(out, c)
	}
	return out
}

// ============================================================================
//                              Hello
// ============================================================================

// SetHello 合并新的 Hello
func (p *Peer) SetHello(h *types.Hello) error {
	if h.Peer != p.id {
		return types.LogicErrorf("hello for %s set on %s", h.Peer.ShortString(), p.id.ShortString())
	}
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()

	if cur := p.helloLocked(); cur != nil {
		p.hello = cur.Merge(h)
		return nil
	}
	p.hello = h.Merge(&types.Hello{})
	return nil
}

// Hello 返回未过期的 Hello
//
// 读取时发现已过期会将其丢弃。
func (p *Peer) Hello() *types.Hello {
	p.dir.mu.Lock()
	defer p.dir.mu.Unlock()
	return p.helloLocked()
}

func (p *Peer) helloLocked() *types.Hello {
	if p.hello == nil {
		return nil
	}
	if p.hello.IsExpired(p.dir.clock.Now()) {
		p.hello = nil
		return nil
	}
	return p.hello
}

// String 返回可读表示
func (p *Peer) String() string {
	return fmt.Sprintf("peer(%s)", p.id.ShortString())
}
