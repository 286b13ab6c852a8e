package peers

import (
	"github.com/dep2p/go-ats/internal/core/mesh/connection"
	"github.com/dep2p/go-ats/internal/core/mesh/meshpath"
)

// TunnelState 隧道状态
type TunnelState int

const (
	// TunnelNew 刚创建
	TunnelNew TunnelState = iota
	// TunnelSearching 没有可用路径，正在 DHT 中查找
	TunnelSearching
	// TunnelWaiting 已发出建链请求，等待确认
	TunnelWaiting
	// TunnelReady 至少一条连接就绪
	TunnelReady
)

// String 返回状态名称
func (s TunnelState) String() string {
	switch s {
	case TunnelNew:
		return "new"
	case TunnelSearching:
		return "searching"
	case TunnelWaiting:
		return "waiting"
	case TunnelReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Tunnel 到某个目标节点的端到端隧道
//
// 隧道持有本地发起的、以该节点为终点的连接。
type Tunnel struct {
	state TunnelState
	conns map[connection.ID]*connection.Connection
}

func newTunnel() *Tunnel {
	return &Tunnel{conns: make(map[connection.ID]*connection.Connection)}
}

// usesPath 隧道是否已有连接使用该路径
func (t *Tunnel) usesPath(p *meshpath.Path) bool {
	for _, c := range t.conns {
		if c.Path() == p {
			return true
		}
	}
	return false
}

// overlap 路径与隧道已用路径共享的中间节点数
func (t *Tunnel) overlap(p *meshpath.Path) uint {
	var n uint
	for i := 1; i < p.Len()-1; i++ {
		hop := p.At(i)
		for _, c := range t.conns {
			if c.Path().Index(hop) > 0 {
				n++
				break
			}
		}
	}
	return n
}

// refreshState 根据连接状态更新隧道状态
func (t *Tunnel) refreshState() {
	if len(t.conns) == 0 {
		if t.state != TunnelSearching {
			t.state = TunnelNew
		}
		return
	}
	for _, c := range t.conns {
		if c.State() == connection.StateReady {
			t.state = TunnelReady
			return
		}
	}
	t.state = TunnelWaiting
}
