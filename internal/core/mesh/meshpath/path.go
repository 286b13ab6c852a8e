package meshpath

import (
	"strings"

	"github.com/dep2p/go-ats/pkg/types"
)

// Path 从本地节点到目标节点的逐跳序列
//
// Peers[0] 是起点，最后一跳是路径所属的节点。
// 路径失效后仍可能被连接引用，但不会再被选作新连接的种子。
type Path struct {
	peers   []types.PeerID
	invalid bool
}

// New 创建路径（复制传入的跳序列）
func New(peers ...types.PeerID) *Path {
	p := &Path{peers: make([]types.PeerID, len(peers))}
	copy(p.peers, peers)
	return p
}

// Len 返回跳数
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.peers)
}

// At 返回第 i 跳
func (p *Path) At(i int) types.PeerID {
	return p.peers[i]
}

// First 返回起点
func (p *Path) First() types.PeerID {
	return p.peers[0]
}

// Last 返回终点
func (p *Path) Last() types.PeerID {
	return p.peers[len(p.peers)-1]
}

// Peers 返回跳序列副本
func (p *Path) Peers() []types.PeerID {
	out := make([]types.PeerID, len(p.peers))
	copy(out, p.peers)
	return out
}

// Index 返回 id 在路径中的位置，不存在时返回 -1
func (p *Path) Index(id types.PeerID) int {
	for i, hop := range p.peers {
		if hop == id {
			return i
		}
	}
	return -1
}

// Clone 复制路径（新副本总是有效的）
func (p *Path) Clone() *Path {
	return New(p.peers...)
}

// Prefix 返回前 n 跳组成的新路径
func (p *Path) Prefix(n int) *Path {
	if n > len(p.peers) {
		n = len(p.peers)
	}
	return New(p.peers[:n]...)
}

// Invert 返回反向路径
func (p *Path) Invert() *Path {
	n := len(p.peers)
	inv := &Path{peers: make([]types.PeerID, n)}
	for i, hop := range p.peers {
		inv.peers[n-1-i] = hop
	}
	return inv
}

// Equal 比较跳序列是否相同
func (p *Path) Equal(other *Path) bool {
	if p == nil || other == nil {
		return p == other
	}
	if len(p.peers) != len(other.peers) {
		return false
	}
	for i := range p.peers {
		if p.peers[i] != other.peers[i] {
			return false
		}
	}
	return true
}

// HasLink 检查路径是否经过 a-b 链路（任一方向）
func (p *Path) HasLink(a, b types.PeerID) bool {
	for i := 0; i+1 < len(p.peers); i++ {
		x, y := p.peers[i], p.peers[i+1]
		if (x == a && y == b) || (x == b && y == a) {
			return true
		}
	}
	return false
}

// Invalidate 标记路径失效
func (p *Path) Invalidate() {
	p.invalid = true
}

// IsValid 路径是否仍可用于建立新连接
func (p *Path) IsValid() bool {
	return !p.invalid
}

// Bytes 返回跳序列的字节拼接
func (p *Path) Bytes() []byte {
	out := make([]byte, 0, len(p.peers)*len(types.EmptyPeerID))
	for _, hop := range p.peers {
		out = append(out, hop[:]...)
	}
	return out
}

// String 返回简短的可读表示
func (p *Path) String() string {
	if p == nil {
		return "<nil>"
	}
	parts := make([]string, len(p.peers))
	for i, hop := range p.peers {
		parts[i] = hop.ShortString()
	}
	s := strings.Join(parts, "->")
	if p.invalid {
		s += " (invalid)"
	}
	return s
}
