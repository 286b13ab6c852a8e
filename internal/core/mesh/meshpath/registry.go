package meshpath

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-ats/pkg/types"
)

var (
	// ErrEmptyPath 空路径
	ErrEmptyPath = errors.New("meshpath: empty path")

	// ErrUntrustedPath 不可信来源的过短路径被拒绝
	ErrUntrustedPath = errors.New("meshpath: untrusted path too short")

	// ErrMalformedPath 路径终点不是所属节点
	ErrMalformedPath = fmt.Errorf("meshpath: malformed path: %w", types.ErrLogic)
)

// minTrustedLen 不可信路径必须超过的跳数
const minTrustedLen = 2

// ShortPathLen 短于该跳数的路径视为该节点仍在使用中
const ShortPathLen = 3

// Registry 到单个节点的已知路径集合
//
// 路径按跳数升序保存，同一跳序列只保存一份。
// Registry 本身不加锁，由所属的节点目录串行访问。
type Registry struct {
	local types.PeerID
	owner types.PeerID
	paths []*Path
}

// NewRegistry 创建路径集合
func NewRegistry(local, owner types.PeerID) *Registry {
	return &Registry{local: local, owner: owner}
}

// Owner 返回所属节点
func (r *Registry) Owner() types.PeerID {
	return r.owner
}

// Add 添加路径
//
// 检查顺序：
//  1. 空路径被丢弃
//  2. 终点不是所属节点返回 ErrMalformedPath
//  3. 经过本地节点的环路被截断，从本地节点重新开始
//  4. 不可信且截断后跳数不超过 2 返回 ErrUntrustedPath
//  5. 已存在相同跳序列时丢弃 p，返回已存在的路径（失效标记保持不变）
//
// 成功时 Registry 持有返回的路径。
func (r *Registry) Add(p *Path, trusted bool) (*Path, error) {
	if p.Len() == 0 {
		return nil, ErrEmptyPath
	}
	if p.Last() != r.owner {
		return nil, fmt.Errorf("%w: ends at %s, want %s", ErrMalformedPath, p.Last().ShortString(), r.owner.ShortString())
	}

	p = r.trimLoop(p)

	if !trusted && p.Len() <= minTrustedLen {
		return nil, ErrUntrustedPath
	}

	pos := len(r.paths)
	for i, existing := range r.paths {
		if existing.Len() < p.Len() {
			continue
		}
		if existing.Len() > p.Len() {
			pos = i
			break
		}
		if existing.Equal(p) {
			return existing, nil
		}
	}

	r.paths = append(r.paths, nil)
	copy(r.paths[pos+1:], r.paths[pos:])
	r.paths[pos] = p
	return p, nil
}

// trimLoop 从最后一次出现的本地节点处截断
func (r *Registry) trimLoop(p *Path) *Path {
	for i := p.Len() - 1; i > 0; i-- {
		if p.peers[i] == r.local {
			return New(p.peers[i:]...)
		}
	}
	return p
}

// Remove 移除跳序列与 p 完全相同的路径，不存在时无操作
func (r *Registry) Remove(p *Path) bool {
	if p.Len() == 0 {
		return false
	}
	kept := r.paths[:0]
	for _, existing := range r.paths {
		if !existing.Equal(p) {
			kept = append(kept, existing)
		}
	}
	removed := len(kept) != len(r.paths)
	for i := len(kept); i < len(r.paths); i++ {
		r.paths[i] = nil
	}
	r.paths = kept
	return removed
}

// PopDirect 移除并返回直连路径（本地节点 -> 所属节点）
func (r *Registry) PopDirect() *Path {
	for i, p := range r.paths {
		if p.Len() == 2 {
			r.paths = append(r.paths[:i], r.paths[i+1:]...)
			return p
		}
	}
	return nil
}

// Best 返回代价最小的有效路径
//
// cost 返回 false 表示该路径不可用（例如已被隧道占用）。
// 代价相同时选择更短的路径。
func (r *Registry) Best(cost func(*Path) (uint, bool)) *Path {
	var (
		best     *Path
		bestCost uint
	)
	for _, p := range r.paths {
		if !p.IsValid() {
			continue
		}
		c, ok := cost(p)
		if !ok {
			continue
		}
		if best == nil || c < bestCost {
			best, bestCost = p, c
		}
	}
	return best
}

// InvalidateLink 将经过 a-b 链路的路径全部标记失效
//
// 返回新失效的路径数。
func (r *Registry) InvalidateLink(a, b types.PeerID) int {
	n := 0
	for _, p := range r.paths {
		if p.IsValid() && p.HasLink(a, b) {
			p.Invalidate()
			n++
		}
	}
	return n
}

// HasShortPath 是否存在短于 3 跳的路径
func (r *Registry) HasShortPath() bool {
	return len(r.paths) > 0 && r.paths[0].Len() < ShortPathLen
}

// Len 返回路径数
func (r *Registry) Len() int {
	return len(r.paths)
}

// Paths 返回路径快照（按跳数升序）
func (r *Registry) Paths() []*Path {
	out := make([]*Path, len(r.paths))
	copy(out, r.paths)
	return out
}

// Clear 清空所有路径
func (r *Registry) Clear() {
	r.paths = nil
}
