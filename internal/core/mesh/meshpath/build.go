package meshpath

import (
	"github.com/dep2p/go-ats/pkg/types"
)

// BuildFromDHT 由 DHT 查询结果构造到目标节点的路径
//
// getPath 是 GET 请求经过的节点（由远及近），putPath 是目标节点
// 发布记录时经过的节点（由远及近）。两段依次反向拼接，相邻重复节点折叠；
// PUT 段中出现本地节点时从本地节点重新开始。
func BuildFromDHT(local types.PeerID, getPath, putPath []types.PeerID) *Path {
	p := &Path{peers: []types.PeerID{local}}

	appendHop := func(id types.PeerID) {
		if n := len(p.peers); n > 0 && p.peers[n-1] == id {
			return
		}
		p.peers = append(p.peers, id)
	}

	for i := len(getPath) - 1; i >= 0; i-- {
		appendHop(getPath[i])
	}
	for i := len(putPath) - 1; i >= 0; i-- {
		if putPath[i] == local {
			p.peers = p.peers[:0]
		}
		appendHop(putPath[i])
	}
	return p
}

// AddFunc 把路径登记到 owner 的路径集合
type AddFunc func(owner types.PeerID, p *Path, trusted bool)

// AddToAll 把路径的每个前缀登记给对应的中间节点
//
// 本地节点之前的跳被跳过；本地节点之后第 i 跳获得前 i+1 跳组成的副本。
// 整条路径少于 3 跳时所有副本都按不可信处理。
func AddToAll(local types.PeerID, p *Path, confirmed bool, add AddFunc) {
	start := p.Index(local)
	if start < 0 {
		return
	}
	trusted := confirmed && p.Len() >= ShortPathLen
	for i := start + 1; i < p.Len(); i++ {
		add(p.peers[i], p.Prefix(i+1), trusted)
	}
}
