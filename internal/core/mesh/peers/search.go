package peers

import (
	"encoding/hex"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/mesh/meshpath"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

// startSearch 在 DHT 中查找到 id 的路径
func (d *Directory) startSearch(id types.PeerID) {
	replication := d.cfg.DHTReplication
	if replication <= 0 {
		replication = config.DefaultDHTReplication
	}

	log.Debug("starting path search", "peer", id.ShortString())
	h := d.deps.DHT.Search(id, replication, func(res interfaces.DHTResult) {
		d.handleSearchResult(id, res)
	})

	d.mu.Lock()
	p, ok := d.peers[id]
	if !ok || d.closed || p.search != nil {
		d.mu.Unlock()
		h.Stop()
		return
	}
	p.search = h
	d.mu.Unlock()
}

// StopSearch 停止对 id 的路径查找
func (d *Directory) StopSearch(id types.PeerID) {
	d.mu.Lock()
	p, ok := d.peers[id]
	if !ok || p.search == nil {
		d.mu.Unlock()
		return
	}
	h := p.search
	p.search = nil
	if p.tunnel != nil && p.tunnel.state == TunnelSearching {
		p.tunnel.state = TunnelNew
		p.tunnel.refreshState()
	}
	d.mu.Unlock()

	h.Stop()
}

// handleSearchResult 把 DHT 结果转换为路径并登记
//
// 相同的结果只处理一次；隧道连接数未满时尝试建链。
func (d *Directory) handleSearchResult(id types.PeerID, res interfaces.DHTResult) {
	path := meshpath.BuildFromDHT(d.local, res.GetPath, res.PutPath)
	if path.Len() == 0 || path.Last() != id {
		log.Debug("search result does not reach target", "peer", id.ShortString(), "path", path.String())
		return
	}

	key := hex.EncodeToString(path.Bytes())
	if ok, _ := d.seen.ContainsOrAdd(key, struct{}{}); ok {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.addPathToAllLocked(path, false)
	p := d.getLocked(id)
	connect := p.tunnel != nil && len(p.tunnel.conns) < d.maxTunnelConns()
	d.mu.Unlock()

	if connect {
		if err := d.Connect(id); err != nil {
			log.Debug("connect after search failed", "peer", id.ShortString(), "err", err)
		}
	}
}
