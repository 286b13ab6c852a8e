package interfaces

import (
	"github.com/dep2p/go-ats/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// DHT 接口
// ════════════════════════════════════════════════════════════════════════════

// DHTResult 一次 DHT 查询结果
//
// GetPath 是请求沿途节点，PutPath 是目标节点发布记录时的沿途节点，
// 都按由远及近排列。
type DHTResult struct {
	Key     types.PeerID
	GetPath []types.PeerID
	PutPath []types.PeerID
}

// DHTResultFunc 查询结果回调，可能被多次调用
type DHTResultFunc func(res DHTResult)

// SearchHandle 正在进行的查询
type SearchHandle interface {
	// Stop 停止查询，之后不再回调
	Stop()
}

// DHT 节点路径查询
type DHT interface {
	// Search 查找能到达 key 的路径
	Search(key types.PeerID, replication int, fn DHTResultFunc) SearchHandle
}
