package meshpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-ats/pkg/types"
)

// TestBuildFromDHT 测试 GET/PUT 路径拼接
func TestBuildFromDHT(t *testing.T) {
	// GET: 目标方向的记录经 B、A 返回；PUT: 目标 Z 经 C、B 发布
	p := BuildFromDHT(local, []types.PeerID{peerB, peerA}, []types.PeerID{peerZ, peerC, peerB})

	assert.Equal(t, []types.PeerID{local, peerA, peerB, peerC, peerZ}, p.Peers())
}

// TestBuildFromDHT_RestartAtLocal 测试 PUT 路径经过本地节点
func TestBuildFromDHT_RestartAtLocal(t *testing.T) {
	p := BuildFromDHT(local, []types.PeerID{peerA}, []types.PeerID{peerZ, peerC, local, peerD})

	assert.Equal(t, []types.PeerID{local, peerC, peerZ}, p.Peers())
}

// TestBuildFromDHT_Empty 测试空结果
func TestBuildFromDHT_Empty(t *testing.T) {
	p := BuildFromDHT(local, nil, nil)
	assert.Equal(t, []types.PeerID{local}, p.Peers())
}

// TestAddToAll 测试前缀分发
func TestAddToAll(t *testing.T) {
	type call struct {
		owner   types.PeerID
		path    []types.PeerID
		trusted bool
	}
	var calls []call
	add := func(owner types.PeerID, p *Path, trusted bool) {
		calls = append(calls, call{owner, p.Peers(), trusted})
	}

	AddToAll(local, New(peerD, local, peerA, peerB), true, add)

	require.Len(t, calls, 2)
	assert.Equal(t, peerA, calls[0].owner)
	assert.Equal(t, []types.PeerID{peerD, local, peerA}, calls[0].path)
	assert.True(t, calls[0].trusted)
	assert.Equal(t, peerB, calls[1].owner)
	assert.Equal(t, []types.PeerID{peerD, local, peerA, peerB}, calls[1].path)

	// 短路径不可信
	calls = nil
	AddToAll(local, New(local, peerA), true, add)
	require.Len(t, calls, 1)
	assert.False(t, calls[0].trusted)

	// 不含本地节点的路径不分发
	calls = nil
	AddToAll(local, New(peerA, peerB), true, add)
	assert.Empty(t, calls)
}
