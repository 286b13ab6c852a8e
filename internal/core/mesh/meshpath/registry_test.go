package meshpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-ats/pkg/types"
)

func pid(b byte) types.PeerID {
	var id types.PeerID
	id[0] = b
	return id
}

var (
	local = pid(1)
	peerA = pid(0xA)
	peerB = pid(0xB)
	peerC = pid(0xC)
	peerD = pid(0xD)
	peerZ = pid(0x2F)
)

// TestRegistry_AddTrimsLoop 测试环路截断
func TestRegistry_AddTrimsLoop(t *testing.T) {
	r := NewRegistry(local, peerZ)

	got, err := r.Add(New(local, peerA, local, peerB, peerZ), true)
	require.NoError(t, err)

	assert.Equal(t, []types.PeerID{local, peerB, peerZ}, got.Peers())
	assert.Equal(t, 1, r.Len())

	t.Log("✅ 环路被截断到本地节点")
}

// TestRegistry_AddDuplicate 测试重复添加返回已有路径
func TestRegistry_AddDuplicate(t *testing.T) {
	r := NewRegistry(local, peerZ)

	first, err := r.Add(New(local, peerA, peerZ), true)
	require.NoError(t, err)

	second, err := r.Add(New(local, peerA, peerZ), true)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Len())
}

// TestRegistry_AddUntrusted 测试不可信短路径被拒绝
func TestRegistry_AddUntrusted(t *testing.T) {
	r := NewRegistry(local, peerZ)

	_, err := r.Add(New(local, peerZ), false)
	assert.ErrorIs(t, err, ErrUntrustedPath)

	// 截断后变短的不可信路径同样被拒绝
	_, err = r.Add(New(peerA, local, peerZ), false)
	assert.ErrorIs(t, err, ErrUntrustedPath)

	p, err := r.Add(New(local, peerA, peerZ), false)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	_, err = r.Add(New(local, peerZ), true)
	assert.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

// TestRegistry_AddMalformed 测试终点错误的路径
func TestRegistry_AddMalformed(t *testing.T) {
	r := NewRegistry(local, peerZ)

	_, err := r.Add(New(local, peerA), true)
	assert.ErrorIs(t, err, ErrMalformedPath)
	assert.True(t, types.IsLogicError(err))

	_, err = r.Add(New(), true)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = r.Add(nil, true)
	assert.ErrorIs(t, err, ErrEmptyPath)
	assert.Equal(t, 0, r.Len())
}

// TestRegistry_SortedByLength 测试按跳数升序
func TestRegistry_SortedByLength(t *testing.T) {
	r := NewRegistry(local, peerZ)

	for _, p := range []*Path{
		New(local, peerA, peerB, peerC, peerZ),
		New(local, peerA, peerZ),
		New(local, peerB, peerC, peerZ),
		New(local, peerZ),
		New(local, peerC, peerZ),
	} {
		_, err := r.Add(p, true)
		require.NoError(t, err)
	}

	paths := r.Paths()
	require.Len(t, paths, 5)
	for i := 1; i < len(paths); i++ {
		assert.LessOrEqual(t, paths[i-1].Len(), paths[i].Len())
	}
	assert.True(t, r.HasShortPath())
}

// TestRegistry_Remove 测试按跳序列移除
func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(local, peerZ)

	p, err := r.Add(New(local, peerA, peerZ), true)
	require.NoError(t, err)
	_, err = r.Add(New(local, peerB, peerZ), true)
	require.NoError(t, err)

	// 相同跳序列的新对象同样能移除已保存的路径
	assert.True(t, r.Remove(New(local, peerA, peerZ)))
	assert.Equal(t, 1, r.Len())

	// 重复移除无操作
	assert.False(t, r.Remove(p))
	assert.False(t, r.Remove(New(local, peerC, peerZ)))
	assert.False(t, r.Remove(nil))
	assert.Equal(t, 1, r.Len())
}

// TestRegistry_AddDuplicateKeepsInvalid 测试重复添加返回已保存的失效路径
func TestRegistry_AddDuplicateKeepsInvalid(t *testing.T) {
	r := NewRegistry(local, peerZ)

	stored, err := r.Add(New(local, peerA, peerZ), true)
	require.NoError(t, err)
	stored.Invalidate()

	again, err := r.Add(New(local, peerA, peerZ), false)
	require.NoError(t, err)
	assert.Same(t, stored, again)
	assert.False(t, again.IsValid())
	assert.Equal(t, 1, r.Len())

	// 失效路径不会被重新选中
	assert.Nil(t, r.Best(func(p *Path) (uint, bool) { return uint(p.Len()), true }))
}

// TestRegistry_PopDirect 测试弹出直连路径
func TestRegistry_PopDirect(t *testing.T) {
	r := NewRegistry(local, peerZ)
	_, _ = r.Add(New(local, peerA, peerZ), true)
	direct, _ := r.Add(New(local, peerZ), true)

	assert.Same(t, direct, r.PopDirect())
	assert.Nil(t, r.PopDirect())
	assert.Equal(t, 1, r.Len())
	assert.False(t, r.HasShortPath())
}

// TestRegistry_InvalidateLink 测试链路失效
func TestRegistry_InvalidateLink(t *testing.T) {
	r := NewRegistry(local, peerZ)
	viaA, _ := r.Add(New(local, peerA, peerB, peerZ), true)
	viaC, _ := r.Add(New(local, peerC, peerZ), true)

	assert.Equal(t, 1, r.InvalidateLink(peerB, peerA))
	assert.False(t, viaA.IsValid())
	assert.True(t, viaC.IsValid())

	// 失效路径不会被选中
	best := r.Best(func(p *Path) (uint, bool) { return uint(p.Len()), true })
	assert.Same(t, viaC, best)

	assert.Equal(t, 0, r.InvalidateLink(peerB, peerA))
}

// TestRegistry_Best 测试代价选择
func TestRegistry_Best(t *testing.T) {
	r := NewRegistry(local, peerZ)
	short, _ := r.Add(New(local, peerA, peerZ), true)
	long, _ := r.Add(New(local, peerB, peerC, peerZ), true)

	best := r.Best(func(p *Path) (uint, bool) { return uint(p.Len()), true })
	assert.Same(t, short, best)

	// 短路径被占用
	best = r.Best(func(p *Path) (uint, bool) { return uint(p.Len()), p != short })
	assert.Same(t, long, best)

	assert.Nil(t, r.Best(func(*Path) (uint, bool) { return 0, false }))
}

// TestPath_Invert 测试反向路径
func TestPath_Invert(t *testing.T) {
	p := New(local, peerA, peerB)
	inv := p.Invert()

	assert.Equal(t, []types.PeerID{peerB, peerA, local}, inv.Peers())
	assert.True(t, p.Equal(inv.Invert()))
	assert.Equal(t, peerB, inv.First())
	assert.Equal(t, local, inv.Last())
}

// TestPath_CloneIndependent 测试副本独立
func TestPath_CloneIndependent(t *testing.T) {
	p := New(local, peerA)
	p.Invalidate()
	c := p.Clone()

	assert.True(t, c.IsValid())
	assert.True(t, p.Equal(c))
	assert.Contains(t, p.String(), "invalid")
	assert.Len(t, p.Bytes(), 64)
}
