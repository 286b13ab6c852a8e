package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-ats/internal/core/mesh/meshpath"
	"github.com/dep2p/go-ats/pkg/types"
)

func pid(b byte) types.PeerID {
	var id types.PeerID
	id[0] = b
	return id
}

var (
	local = pid(1)
	hopA  = pid(0xA)
	dest  = pid(0xD)
)

func readyConn(t *testing.T, p *meshpath.Path) *Connection {
	t.Helper()
	c, err := New(local, p, nil)
	require.NoError(t, err)
	for _, s := range []State{StateSent, StateAck, StateReady} {
		require.NoError(t, c.SetState(s))
	}
	return c
}

// TestNew_Position 测试前后跳计算
func TestNew_Position(t *testing.T) {
	c, err := New(local, meshpath.New(local, hopA, dest), nil)
	require.NoError(t, err)

	assert.True(t, c.IsOrigin(true))
	assert.False(t, c.IsOrigin(false))
	assert.True(t, c.IsTerminal(false))
	assert.Equal(t, hopA, c.NextHop(true))
	assert.True(t, c.NextHop(false).IsEmpty())
	assert.Equal(t, hopA, c.PrevHop(false))
	assert.Equal(t, []types.PeerID{hopA}, c.Hops())

	// 中继位置
	relay, err := New(local, meshpath.New(hopA, local, dest), nil)
	require.NoError(t, err)
	assert.False(t, relay.IsOrigin(true))
	assert.False(t, relay.IsOrigin(false))
	assert.ElementsMatch(t, []types.PeerID{hopA, dest}, relay.Hops())

	_, err = New(local, meshpath.New(hopA, dest), nil)
	assert.ErrorIs(t, err, ErrNotOnPath)
	assert.True(t, types.IsLogicError(err))
}

// TestID_Unique 测试同一路径生成不同标识
func TestID_Unique(t *testing.T) {
	p := meshpath.New(local, dest)
	assert.NotEqual(t, NewID(p), NewID(p))
	assert.Len(t, NewID(p).String(), 12)
}

// TestSetState_Transitions 测试状态迁移
func TestSetState_Transitions(t *testing.T) {
	c, err := New(local, meshpath.New(local, dest), nil)
	require.NoError(t, err)

	require.NoError(t, c.SetState(StateSent))
	assert.ErrorIs(t, c.SetState(StateNew), ErrInvalidTransition)
	require.NoError(t, c.SetState(StateReady))
	require.NoError(t, c.SetState(StateBroken))
	assert.ErrorIs(t, c.SetState(StateReady), ErrInvalidTransition)
	require.NoError(t, c.SetState(StateDestroyed))
	assert.ErrorIs(t, c.SetState(StateBroken), ErrInvalidTransition)
}

// TestIsSendable 测试就绪与流控
func TestIsSendable(t *testing.T) {
	c, err := New(local, meshpath.New(local, dest), nil)
	require.NoError(t, err)
	assert.False(t, c.IsSendable(true), "未就绪不可发送")

	c = readyConn(t, meshpath.New(local, dest))
	assert.True(t, c.IsSendable(true))

	for i := 0; i < initialWindow; i++ {
		require.True(t, c.IsSendable(true))
		assert.Equal(t, uint32(i), c.RecordSent(true))
	}
	assert.False(t, c.IsSendable(true), "窗口耗尽")
	assert.True(t, c.IsSendable(false), "反方向独立")

	assert.True(t, c.ReceiveAck(true, initialWindow+10))
	assert.False(t, c.ReceiveAck(true, 5), "旧确认被忽略")
	assert.True(t, c.IsSendable(true))

	c.MarkDestroy()
	assert.True(t, c.DestroyPending())
	assert.False(t, c.IsSendable(true))
}

// TestNotifyBroken 测试断开回调只触发一次
func TestNotifyBroken(t *testing.T) {
	calls := 0
	var gotPeer types.PeerID
	c, err := New(local, meshpath.New(local, hopA, dest), func(_ *Connection, peer types.PeerID) {
		calls++
		gotPeer = peer
	})
	require.NoError(t, err)

	c.NotifyBroken(hopA)
	c.NotifyBroken(hopA)

	assert.Equal(t, 1, calls)
	assert.Equal(t, hopA, gotPeer)
	assert.Equal(t, StateBroken, c.State())
	assert.False(t, c.IsSendable(true))

	c.Destroy()
	assert.Equal(t, StateDestroyed, c.State())
	c.NotifyBroken(hopA)
	assert.Equal(t, 1, calls)
}

// TestPIDBigger 测试包号回绕比较
func TestPIDBigger(t *testing.T) {
	assert.True(t, PIDBigger(5, 3))
	assert.False(t, PIDBigger(3, 5))
	assert.True(t, PIDBigger(2, ^uint32(0)-1), "回绕")
	assert.False(t, PIDBigger(^uint32(0), 2))
	assert.False(t, PIDBigger(7, 7))
}
