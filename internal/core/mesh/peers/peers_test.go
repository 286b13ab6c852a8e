package peers

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/mesh/connection"
	"github.com/dep2p/go-ats/internal/core/mesh/meshpath"
	"github.com/dep2p/go-ats/internal/core/mesh/queue"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type request struct {
	fn        interfaces.TransmitFunc
	cancelled bool
}

func (r *request) Cancel() { r.cancelled = true }

type fakeTransmitter struct {
	mu       sync.Mutex
	requests []*request
}

func (f *fakeTransmitter) NotifyTransmitReady(_ types.PeerID, _ int, _ types.Priority, fn interfaces.TransmitFunc) interfaces.TransmitHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &request{fn: fn}
	f.requests = append(f.requests, r)
	return r
}

// fire 触发全部未取消的请求
func (f *fakeTransmitter) fire() int {
	f.mu.Lock()
	reqs := f.requests
	f.requests = nil
	f.mu.Unlock()

	n := 0
	for _, r := range reqs {
		if !r.cancelled {
			n += r.fn(make([]byte, 4096))
		}
	}
	return n
}

type fakeSearch struct {
	key     types.PeerID
	fn      interfaces.DHTResultFunc
	stopped bool
}

func (s *fakeSearch) Stop() { s.stopped = true }

type fakeDHT struct {
	mu       sync.Mutex
	searches []*fakeSearch
}

func (f *fakeDHT) Search(key types.PeerID, _ int, fn interfaces.DHTResultFunc) interfaces.SearchHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSearch{key: key, fn: fn}
	f.searches = append(f.searches, s)
	return s
}

type fakeOfferer struct {
	offered []*types.Hello
}

func (f *fakeOfferer) OfferHello(h *types.Hello) error {
	f.offered = append(f.offered, h)
	return nil
}

var (
	local    = types.PeerID{0xAA}
	neighbor = types.PeerID{0x01}
	target   = types.PeerID{0x02}
)

type fixture struct {
	dir     *Directory
	tx      *fakeTransmitter
	dht     *fakeDHT
	offerer *fakeOfferer
	clk     *clock.Mock
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, maxPeers int) *fixture {
	t.Helper()
	f := &fixture{
		tx:      &fakeTransmitter{},
		dht:     &fakeDHT{},
		offerer: &fakeOfferer{},
		clk:     clock.NewMock(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	cfg := config.DefaultMeshConfig()
	cfg.MaxPeers = maxPeers

	dir, err := New(local, cfg, Deps{
		Transmitter: f.tx,
		Offerer:     f.offerer,
		DHT:         f.dht,
		Clock:       f.clk,
		Metrics:     f.metrics,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })
	f.dir = dir
	return f
}

// ============================================================================
//                              查找与淘汰
// ============================================================================

// TestDirectory_GetRefreshesContact 测试访问刷新 last_contact
func TestDirectory_GetRefreshesContact(t *testing.T) {
	f := newFixture(t, 10)

	p := f.dir.Get(neighbor)
	first := p.LastContact()

	f.clk.Add(time.Minute)
	assert.Same(t, p, f.dir.Get(neighbor))
	assert.Equal(t, first.Add(time.Minute), p.LastContact())
	assert.Equal(t, 1, f.dir.Count())

	t.Log("✅ 访问刷新 last_contact")
}

// TestDirectory_EvictsOldestTies 测试并列最旧的节点一起被淘汰
func TestDirectory_EvictsOldestTies(t *testing.T) {
	f := newFixture(t, 3)

	f.dir.Get(types.PeerID{1})
	f.dir.Get(types.PeerID{2})
	f.clk.Add(time.Second)
	f.dir.Get(types.PeerID{3})
	f.clk.Add(time.Second)

	f.dir.Get(types.PeerID{4})

	assert.Equal(t, 2, f.dir.Count())
	_, ok := f.dir.Lookup(types.PeerID{1})
	assert.False(t, ok)
	_, ok = f.dir.Lookup(types.PeerID{2})
	assert.False(t, ok)
	_, ok = f.dir.Lookup(types.PeerID{3})
	assert.True(t, ok)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.PeersEvicted))

	t.Log("✅ 并列最旧节点一起淘汰")
}

// TestDirectory_UsedPeerNotEvicted 测试被使用的节点不会被淘汰
func TestDirectory_UsedPeerNotEvicted(t *testing.T) {
	f := newFixture(t, 2)

	f.dir.CoreConnected(neighbor)
	f.clk.Add(time.Second)
	f.dir.Get(target)
	f.clk.Add(time.Second)

	f.dir.Get(types.PeerID{3})

	_, ok := f.dir.Lookup(neighbor)
	assert.True(t, ok, "neighbor has a direct path")
	_, ok = f.dir.Lookup(target)
	assert.False(t, ok)

	t.Log("✅ 被使用的节点保留")
}

// TestDirectory_CapExceededWhenNothingEvictable 测试无可淘汰节点时超出上限
func TestDirectory_CapExceededWhenNothingEvictable(t *testing.T) {
	f := newFixture(t, 1)

	f.dir.CoreConnected(neighbor)
	f.dir.Get(target)

	assert.Equal(t, 2, f.dir.Count())

	t.Log("✅ 无可淘汰节点时仍然创建")
}

// ============================================================================
//                              核心层事件
// ============================================================================

// TestDirectory_CoreConnected 测试直连建立
func TestDirectory_CoreConnected(t *testing.T) {
	f := newFixture(t, 10)

	f.dir.CoreConnected(neighbor)

	p, ok := f.dir.Lookup(neighbor)
	require.True(t, ok)
	assert.True(t, p.IsNeighbor())
	require.NotNil(t, p.Queue())
	paths := p.Paths()
	require.Len(t, paths, 1)
	assert.True(t, paths[0].Equal(meshpath.New(local, neighbor)))

	t.Log("✅ 直连建立后成为邻居")
}

// TestDirectory_CoreDisconnectedLogicErrors 测试非法断开
func TestDirectory_CoreDisconnectedLogicErrors(t *testing.T) {
	f := newFixture(t, 10)

	err := f.dir.CoreDisconnected(neighbor)
	assert.True(t, types.IsLogicError(err))

	f.dir.Get(neighbor)
	err = f.dir.CoreDisconnected(neighbor)
	assert.True(t, types.IsLogicError(err))

	t.Log("✅ 未知节点与非邻居断开是逻辑错误")
}

// TestPeer_AddConnectionRequiresNeighbor 测试非邻居不能登记连接
func TestPeer_AddConnectionRequiresNeighbor(t *testing.T) {
	f := newFixture(t, 10)

	c, err := connection.New(local, meshpath.New(local, target), nil)
	require.NoError(t, err)

	err = f.dir.Get(target).AddConnection(c)
	assert.True(t, types.IsLogicError(err))

	t.Log("✅ 非邻居登记连接是逻辑错误")
}

// ============================================================================
//                              隧道
// ============================================================================

// TestDirectory_ConnectDirect 测试沿直连路径建链
func TestDirectory_ConnectDirect(t *testing.T) {
	f := newFixture(t, 10)
	f.dir.CoreConnected(neighbor)

	require.NoError(t, f.dir.Connect(neighbor))

	p, _ := f.dir.Lookup(neighbor)
	state, ok := p.TunnelState()
	require.True(t, ok)
	assert.Equal(t, TunnelWaiting, state)

	conns := p.TunnelConnections()
	require.Len(t, conns, 1)
	c := conns[0]

	assert.Positive(t, f.tx.fire())
	assert.Equal(t, connection.StateSent, c.State())

	require.NoError(t, f.dir.ConnectionAcked(c))
	state, _ = p.TunnelState()
	assert.Equal(t, TunnelReady, state)

	t.Log("✅ 直连路径建链成功")
}

// TestDirectory_ConnectViaSearch 测试无路径时通过 DHT 查找
func TestDirectory_ConnectViaSearch(t *testing.T) {
	f := newFixture(t, 10)
	f.dir.CoreConnected(neighbor)

	require.NoError(t, f.dir.Connect(target))

	p, _ := f.dir.Lookup(target)
	state, _ := p.TunnelState()
	assert.Equal(t, TunnelSearching, state)
	require.Len(t, f.dht.searches, 1)
	s := f.dht.searches[0]
	assert.Equal(t, target, s.key)

	res := interfaces.DHTResult{Key: target, PutPath: []types.PeerID{target, neighbor}}
	s.fn(res)
	s.fn(res)

	conns := p.TunnelConnections()
	require.Len(t, conns, 1, "duplicate results are ignored")
	assert.True(t, conns[0].Path().Equal(meshpath.New(local, neighbor, target)))

	n, _ := f.dir.Lookup(neighbor)
	assert.Len(t, n.Connections(), 1)

	t.Log("✅ DHT 结果建立路径并建链")
}

// TestDirectory_DisconnectBreaksConnections 测试邻居断开使经过它的连接断开
func TestDirectory_DisconnectBreaksConnections(t *testing.T) {
	f := newFixture(t, 10)
	f.dir.CoreConnected(neighbor)
	_, err := f.dir.Get(target).AddPath(meshpath.New(local, neighbor, target), true)
	require.NoError(t, err)

	require.NoError(t, f.dir.Connect(target))
	p, _ := f.dir.Lookup(target)
	conns := p.TunnelConnections()
	require.Len(t, conns, 1)
	c := conns[0]

	require.NoError(t, f.dir.CoreDisconnected(neighbor))

	assert.Equal(t, connection.StateDestroyed, c.State())
	assert.Empty(t, p.TunnelConnections())
	n, _ := f.dir.Lookup(neighbor)
	assert.False(t, n.IsNeighbor())
	assert.Nil(t, n.Queue())

	for _, path := range p.Paths() {
		assert.False(t, path.IsValid())
	}
	state, _ := p.TunnelState()
	assert.Equal(t, TunnelSearching, state, "tunnel falls back to search")

	t.Log("✅ 邻居断开后连接销毁，隧道重新查找")
}

// TestDirectory_SetBandwidthBeforeConnect 测试先设置速率后建立直连
func TestDirectory_SetBandwidthBeforeConnect(t *testing.T) {
	f := newFixture(t, 10)
	f.dir.Get(neighbor)
	f.dir.SetBandwidth(neighbor, 0)

	f.dir.CoreConnected(neighbor)
	p, _ := f.dir.Lookup(neighbor)
	q := p.Queue()
	require.NotNil(t, q)

	_, err := q.Add(queue.TypeKX, []byte("kx"), nil, true, nil)
	require.NoError(t, err)
	assert.Zero(t, f.tx.fire(), "payload paused")
	assert.Equal(t, 1, q.Len())

	f.dir.SetBandwidth(neighbor, 1<<20)
	assert.Equal(t, 2, f.tx.fire())
	assert.Zero(t, q.Len())

	t.Log("✅ 预先设置的速率在直连后生效")
}

// ============================================================================
//                              Hello
// ============================================================================

// TestPeer_HelloExpiry 测试 Hello 读取时过期
func TestPeer_HelloExpiry(t *testing.T) {
	f := newFixture(t, 10)
	p := f.dir.Get(target)

	h := &types.Hello{Peer: target, Addresses: []types.HelloAddress{
		{Transport: "tcp", Raw: []byte{1}, Expiration: f.clk.Now().Add(time.Minute)},
	}}
	require.NoError(t, p.SetHello(h))
	require.NotNil(t, p.Hello())

	require.NoError(t, f.dir.TryConnect(target))
	assert.Len(t, f.offerer.offered, 1)

	f.clk.Add(2 * time.Minute)
	assert.Nil(t, p.Hello())

	require.NoError(t, f.dir.TryConnect(target))
	assert.Len(t, f.offerer.offered, 1, "expired hello not offered")

	t.Log("✅ Hello 过期后不再投递")
}

// TestPeer_SetHelloWrongPeer 测试 Hello 节点不匹配
func TestPeer_SetHelloWrongPeer(t *testing.T) {
	f := newFixture(t, 10)
	p := f.dir.Get(target)

	err := p.SetHello(&types.Hello{Peer: neighbor})
	assert.True(t, types.IsLogicError(err))

	t.Log("✅ Hello 节点不匹配是逻辑错误")
}

// TestDirectory_EnsureTunnel 测试创建隧道但不建链
func TestDirectory_EnsureTunnel(t *testing.T) {
	f := newFixture(t, 10)

	state, err := f.dir.EnsureTunnel(target)
	require.NoError(t, err)
	assert.Equal(t, TunnelNew, state)

	p, ok := f.dir.Lookup(target)
	require.True(t, ok)
	assert.Empty(t, p.TunnelConnections())
	assert.Empty(t, f.dht.searches)

	require.NoError(t, f.dir.Close())
	_, err = f.dir.EnsureTunnel(target)
	assert.ErrorIs(t, err, types.ErrClosed)
}
