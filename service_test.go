package ats

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

var (
	localID = PeerID{0x01}
	peerA   = PeerID{0x0A}
)

type nopHandle struct{}

func (nopHandle) Cancel() {}

type nopTransmitter struct{}

func (nopTransmitter) NotifyTransmitReady(types.PeerID, int, types.Priority, interfaces.TransmitFunc) interfaces.TransmitHandle {
	return nopHandle{}
}

type recorder struct {
	mu  sync.Mutex
	got []Suggestion
}

func (r *recorder) fn(s Suggestion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
}

func (r *recorder) last() Suggestion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func startService(t *testing.T, opts ...Option) (*Service, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	opts = append([]Option{WithClock(clk), WithRegisterer(prometheus.NewRegistry())}, opts...)
	svc, err := Start(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, clk
}

func wanAddr(raw byte) (Address, Properties) {
	return Address{Peer: peerA, Transport: "tcp", Raw: []byte{raw}},
		Properties{Delay: 10 * time.Millisecond, Distance: 1, Scope: NetworkWAN}
}

// ============================================================================
//                              端到端
// ============================================================================

// TestService_EndToEnd 测试添加地址、订阅推荐、移除地址
func TestService_EndToEnd(t *testing.T) {
	svc, _ := startService(t)

	addr, props := wanAddr(1)
	rec, err := svc.AddressAdd(addr, NoSession, props)
	require.NoError(t, err)

	var r recorder
	sub, err := svc.RequestSuggestion(peerA, r.fn)
	require.NoError(t, err)
	defer svc.CancelSuggestion(sub)

	require.Equal(t, 1, r.len())
	s := r.last()
	assert.True(t, s.Address.Equal(addr))
	assert.False(t, s.IsDisconnect())
	q := svc.Config().Quotas.For(NetworkWAN)
	assert.LessOrEqual(t, s.Bandwidth.In, q.In)
	assert.LessOrEqual(t, s.Bandwidth.Out, q.Out)

	cur, ok := svc.CurrentSuggestion(peerA)
	require.True(t, ok)
	assert.Equal(t, s.Bandwidth, cur.Bandwidth)

	require.NoError(t, svc.AddressDestroy(rec))
	assert.True(t, r.last().IsDisconnect())
	assert.Equal(t, 2, r.len())

	t.Log("✅ 推荐与断开通知正确")
}

// TestService_LogicErrors 测试调用约定错误
func TestService_LogicErrors(t *testing.T) {
	svc, _ := startService(t)

	addr, props := wanAddr(1)
	_, err := svc.AddressAdd(addr, NoSession, props)
	require.NoError(t, err)

	_, err = svc.AddressAdd(addr, NoSession, props)
	assert.True(t, errors.Is(err, ErrDuplicateAddress))
	assert.True(t, IsLogicError(err))

	_, err = svc.RequestSuggestion(peerA, func(Suggestion) {})
	require.NoError(t, err)
	_, err = svc.RequestSuggestion(peerA, func(Suggestion) {})
	assert.True(t, errors.Is(err, ErrAlreadySubscribed))

	_, err = svc.RequestSuggestion(PeerID{0x0B}, nil)
	assert.True(t, IsLogicError(err))
}

// TestService_ListAddresses 测试地址枚举
func TestService_ListAddresses(t *testing.T) {
	svc, _ := startService(t)

	for i := byte(1); i <= 3; i++ {
		addr, props := wanAddr(i)
		_, err := svc.AddressAdd(addr, NoSession, props)
		require.NoError(t, err)
	}

	n, dones := 0, 0
	svc.ListAddresses(ListFilter{Peer: peerA}, func(_ AddressInfo, done bool) {
		if done {
			dones++
			return
		}
		n++
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, dones)
}

// TestService_AddressInUse 测试报告地址使用状态
func TestService_AddressInUse(t *testing.T) {
	svc, _ := startService(t)

	addr, props := wanAddr(1)
	rec, err := svc.AddressAdd(addr, NoSession, props)
	require.NoError(t, err)

	require.NoError(t, svc.AddressInUse(rec, true))
	var infos []AddressInfo
	svc.ListAddresses(ListFilter{Peer: peerA}, func(info AddressInfo, done bool) {
		if !done {
			infos = append(infos, info)
		}
	})
	require.Len(t, infos, 1)
	assert.True(t, infos[0].InUse)

	require.NoError(t, svc.AddressDestroy(rec))
	assert.ErrorIs(t, svc.AddressInUse(rec, false), ErrUnknownAddress)
}

// TestService_AddressType 测试地址网络范围识别
func TestService_AddressType(t *testing.T) {
	svc, _ := startService(t)

	assert.Equal(t, NetworkLoopback, svc.AddressType(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2086}))
	assert.Equal(t, NetworkLoopback, svc.AddressType(&net.UnixAddr{Name: "/tmp/ats.sock", Net: "unix"}))
	assert.Equal(t, NetworkUnspecified, svc.AddressType(nil))
}

// ============================================================================
//                              预留与吞吐量
// ============================================================================

// TestService_ReserveFollowsAllocation 测试预留速率跟随入站分配
func TestService_ReserveFollowsAllocation(t *testing.T) {
	svc, _ := startService(t)

	granted, retry := svc.Reserve(peerA, 100)
	assert.Zero(t, granted)
	assert.Positive(t, retry)

	addr, props := wanAddr(1)
	_, err := svc.AddressAdd(addr, NoSession, props)
	require.NoError(t, err)
	var r recorder
	_, err = svc.RequestSuggestion(peerA, r.fn)
	require.NoError(t, err)

	granted, retry = svc.Reserve(peerA, 100)
	assert.Equal(t, int64(100), granted)
	assert.Zero(t, retry)

	var undone int64
	svc.ReserveAsync(peerA, 100, func(peer PeerID, g int64, _ time.Duration) {
		svc.ReserveAsync(peer, -g, func(_ PeerID, u int64, _ time.Duration) { undone = u })
		assert.Zero(t, undone)
	})
	assert.Equal(t, int64(-100), undone)

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics().Reservations.WithLabelValues("released")))
}

// TestService_ReserveAsyncCancel 测试取消尚未执行的异步预留
func TestService_ReserveAsyncCancel(t *testing.T) {
	svc, _ := startService(t)

	called := false
	outer := svc.ReserveAsync(peerA, 0, func(peer PeerID, _ int64, _ time.Duration) {
		req := svc.ReserveAsync(peer, 100, func(PeerID, int64, time.Duration) { called = true })
		require.NotNil(t, req)
		req.Cancel()
	})
	require.NotNil(t, outer)

	assert.False(t, called)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics().Reservations.WithLabelValues("cancelled")))
}

// TestService_TrafficFeedsUtilization 测试吞吐量写入活跃地址
func TestService_TrafficFeedsUtilization(t *testing.T) {
	svc, clk := startService(t)

	addr, props := wanAddr(1)
	rec, err := svc.AddressAdd(addr, NoSession, props)
	require.NoError(t, err)
	_, err = svc.RequestSuggestion(peerA, func(Suggestion) {})
	require.NoError(t, err)

	svc.ReportTraffic(peerA, 4000, 2000)

	require.Eventually(t, func() bool {
		clk.Add(time.Second)
		p := rec.Properties()
		return p.UtilizationOut > 0 && p.UtilizationIn > 0
	}, 2*time.Second, 10*time.Millisecond)

	stats, ok := svc.TrafficStats(peerA)
	require.True(t, ok)
	assert.Equal(t, uint64(4000), stats.TotalOut)
	assert.Equal(t, uint64(2000), stats.TotalIn)
}

// TestService_Preferences 测试偏好调整
func TestService_Preferences(t *testing.T) {
	svc, _ := startService(t)

	svc.ChangePreference(peerA, BandwidthPreference(2), LatencyPreference(1))
	assert.Len(t, svc.Preferences(), 2)

	require.NoError(t, svc.Feedback(peerA, time.Second, BandwidthPreference(1.5)))
	assert.Error(t, svc.Feedback(peerA, 0, BandwidthPreference(1.5)))
}

// ============================================================================
//                              生命周期
// ============================================================================

// TestService_Lifecycle 测试启动与关闭
func TestService_Lifecycle(t *testing.T) {
	svc, _ := startService(t)

	assert.True(t, svc.IsRunning())
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)
	assert.Nil(t, svc.Mesh())

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
	assert.False(t, svc.IsRunning())

	addr, props := wanAddr(1)
	_, err := svc.AddressAdd(addr, NoSession, props)
	assert.ErrorIs(t, err, ErrServiceClosed)
	assert.ErrorIs(t, svc.Start(context.Background()), ErrServiceClosed)
}

// TestService_QueriesAfterClose 测试关闭后的查询
func TestService_QueriesAfterClose(t *testing.T) {
	svc, _ := startService(t)
	addr, props := wanAddr(1)
	_, err := svc.AddressAdd(addr, NoSession, props)
	require.NoError(t, err)
	svc.ChangePreference(peerA, BandwidthPreference(2))
	svc.ReportTraffic(peerA, 10, 10)
	require.NoError(t, svc.Close())

	n, dones := 0, 0
	svc.ListAddresses(ListFilter{}, func(_ AddressInfo, done bool) {
		if done {
			dones++
			return
		}
		n++
	})
	assert.Zero(t, n)
	assert.Equal(t, 1, dones)

	assert.Nil(t, svc.Preferences())
	_, ok := svc.TrafficStats(peerA)
	assert.False(t, ok)
	assert.Nil(t, svc.ReserveAsync(peerA, 1, func(PeerID, int64, time.Duration) {}))
	assert.Equal(t, NetworkUnspecified, svc.AddressType(&net.TCPAddr{IP: net.IPv4(8, 8, 8, 8)}))

	t.Log("✅ 关闭后查询返回空结果")
}

// TestService_CloseWithoutStart 测试未启动时关闭
func TestService_CloseWithoutStart(t *testing.T) {
	svc, err := New(context.Background(), WithClock(clock.NewMock()))
	require.NoError(t, err)
	require.NoError(t, svc.Close())
}

// TestService_Mesh 测试启用网状网络
func TestService_Mesh(t *testing.T) {
	svc, _ := startService(t, WithLocalPeer(localID), WithTransmitter(nopTransmitter{}))

	dir := svc.Mesh()
	require.NotNil(t, dir)
	assert.Equal(t, localID, dir.Local())

	_, err := New(context.Background(), WithLocalPeer(PeerID{}))
	assert.ErrorIs(t, err, types.ErrEmptyPeerID)
}

// TestService_Introspect 测试通过选项启用自省服务
func TestService_Introspect(t *testing.T) {
	_, err := New(context.Background(), WithIntrospect(""))
	assert.Error(t, err)

	svc, _ := startService(t, WithIntrospect("127.0.0.1:0"))
	assert.True(t, svc.Config().Diagnostics.EnableIntrospect)
}
