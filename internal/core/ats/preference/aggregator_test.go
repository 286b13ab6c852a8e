package preference

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/pkg/types"
)

var (
	peerA = types.PeerID{0x0A}
	peerB = types.PeerID{0x0B}
)

func newTestAggregator(t *testing.T) (*Aggregator, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	cfg := config.DefaultPreferenceConfig()
	cfg.AgingInterval = config.Duration(time.Second)
	cfg.AgingFactor = 0.5
	cfg.Epsilon = 0.01
	return New(cfg, clk), clk
}

// TestAggregator_ChangeAndWeight 测试设置与读取
func TestAggregator_ChangeAndWeight(t *testing.T) {
	a, _ := newTestAggregator(t)

	var notified []types.PeerID
	a.OnChange(func(p types.PeerID) { notified = append(notified, p) })

	a.Change(peerA, types.BandwidthPreference(4), types.LatencyPreference(2))

	assert.Equal(t, 4.0, a.Weight(peerA, types.PreferenceBandwidth))
	assert.Equal(t, 2.0, a.Weight(peerA, types.PreferenceLatency))
	assert.Equal(t, 0.0, a.Weight(peerB, types.PreferenceBandwidth))
	assert.Equal(t, []types.PeerID{peerA}, notified)

	t.Log("✅ 偏好设置后立即生效")
}

// TestAggregator_DecayMonotonic 测试衰减单调且不越过基线
func TestAggregator_DecayMonotonic(t *testing.T) {
	a, clk := newTestAggregator(t)
	a.Change(peerA, types.BandwidthPreference(8))

	prev := a.Weight(peerA, types.PreferenceBandwidth)
	for i := 0; i < 20; i++ {
		clk.Add(300 * time.Millisecond)
		w := a.Weight(peerA, types.PreferenceBandwidth)
		assert.LessOrEqual(t, w, prev)
		assert.GreaterOrEqual(t, w, 0.0)
		prev = w
	}

	clk.Add(time.Hour)
	assert.Equal(t, 0.0, a.Weight(peerA, types.PreferenceBandwidth))

	t.Log("✅ 衰减单调收敛到基线")
}

// TestAggregator_DecayNegative 测试负值从下方回到基线
func TestAggregator_DecayNegative(t *testing.T) {
	a, clk := newTestAggregator(t)
	a.Change(peerA, types.LatencyPreference(-4))

	clk.Add(time.Second)
	assert.InDelta(t, -2.0, a.Weight(peerA, types.PreferenceLatency), 1e-9)

	t.Log("✅ 负偏好同样衰减")
}

// TestAggregator_ChangeResetsAge 测试重新设置重置老化
func TestAggregator_ChangeResetsAge(t *testing.T) {
	a, clk := newTestAggregator(t)
	a.Change(peerA, types.BandwidthPreference(8))
	clk.Add(time.Second)
	assert.InDelta(t, 4.0, a.Weight(peerA, types.PreferenceBandwidth), 1e-9)

	a.Change(peerA, types.BandwidthPreference(8))
	assert.Equal(t, 8.0, a.Weight(peerA, types.PreferenceBandwidth))

	t.Log("✅ 设置重置老化")
}

// TestAggregator_AgeFolds 测试 Age 折算不改变有效值
func TestAggregator_AgeFolds(t *testing.T) {
	a, clk := newTestAggregator(t)
	a.Change(peerA, types.BandwidthPreference(8))
	a.Change(peerB, types.BandwidthPreference(0.015))

	clk.Add(time.Second)
	before := a.Weight(peerA, types.PreferenceBandwidth)
	assert.True(t, a.Age())
	assert.InDelta(t, before, a.Weight(peerA, types.PreferenceBandwidth), 1e-9)

	// peerB 已回到基线
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, map[types.PeerID]float64{peerA: before}, a.Weights(types.PreferenceBandwidth))

	clk.Add(time.Hour)
	assert.True(t, a.Age())
	assert.Zero(t, a.Len())
	assert.False(t, a.Age())

	t.Log("✅ 老化折算并清理基线记录")
}

// TestAggregator_Feedback 测试反馈缩放
func TestAggregator_Feedback(t *testing.T) {
	a, _ := newTestAggregator(t)
	a.Change(peerA, types.BandwidthPreference(4))

	require.NoError(t, a.Feedback(peerA, time.Second, types.BandwidthPreference(10)))
	assert.Equal(t, 8.0, a.Weight(peerA, types.PreferenceBandwidth), "scale capped at 2")

	require.NoError(t, a.Feedback(peerA, time.Second, types.BandwidthPreference(0.1)))
	assert.Equal(t, 4.0, a.Weight(peerA, types.PreferenceBandwidth), "scale floored at 0.5")

	assert.ErrorIs(t, a.Feedback(peerA, 0, types.BandwidthPreference(1)), ErrInvalidWindow)

	t.Log("✅ 反馈在界内缩放")
}

// TestAggregator_ClockBackwards 测试时钟回拨不放大偏好
func TestAggregator_ClockBackwards(t *testing.T) {
	a, clk := newTestAggregator(t)
	clk.Add(time.Hour)
	a.Change(peerA, types.BandwidthPreference(4))

	clk.Set(clk.Now().Add(-time.Minute))
	assert.Equal(t, 4.0, a.Weight(peerA, types.PreferenceBandwidth))
	a.Age()
	assert.Equal(t, 4.0, a.Weight(peerA, types.PreferenceBandwidth))

	t.Log("✅ 非正间隔沿用原值")
}
