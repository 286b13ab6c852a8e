package types

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeer(b byte) PeerID {
	var id PeerID
	id[0] = b
	id[31] = b
	return id
}

// TestPeerID_RoundTrip 测试 Base58 编解码
func TestPeerID_RoundTrip(t *testing.T) {
	id := testPeer(7)

	s := id.String()
	require.NotEmpty(t, s)

	parsed, err := ParsePeerID(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.LessOrEqual(t, len(id.ShortString()), 8)

	t.Log("✅ PeerID 编解码正确")
}

// TestPeerID_Invalid 测试非法输入
func TestPeerID_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base58", "0OIl"},
		{"too short", "3mJr7AoUXx2Wqd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePeerID(tt.input)
			assert.ErrorIs(t, err, ErrInvalidPeerID)
		})
	}

	_, err := PeerIDFromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidPeerID)
}

// TestPeerID_Compare 测试字节序比较
func TestPeerID_Compare(t *testing.T) {
	a, b := testPeer(1), testPeer(2)

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, EmptyPeerID.IsEmpty())
	assert.Equal(t, "", EmptyPeerID.String())
}

// TestNetworkType_String 测试网络范围名称
func TestNetworkType_String(t *testing.T) {
	for _, n := range AllNetworkTypes() {
		parsed, ok := ParseNetworkType(n.String())
		require.True(t, ok, n.String())
		assert.Equal(t, n, parsed)
		assert.True(t, n.IsValid())
	}

	assert.Equal(t, "unknown", NetworkType(42).String())
	assert.False(t, NetworkType(42).IsValid())
}

// TestPreference_Kind 测试偏好和类型
func TestPreference_Kind(t *testing.T) {
	prefs := []Preference{BandwidthPreference(2), LatencyPreference(0.5)}

	assert.Equal(t, PreferenceBandwidth, prefs[0].Kind())
	assert.Equal(t, 2.0, prefs[0].Value())
	assert.Equal(t, PreferenceLatency, prefs[1].Kind())
	assert.Equal(t, "latency", prefs[1].Kind().String())
}

// TestLogicError 测试逻辑错误包装
func TestLogicError(t *testing.T) {
	err := LogicErrorf("duplicate address %d", 3)
	assert.True(t, IsLogicError(err))
	assert.Contains(t, err.Error(), "duplicate address 3")

	wrapped := fmt.Errorf("add: %w", err)
	assert.True(t, errors.Is(wrapped, ErrLogic))
	assert.False(t, IsLogicError(ErrClosed))
}

// TestHello_MergeAndExpiry 测试 Hello 合并与过期
func TestHello_MergeAndExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	id := PeerID{0x01}

	a := &Hello{Peer: id, Addresses: []HelloAddress{
		{Transport: "tcp", Raw: []byte{1}, Expiration: now.Add(time.Minute)},
	}}
	b := &Hello{Peer: id, Addresses: []HelloAddress{
		{Transport: "tcp", Raw: []byte{1}, Expiration: now.Add(time.Hour)},
		{Transport: "udp", Raw: []byte{2}, Expiration: now.Add(time.Second)},
	}}

	m := a.Merge(b)
	require.Len(t, m.Addresses, 2)
	assert.Equal(t, now.Add(time.Hour), m.Addresses[0].Expiration)
	assert.Equal(t, now.Add(time.Hour), m.Expiration())
	assert.Len(t, a.Addresses, 1, "merge does not modify receiver")
	assert.Equal(t, now.Add(time.Minute), a.Addresses[0].Expiration)

	assert.False(t, m.IsExpired(now))
	assert.True(t, m.IsExpired(now.Add(time.Hour)))
	assert.True(t, (&Hello{Peer: id}).IsExpired(now))
}
