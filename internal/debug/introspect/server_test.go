package introspect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/bandwidth"
	"github.com/dep2p/go-ats/internal/core/ats/preference"
	"github.com/dep2p/go-ats/internal/core/ats/solver"
	"github.com/dep2p/go-ats/internal/core/ats/suggest"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/pkg/types"
)

var peerA = types.PeerID{0x0A}

// newPopulated 创建带一条活跃地址的自省服务
func newPopulated(t *testing.T) *Server {
	t.Helper()
	clk := clock.NewMock()
	m := metrics.Nop()

	table := address.NewTable(m)
	prefs := preference.New(config.DefaultPreferenceConfig(), clk)
	engine := suggest.New(config.DefaultSolverConfig(), config.DefaultQuotaConfig(), suggest.Deps{
		Table:       table,
		Solver:      solver.NewProportional(config.DefaultSolverConfig()),
		Preferences: prefs,
		Clock:       clk,
		Metrics:     m,
	})
	t.Cleanup(func() { _ = engine.Close() })
	sampler := bandwidth.NewSampler(config.DefaultSamplerConfig(), clk, m)

	_, err := table.Add(address.Address{Peer: peerA, Transport: "tcp", Raw: []byte{1}}, address.NoSession,
		address.Properties{Delay: time.Millisecond, Distance: 1, Scope: types.NetworkWAN})
	require.NoError(t, err)
	_, err = engine.RequestSuggestion(peerA, func(suggest.Suggestion) {})
	require.NoError(t, err)
	prefs.Change(peerA, types.BandwidthPreference(2))
	sampler.RecordSent(peerA, 1000)

	server := New(Config{
		Addr:        "127.0.0.1:0",
		Clock:       clk,
		Table:       table,
		Engine:      engine,
		Preferences: prefs,
		Sampler:     sampler,
	})
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func getJSON(t *testing.T, server *Server, path string, v interface{}) int {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestNew(t *testing.T) {
	server := New(Config{})
	assert.NotNil(t, server)
	assert.Equal(t, DefaultAddr, server.config.Addr)
	assert.NotNil(t, server.config.Clock)

	server = New(Config{Addr: "127.0.0.1:8080"})
	assert.Equal(t, "127.0.0.1:8080", server.config.Addr)
}

func TestServer_StartStop(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})

	ctx := context.Background()
	require.NoError(t, server.Start(ctx))
	assert.True(t, server.running)

	addr := server.Addr()
	assert.NotEmpty(t, addr)
	assert.NotEqual(t, "127.0.0.1:0", addr)

	// 重复启动应该无效
	require.NoError(t, server.Start(ctx))

	require.NoError(t, server.Stop())
	assert.False(t, server.running)

	// 重复停止应该无效
	require.NoError(t, server.Stop())
}

func TestServer_HealthEndpoint(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	var health HealthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, server, "/health", &health))
	assert.Equal(t, "degraded", health.Status) // 没有地址表和引擎
	assert.NotEmpty(t, health.Uptime)

	populated := newPopulated(t)
	assert.Equal(t, http.StatusOK, getJSON(t, populated, "/health", &health))
	assert.Equal(t, "ok", health.Status)
}

func TestServer_IntrospectEndpoint(t *testing.T) {
	server := newPopulated(t)

	var resp IntrospectResponse
	require.Equal(t, http.StatusOK, getJSON(t, server, "/debug/introspect", &resp))

	assert.NotEmpty(t, resp.Uptime)
	assert.NotNil(t, resp.Runtime)
	assert.Len(t, resp.Addresses, 1)
	assert.Len(t, resp.Suggestions, 1)
	assert.Len(t, resp.Preferences, 1)
	assert.Len(t, resp.Traffic, 1)
	assert.Nil(t, resp.Mesh)

	t.Log("✅ 完整诊断包含全部数据源")
}

func TestServer_AddressesEndpoint(t *testing.T) {
	server := newPopulated(t)

	var addrs []AddressInfo
	require.Equal(t, http.StatusOK, getJSON(t, server, "/debug/introspect/addresses", &addrs))
	require.Len(t, addrs, 1)

	a := addrs[0]
	assert.Equal(t, peerA.String(), a.Peer)
	assert.Equal(t, "wan", a.Scope)
	assert.True(t, a.Active)
	assert.NotZero(t, a.BandwidthIn)
	assert.NotZero(t, a.BandwidthOut)
	assert.Equal(t, 1.0, a.DelayQuality, "single address normalizes to 1")
	assert.False(t, a.InUse)
}

func TestServer_SuggestionsEndpoint(t *testing.T) {
	server := newPopulated(t)

	var suggestions []SuggestionInfo
	require.Equal(t, http.StatusOK, getJSON(t, server, "/debug/introspect/suggestions", &suggestions))
	require.Len(t, suggestions, 1)
	assert.False(t, suggestions[0].Disconnect)
	assert.NotEmpty(t, suggestions[0].Address)
}

func TestServer_PreferencesEndpoint(t *testing.T) {
	server := newPopulated(t)

	var prefs []PreferenceInfo
	require.Equal(t, http.StatusOK, getJSON(t, server, "/debug/introspect/preferences", &prefs))
	require.Len(t, prefs, 1)
	assert.Equal(t, peerA.String(), prefs[0].Peer)
	assert.InDelta(t, 2.0, prefs[0].Value, 1e-9)
}

func TestServer_TrafficEndpoint(t *testing.T) {
	server := newPopulated(t)

	var traffic []TrafficInfo
	require.Equal(t, http.StatusOK, getJSON(t, server, "/debug/introspect/traffic", &traffic))
	require.Len(t, traffic, 1)
	assert.Equal(t, uint64(1000), traffic[0].TotalOut)
	assert.Zero(t, traffic[0].TotalIn)
}

func TestServer_MeshEndpoint_Disabled(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, server, "/debug/introspect/mesh", nil))
}

func TestServer_EmptySources(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	// 没有数据源时返回空数组而不是错误
	var addrs []AddressInfo
	require.Equal(t, http.StatusOK, getJSON(t, server, "/debug/introspect/addresses", &addrs))
	assert.NotNil(t, addrs)
	assert.Empty(t, addrs)
}

func TestServer_RuntimeEndpoint(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	var info RuntimeInfo
	require.Equal(t, http.StatusOK, getJSON(t, server, "/debug/introspect/runtime", &info))

	assert.NotEmpty(t, info.GoVersion)
	assert.Greater(t, info.NumGoroutine, 0)
	assert.Greater(t, info.NumCPU, 0)
	assert.Greater(t, info.MemAlloc, uint64(0))
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	// 使用 POST 方法（应该被拒绝）
	resp, err := http.Post("http://"+server.Addr()+"/health", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_CustomHandlers(t *testing.T) {
	customCalled := false
	server := New(Config{
		Addr: "127.0.0.1:0",
		CustomHandlers: map[string]http.HandlerFunc{
			"/custom": func(w http.ResponseWriter, r *http.Request) {
				customCalled = true
				w.Write([]byte("custom response"))
			},
		},
	})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	resp, err := http.Get("http://" + server.Addr() + "/custom")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, customCalled)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "custom response", string(body))
}

func TestServer_PprofEndpoint(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	resp, err := http.Get("http://" + server.Addr() + "/debug/pprof/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Addr(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:8888"})

	// 未启动时返回配置地址
	assert.Equal(t, "127.0.0.1:8888", server.Addr())

	server = New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	// 启动后返回实际地址
	addr := server.Addr()
	assert.NotEqual(t, "127.0.0.1:0", addr)
	assert.Contains(t, addr, "127.0.0.1:")
}

func TestNewFromParams_Disabled(t *testing.T) {
	out := NewFromParams(IntrospectParams{Config: config.DefaultDiagnosticsConfig()})
	assert.Nil(t, out.Server)

	out = NewFromParams(IntrospectParams{Config: config.DiagnosticsConfig{
		EnableIntrospect: true,
		IntrospectAddr:   "127.0.0.1:0",
	}})
	require.NotNil(t, out.Server)
	assert.Equal(t, "127.0.0.1:0", out.Server.Addr())
}
