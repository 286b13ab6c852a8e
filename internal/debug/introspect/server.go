package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/bandwidth"
	"github.com/dep2p/go-ats/internal/core/ats/preference"
	"github.com/dep2p/go-ats/internal/core/ats/suggest"
	"github.com/dep2p/go-ats/internal/core/mesh/peers"
	"github.com/dep2p/go-ats/internal/util/logger"
)

var log = logger.Logger("debug/introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = config.DefaultIntrospectAddr

// ============================================================================
//                              配置
// ============================================================================

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Clock 时钟，默认真实时钟
	Clock clock.Clock

	// 数据源，均为可选
	Table       *address.Table
	Engine      *suggest.Engine
	Preferences *preference.Aggregator
	Sampler     *bandwidth.Sampler
	Directory   *peers.Directory

	// CustomHandlers 自定义处理器
	CustomHandlers map[string]http.HandlerFunc
}

// ============================================================================
//                              Server
// ============================================================================

// Server 本地自省 HTTP 服务
type Server struct {
	config Config

	server   *http.Server
	listener net.Listener

	running   bool
	startTime time.Time

	mu sync.Mutex
}

// New 创建自省服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Server{
		config: cfg,
	}
}

// Handler 返回路由，供测试或嵌入其他 HTTP 服务
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/introspect", s.handleIntrospect)
	mux.HandleFunc("/debug/introspect/addresses", s.handleAddresses)
	mux.HandleFunc("/debug/introspect/suggestions", s.handleSuggestions)
	mux.HandleFunc("/debug/introspect/preferences", s.handlePreferences)
	mux.HandleFunc("/debug/introspect/traffic", s.handleTraffic)
	mux.HandleFunc("/debug/introspect/mesh", s.handleMesh)
	mux.HandleFunc("/debug/introspect/runtime", s.handleRuntime)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", s.handleHealth)

	for path, handler := range s.config.CustomHandlers {
		mux.HandleFunc(path, handler)
	}
	return mux
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("自省服务异常退出", "error", err)
		}
	}()

	s.running = true
	s.startTime = s.config.Clock.Now()
	log.Info("自省服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error("关闭自省服务失败", "error", err)
		return err
	}

	s.running = false
	log.Info("自省服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

func (s *Server) uptime() string {
	s.mu.Lock()
	start := s.startTime
	s.mu.Unlock()
	if start.IsZero() {
		return "0s"
	}
	return s.config.Clock.Since(start).String()
}

// ============================================================================
//                              响应结构
// ============================================================================

// IntrospectResponse 完整诊断响应
type IntrospectResponse struct {
	Timestamp   time.Time        `json:"timestamp"`
	Uptime      string           `json:"uptime"`
	Addresses   []AddressInfo    `json:"addresses"`
	Suggestions []SuggestionInfo `json:"suggestions"`
	Preferences []PreferenceInfo `json:"preferences"`
	Traffic     []TrafficInfo    `json:"traffic"`
	Mesh        *MeshInfo        `json:"mesh,omitempty"`
	Runtime     *RuntimeInfo     `json:"runtime"`
}

// AddressInfo 地址记录
type AddressInfo struct {
	ID              uint64  `json:"id"`
	Peer            string  `json:"peer"`
	Address         string  `json:"address"`
	Session         uint64  `json:"session"`
	Scope           string  `json:"scope"`
	Delay           string  `json:"delay"`
	Distance        uint32  `json:"distance"`
	DelayQuality    float64 `json:"delay_quality"`
	DistanceQuality float64 `json:"distance_quality"`
	UtilizationIn   uint64  `json:"utilization_in"`
	UtilizationOut  uint64  `json:"utilization_out"`
	BandwidthIn     uint64  `json:"bandwidth_in"`
	BandwidthOut    uint64  `json:"bandwidth_out"`
	Active          bool    `json:"active"`
	InUse           bool    `json:"in_use"`
}

// SuggestionInfo 当前推荐
type SuggestionInfo struct {
	Peer         string `json:"peer"`
	Address      string `json:"address,omitempty"`
	BandwidthIn  uint64 `json:"bandwidth_in"`
	BandwidthOut uint64 `json:"bandwidth_out"`
	Disconnect   bool   `json:"disconnect"`
}

// PreferenceInfo 偏好记录
type PreferenceInfo struct {
	Peer        string    `json:"peer"`
	Kind        string    `json:"kind"`
	Value       float64   `json:"value"`
	LastTouched time.Time `json:"last_touched"`
}

// TrafficInfo 吞吐量统计
type TrafficInfo struct {
	Peer     string `json:"peer"`
	TotalIn  uint64 `json:"total_in"`
	TotalOut uint64 `json:"total_out"`
	RateIn   string `json:"rate_in"`
	RateOut  string `json:"rate_out"`
}

// MeshInfo 网状网络目录
type MeshInfo struct {
	Local string     `json:"local"`
	Peers []MeshPeer `json:"peers"`
}

// MeshPeer 目录中的节点
type MeshPeer struct {
	ID          string    `json:"id"`
	Neighbor    bool      `json:"neighbor"`
	Paths       int       `json:"paths"`
	Connections int       `json:"connections"`
	Queued      int       `json:"queued"`
	Tunnel      string    `json:"tunnel,omitempty"`
	LastContact time.Time `json:"last_contact"`
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	MemSys       uint64 `json:"mem_sys"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime,omitempty"`
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

// get 只允许 GET 请求
func get(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	get(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, IntrospectResponse{
			Timestamp:   s.config.Clock.Now(),
			Uptime:      s.uptime(),
			Addresses:   s.collectAddresses(),
			Suggestions: s.collectSuggestions(),
			Preferences: s.collectPreferences(),
			Traffic:     s.collectTraffic(),
			Mesh:        s.collectMesh(),
			Runtime:     collectRuntime(),
		})
	})(w, r)
}

func (s *Server) handleAddresses(w http.ResponseWriter, r *http.Request) {
	get(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, s.collectAddresses())
	})(w, r)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	get(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, s.collectSuggestions())
	})(w, r)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	get(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, s.collectPreferences())
	})(w, r)
}

func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	get(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, s.collectTraffic())
	})(w, r)
}

func (s *Server) handleMesh(w http.ResponseWriter, r *http.Request) {
	get(func(w http.ResponseWriter, _ *http.Request) {
		info := s.collectMesh()
		if info == nil {
			http.Error(w, "Mesh not enabled", http.StatusServiceUnavailable)
			return
		}
		s.writeJSON(w, info)
	})(w, r)
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	get(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, collectRuntime())
	})(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	get(func(w http.ResponseWriter, _ *http.Request) {
		health := HealthResponse{
			Status:    "ok",
			Timestamp: s.config.Clock.Now(),
			Uptime:    s.uptime(),
		}
		// 缺少地址表或推荐引擎时无法做出选择
		if s.config.Table == nil || s.config.Engine == nil {
			health.Status = "degraded"
		}
		s.writeJSON(w, health)
	})(w, r)
}

// ============================================================================
//                              数据收集
// ============================================================================

func (s *Server) collectAddresses() []AddressInfo {
	out := make([]AddressInfo, 0)
	if s.config.Table == nil {
		return out
	}
	s.config.Table.List(address.Filter{}, func(info address.Info, done bool) {
		if done {
			return
		}
		p := info.Properties
		out = append(out, AddressInfo{
			ID:              uint64(info.ID),
			Peer:            info.Address.Peer.String(),
			Address:         info.Address.String(),
			Session:         uint64(info.Session),
			Scope:           p.Scope.String(),
			Delay:           p.Delay.String(),
			Distance:        p.Distance,
			DelayQuality:    info.Quality.Delay,
			DistanceQuality: info.Quality.Distance,
			UtilizationIn:   p.UtilizationIn,
			UtilizationOut:  p.UtilizationOut,
			BandwidthIn:     info.Bandwidth.In,
			BandwidthOut:    info.Bandwidth.Out,
			Active:          info.Active,
			InUse:           info.InUse,
		})
	})
	return out
}

func (s *Server) collectSuggestions() []SuggestionInfo {
	out := make([]SuggestionInfo, 0)
	if s.config.Table == nil || s.config.Engine == nil {
		return out
	}
	for _, peer := range s.config.Table.Peers() {
		sg, ok := s.config.Engine.Current(peer)
		if !ok {
			continue
		}
		info := SuggestionInfo{
			Peer:         peer.String(),
			BandwidthIn:  sg.Bandwidth.In,
			BandwidthOut: sg.Bandwidth.Out,
			Disconnect:   sg.IsDisconnect(),
		}
		if !info.Disconnect {
			info.Address = sg.Address.String()
		}
		out = append(out, info)
	}
	return out
}

func (s *Server) collectPreferences() []PreferenceInfo {
	out := make([]PreferenceInfo, 0)
	if s.config.Preferences == nil {
		return out
	}
	for _, rec := range s.config.Preferences.Records() {
		out = append(out, PreferenceInfo{
			Peer:        rec.Peer.String(),
			Kind:        rec.Kind.String(),
			Value:       rec.Value,
			LastTouched: rec.LastTouched,
		})
	}
	return out
}

func (s *Server) collectTraffic() []TrafficInfo {
	out := make([]TrafficInfo, 0)
	if s.config.Sampler == nil || s.config.Table == nil {
		return out
	}
	for _, peer := range s.config.Table.Peers() {
		st, ok := s.config.Sampler.Stats(peer)
		if !ok {
			continue
		}
		out = append(out, TrafficInfo{
			Peer:     peer.String(),
			TotalIn:  st.TotalIn,
			TotalOut: st.TotalOut,
			RateIn:   bandwidth.FormatRate(st.RateIn),
			RateOut:  bandwidth.FormatRate(st.RateOut),
		})
	}
	return out
}

func (s *Server) collectMesh() *MeshInfo {
	dir := s.config.Directory
	if dir == nil {
		return nil
	}
	info := &MeshInfo{
		Local: dir.Local().String(),
		Peers: make([]MeshPeer, 0, dir.Count()),
	}
	dir.Iterate(func(p *peers.Peer) bool {
		mp := MeshPeer{
			ID:          p.ID().String(),
			Neighbor:    p.IsNeighbor(),
			Paths:       len(p.Paths()),
			Connections: len(p.Connections()),
			LastContact: p.LastContact(),
		}
		if q := p.Queue(); q != nil {
			mp.Queued = q.Len()
		}
		if st, ok := p.TunnelState(); ok {
			mp.Tunnel = st.String()
		}
		info.Peers = append(info.Peers, mp)
		return true
	})
	sort.Slice(info.Peers, func(i, j int) bool { return info.Peers[i].ID < info.Peers[j].ID })
	return info
}

func collectRuntime() *RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     m.Alloc,
		MemSys:       m.Sys,
		NumGC:        m.NumGC,
	}
}

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		log.Error("编码 JSON 失败", "error", err)
	}
}
