package bandwidth

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("ats/bandwidth")

// Stats 节点吞吐量统计
type Stats struct {
	TotalIn  uint64
	TotalOut uint64
	RateIn   float64
	RateOut  float64
}

// PeerStats 节点及其统计
type PeerStats struct {
	Peer  types.PeerID
	Stats Stats
}

type peerMeters struct {
	in  *Meter
	out *Meter
}

// ============================================================================
//                              吞吐量采样器
// ============================================================================

// Sampler 按节点统计收发吞吐量
//
// 收、发两个方向各自计量，互不影响。
type Sampler struct {
	mu sync.Mutex

	cfg     config.SamplerConfig
	clock   clock.Clock
	metrics *metrics.Metrics

	peers map[types.PeerID]*peerMeters
}

// NewSampler 创建采样器
func NewSampler(cfg config.SamplerConfig, clk clock.Clock, m *metrics.Metrics) *Sampler {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.Nop()
	}
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = config.DefaultSampleAlpha
	}
	if cfg.Interval <= 0 {
		cfg.Interval = config.Duration(config.DefaultSampleInterval)
	}
	return &Sampler{
		cfg:     cfg,
		clock:   clk,
		metrics: m,
		peers:   make(map[types.PeerID]*peerMeters),
	}
}

// Interval 返回采样周期
func (s *Sampler) Interval() time.Duration {
	return time.Duration(s.cfg.Interval)
}

func (s *Sampler) meters(peer types.PeerID, now time.Time) *peerMeters {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.peers[peer]
	if !ok {
		pm = &peerMeters{in: newMeter(now), out: newMeter(now)}
		s.peers[peer] = pm
	}
	return pm
}

// RecordSent 记录发往 peer 的字节数
func (s *Sampler) RecordSent(peer types.PeerID, n uint64) {
	if n == 0 {
		return
	}
	now := s.clock.Now()
	s.meters(peer, now).out.Mark(n, now)
}

// RecordReceived 记录来自 peer 的字节数
func (s *Sampler) RecordReceived(peer types.PeerID, n uint64) {
	if n == 0 {
		return
	}
	now := s.clock.Now()
	s.meters(peer, now).in.Mark(n, now)
}

// Tick 更新全部节点的速率并返回统计
//
// 间隔不为正的计量器沿用上次速率，并计入时钟异常。
func (s *Sampler) Tick() []PeerStats {
	now := s.clock.Now()

	s.mu.Lock()
	ids := make([]types.PeerID, 0, len(s.peers))
	meters := make([]*peerMeters, 0, len(s.peers))
	for id, pm := range s.peers {
		ids = append(ids, id)
		meters = append(meters, pm)
	}
	s.mu.Unlock()

	anomalies := 0
	out := make([]PeerStats, 0, len(ids))
	for i, pm := range meters {
		if !pm.in.tick(now, s.cfg.Alpha) {
			anomalies++
		}
		if !pm.out.tick(now, s.cfg.Alpha) {
			anomalies++
		}
		out = append(out, PeerStats{Peer: ids[i], Stats: statsOf(pm)})
	}

	if anomalies > 0 {
		s.metrics.ClockAnomalies.Add(float64(anomalies))
		log.Warn("non-positive sampling interval, carrying rates forward", "meters", anomalies)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Peer.Compare(out[j].Peer) < 0 })
	return out
}

func statsOf(pm *peerMeters) Stats {
	in, out := pm.in.Snapshot(), pm.out.Snapshot()
	return Stats{TotalIn: in.Total, TotalOut: out.Total, RateIn: in.Rate, RateOut: out.Rate}
}

// Stats 返回节点的统计
func (s *Sampler) Stats(peer types.PeerID) (Stats, bool) {
	s.mu.Lock()
	pm, ok := s.peers[peer]
	s.mu.Unlock()
	if !ok {
		return Stats{}, false
	}
	return statsOf(pm), true
}

// Forget 删除节点的统计
func (s *Sampler) Forget(peer types.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peer)
}

// TrimIdle 清理 since 之后没有流量的节点
func (s *Sampler) TrimIdle(since time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, pm := range s.peers {
		if pm.in.LastActive().Before(since) && pm.out.LastActive().Before(since) {
			delete(s.peers, id)
			n++
		}
	}
	return n
}

// Len 返回跟踪的节点数
func (s *Sampler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
