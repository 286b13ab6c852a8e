package preference

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("ats/preference")

// ErrInvalidWindow 反馈窗口必须为正
var ErrInvalidWindow = errors.New("preference: feedback window must be positive")

// 反馈缩放的上下界
const (
	minFeedbackScale = 0.5
	maxFeedbackScale = 2.0
)

// Record 偏好记录快照
type Record struct {
	Peer        types.PeerID
	Kind        types.PreferenceKind
	Value       float64
	LastTouched time.Time
}

type key struct {
	peer types.PeerID
	kind types.PreferenceKind
}

type entry struct {
	value   float64
	touched time.Time
}

// ChangeFunc 偏好变化回调
type ChangeFunc func(peer types.PeerID)

// Aggregator 偏好聚合器
//
// 偏好值随时间向基线衰减；有效权重在读取时按 last_touched 计算。
type Aggregator struct {
	mu sync.Mutex

	cfg   config.PreferenceConfig
	clock clock.Clock

	entries   map[key]*entry
	listeners []ChangeFunc
}

// New 创建偏好聚合器
func New(cfg config.PreferenceConfig, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.AgingInterval <= 0 {
		cfg.AgingInterval = config.Duration(config.DefaultAgingInterval)
	}
	if cfg.AgingFactor <= 0 || cfg.AgingFactor >= 1 {
		cfg.AgingFactor = config.DefaultAgingFactor
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = config.DefaultPreferenceEpsilon
	}
	return &Aggregator{
		cfg:     cfg,
		clock:   clk,
		entries: make(map[key]*entry),
	}
}

// OnChange 注册偏好变化回调，回调在锁外执行
func (a *Aggregator) OnChange(fn ChangeFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *Aggregator) notify(peer types.PeerID) {
	a.mu.Lock()
	listeners := make([]ChangeFunc, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(peer)
	}
}

// ============================================================================
//                              写入
// ============================================================================

// Change 覆盖偏好值并重置老化
func (a *Aggregator) Change(peer types.PeerID, prefs ...types.Preference) {
	if len(prefs) == 0 {
		return
	}
	now := a.clock.Now()

	a.mu.Lock()
	for _, p := range prefs {
		v := p.Value()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			log.Warn("ignoring non-finite preference", "peer", peer.ShortString(), "kind", p.Kind().String())
			continue
		}
		a.entries[key{peer, p.Kind()}] = &entry{value: v, touched: now}
	}
	a.mu.Unlock()

	log.Debug("preference changed", "peer", peer.ShortString(), "count", len(prefs))
	a.notify(peer)
}

// Feedback 报告偏好在过去 window 内的满足程度
//
// 每个值是满足度比例：大于 1 表示需要更多，小于 1 表示已经过剩。
// 当前有效值按该比例缩放（限制在 [0.5, 2]），并重置老化。
func (a *Aggregator) Feedback(peer types.PeerID, window time.Duration, prefs ...types.Preference) error {
	if window <= 0 {
		return ErrInvalidWindow
	}
	if len(prefs) == 0 {
		return nil
	}
	now := a.clock.Now()

	a.mu.Lock()
	for _, p := range prefs {
		scale := p.Value()
		if math.IsNaN(scale) || math.IsInf(scale, 0) {
			continue
		}
		scale = math.Max(minFeedbackScale, math.Min(maxFeedbackScale, scale))

		k := key{peer, p.Kind()}
		cur := a.cfg.Baseline
		if e, ok := a.entries[k]; ok {
			cur = a.decayed(e, now)
		}
		a.entries[k] = &entry{value: a.cfg.Baseline + (cur-a.cfg.Baseline)*scale, touched: now}
	}
	a.mu.Unlock()

	log.Debug("preference feedback", "peer", peer.ShortString(), "window", window)
	a.notify(peer)
	return nil
}

// Forget 删除节点的全部偏好
func (a *Aggregator) Forget(peer types.PeerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.entries {
		if k.peer == peer {
			delete(a.entries, k)
		}
	}
}

// ============================================================================
//                              读取
// ============================================================================

// decayed 计算 now 时刻的有效值，调用方持有锁
//
// baseline + (v-baseline) * factor^(elapsed/interval)，
// 与基线差值不超过 Epsilon 时取基线。
func (a *Aggregator) decayed(e *entry, now time.Time) float64 {
	base := a.cfg.Baseline
	elapsed := now.Sub(e.touched)
	if elapsed <= 0 {
		return e.value
	}
	periods := float64(elapsed) / float64(a.cfg.AgingInterval)
	v := base + (e.value-base)*math.Pow(a.cfg.AgingFactor, periods)
	if math.Abs(v-base) <= a.cfg.Epsilon {
		return base
	}
	return v
}

// Weight 返回有效权重，没有记录时返回基线
func (a *Aggregator) Weight(peer types.PeerID, kind types.PreferenceKind) float64 {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[key{peer, kind}]
	if !ok {
		return a.cfg.Baseline
	}
	return a.decayed(e, now)
}

// Weights 返回某类偏好偏离基线的节点及其有效权重
func (a *Aggregator) Weights(kind types.PreferenceKind) map[types.PeerID]float64 {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[types.PeerID]float64)
	for k, e := range a.entries {
		if k.kind != kind {
			continue
		}
		if v := a.decayed(e, now); v != a.cfg.Baseline {
			out[k.peer] = v
		}
	}
	return out
}

// Records 返回偏好记录快照（值为有效值）
func (a *Aggregator) Records() []Record {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, 0, len(a.entries))
	for k, e := range a.entries {
		out = append(out, Record{Peer: k.peer, Kind: k.kind, Value: a.decayed(e, now), LastTouched: e.touched})
	}
	return out
}

// ============================================================================
//                              老化
// ============================================================================

// Age 把衰减折算进存储值，删除回到基线的记录
//
// 返回是否还有偏离基线的记录或有记录被删除，调用方据此决定是否重新分配。
func (a *Aggregator) Age() bool {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := false
	for k, e := range a.entries {
		v := a.decayed(e, now)
		if v == a.cfg.Baseline {
			delete(a.entries, k)
			changed = true
			continue
		}
		if v != e.value {
			changed = true
		}
		// 时钟未前进时保持原时间
		if now.After(e.touched) {
			e.value, e.touched = v, now
		}
	}
	return changed
}

// Len 返回记录数
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
