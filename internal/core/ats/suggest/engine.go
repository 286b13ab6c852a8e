package suggest

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/preference"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/internal/util/serial"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("ats/suggest")

// ErrAlreadySubscribed 同一节点重复订阅
var ErrAlreadySubscribed = fmt.Errorf("suggest: peer already subscribed: %w", types.ErrLogic)

// ============================================================================
//                              类型
// ============================================================================

// Suggestion 推荐结果
//
// Bandwidth 为 0/0 表示断开：没有可用地址或所在范围没有余量。
type Suggestion struct {
	Peer      types.PeerID
	Record    *address.Record
	Address   address.Address
	Session   address.SessionID
	Bandwidth types.Bandwidth
}

// IsDisconnect 是否为断开信号
func (s Suggestion) IsDisconnect() bool {
	return s.Bandwidth.IsZero()
}

// Callback 推荐回调
type Callback func(s Suggestion)

// Listener 分配结果监听器，每次分配变化都会收到
type Listener func(peer types.PeerID, a interfaces.Assignment)

// state 订阅者最近一次收到的推荐
type state struct {
	cand interfaces.CandidateID
	bw   types.Bandwidth
}

// Deps 引擎依赖
type Deps struct {
	Table  *address.Table
	Solver interfaces.Solver

	// Preferences 偏好来源，可为 nil
	Preferences *preference.Aggregator

	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Engine 推荐引擎
//
// 地址、属性或偏好变化时重新求解，把结果写回地址表，
// 并在推荐发生实质变化时通知订阅者。
// 回调经由地址表的串行 FIFO 在锁外执行，可以回调引擎；
// 回调中移除地址时，移除排在已排队的回调之后。
type Engine struct {
	mu sync.Mutex

	cfg    config.SolverConfig
	quotas map[types.NetworkType]types.Bandwidth
	deps   Deps

	subs      map[types.PeerID]*Subscription
	applied   map[types.PeerID]interfaces.Assignment
	listeners []Listener

	dispatch *serial.Queue
	closed   bool
}

// New 创建推荐引擎并注册为地址表观察者
func New(cfg config.SolverConfig, quotas config.QuotaConfig, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}

	e := &Engine{
		cfg:     cfg,
		quotas:  make(map[types.NetworkType]types.Bandwidth),
		deps:    deps,
		subs:    make(map[types.PeerID]*Subscription),
		applied: make(map[types.PeerID]interfaces.Assignment),

		dispatch: deps.Table.Serial(),
	}
	for _, scope := range types.AllNetworkTypes() {
		q := quotas.For(scope)
		e.quotas[scope] = types.Bandwidth{In: q.In, Out: q.Out}
	}

	deps.Table.AddObserver(e)
	if deps.Preferences != nil {
		deps.Preferences.OnChange(e.preferenceChanged)
	}
	return e
}

// ============================================================================
//                              订阅
// ============================================================================

// RequestSuggestion 订阅节点的推荐
//
// 存在可用地址时至少回调一次，之后每次实质变化都会回调，直到取消。
// 同一节点重复订阅返回 ErrAlreadySubscribed。
func (e *Engine) RequestSuggestion(peer types.PeerID, fn Callback) (*Subscription, error) {
	if fn == nil {
		return nil, types.LogicErrorf("request suggestion for %s: nil callback", peer.ShortString())
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, types.ErrClosed
	}
	if _, ok := e.subs[peer]; ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, peer.ShortString())
	}
	sub := &Subscription{id: uuid.New(), peer: peer, fn: fn, engine: e}
	e.subs[peer] = sub
	e.deps.Metrics.Subscriptions.Set(float64(len(e.subs)))
	e.mu.Unlock()

	log.Debug("suggestion requested", "peer", peer.ShortString(), "sub", sub.id.String())
	e.Recompute()
	return sub, nil
}

// cancel 取消订阅并释放节点的分配
func (e *Engine) cancel(sub *Subscription) {
	e.mu.Lock()
	if sub.cancelled {
		e.mu.Unlock()
		return
	}
	sub.cancelled = true
	if e.subs[sub.peer] == sub {
		delete(e.subs, sub.peer)
	}
	e.deps.Metrics.Subscriptions.Set(float64(len(e.subs)))
	e.applyLocked(sub.peer, interfaces.Assignment{})
	closed := e.closed
	e.mu.Unlock()

	log.Debug("suggestion cancelled", "peer", sub.peer.ShortString(), "sub", sub.id.String())
	if !closed {
		e.Recompute()
	}
	e.dispatch.Drain()
}

// IsSubscribed 节点是否有订阅
func (e *Engine) IsSubscribed(peer types.PeerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.subs[peer]
	return ok
}

// AddListener 注册分配监听器
func (e *Engine) AddListener(fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Current 返回节点当前的推荐
func (e *Engine) Current(peer types.PeerID) (Suggestion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.applied[peer]
	if !ok {
		return Suggestion{Peer: peer}, false
	}
	return e.suggestionLocked(peer, a), true
}

// ============================================================================
//                              重新求解
// ============================================================================

// OnPerformanceUpdate 地址性能变化后重新求解
//
// 同一范围的配额由所有节点共享，因此对全部订阅重新求解。
func (e *Engine) OnPerformanceUpdate(_ *address.Record) {
	e.Recompute()
}

// Recompute 对全部订阅重新求解并通知变化
func (e *Engine) Recompute() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.recomputeLocked()
	e.mu.Unlock()

	e.dispatch.Drain()
}

func (e *Engine) recomputeLocked() {
	now := e.deps.Clock.Now()
	in := interfaces.SolverInput{
		Candidates:  make(map[types.PeerID][]interfaces.Candidate, len(e.subs)),
		Quotas:      e.quotas,
		Preferences: make(map[types.PeerID]interfaces.PeerPreference, len(e.subs)),
	}
	scopes := make(map[interfaces.CandidateID]types.NetworkType)
	for peer := range e.subs {
		cands := e.deps.Table.Candidates(peer, now)
		in.Candidates[peer] = cands
		for _, c := range cands {
			scopes[c.ID] = c.Scope
		}
		if e.deps.Preferences != nil {
			in.Preferences[peer] = interfaces.PeerPreference{
				Bandwidth: e.deps.Preferences.Weight(peer, types.PreferenceBandwidth),
				Latency:   e.deps.Preferences.Weight(peer, types.PreferenceLatency),
			}
		}
	}

	out := e.deps.Solver.Solve(in)
	e.deps.Metrics.Recomputes.Inc()
	e.clampLocked(out, scopes)

	for peer := range e.subs {
		a, ok := out[peer]
		if ok {
			if _, known := scopes[a.Candidate]; !known {
				log.Error("solver assigned unknown candidate", "peer", peer.ShortString(), "candidate", a.Candidate)
				a = interfaces.Assignment{}
			}
		}
		if a.Bandwidth.IsZero() {
			a = interfaces.Assignment{}
		}
		e.applyLocked(peer, a)
	}
}

// clampLocked 把每个范围的分配总和限制在配额以内
//
// 正确的求解器不会触发；触发时记录错误。
func (e *Engine) clampLocked(out interfaces.SolverOutput, scopes map[interfaces.CandidateID]types.NetworkType) {
	sums := make(map[types.NetworkType]types.Bandwidth)
	for _, a := range out {
		scope, ok := scopes[a.Candidate]
		if !ok {
			continue
		}
		s := sums[scope]
		s.In += a.Bandwidth.In
		s.Out += a.Bandwidth.Out
		sums[scope] = s
	}

	for scope, sum := range sums {
		quota := e.quotas[scope]
		if sum.In <= quota.In && sum.Out <= quota.Out {
			continue
		}
		log.Error("solver exceeded scope quota, clamping",
			"scope", scope.String(),
			"in", sum.In, "quota_in", quota.In,
			"out", sum.Out, "quota_out", quota.Out)
		e.deps.Metrics.QuotaClamps.WithLabelValues(scope.String()).Inc()

		for peer, a := range out {
			if scopes[a.Candidate] != scope {
				continue
			}
			a.Bandwidth.In = scale(a.Bandwidth.In, quota.In, sum.In)
			a.Bandwidth.Out = scale(a.Bandwidth.Out, quota.Out, sum.Out)
			out[peer] = a
		}
	}
}

// scale 按 quota/sum 向下缩放 v；sum 不超过 quota 时不变
func scale(v, quota, sum uint64) uint64 {
	if sum <= quota {
		return v
	}
	return uint64(math.Floor(float64(v) * float64(quota) / float64(sum)))
}

// applyLocked 写入分配并在实质变化时排队通知
func (e *Engine) applyLocked(peer types.PeerID, a interfaces.Assignment) {
	prev, had := e.applied[peer]
	if had && prev == a {
		return
	}
	if !had && a.Bandwidth.IsZero() {
		return
	}
	if a.Bandwidth.IsZero() {
		delete(e.applied, peer)
	} else {
		e.applied[peer] = a
	}
	e.deps.Table.SetAllocation(peer, a.Candidate, a.Bandwidth)

	for _, fn := range e.listeners {
		fn := fn
		e.dispatch.Enqueue(func() { fn(peer, a) })
	}

	sub, ok := e.subs[peer]
	if !ok {
		return
	}
	next := state{cand: a.Candidate, bw: a.Bandwidth}
	if !e.material(sub.last, next) {
		return
	}
	sub.last = next
	e.notifyLocked(sub, e.suggestionLocked(peer, a))
}

// material 推荐是否发生实质变化
//
// 所有 0/0 状态彼此相等；零与非零之间的切换、地址变化、
// 任一方向带宽变化超过阈值都是实质变化。
func (e *Engine) material(prev, next state) bool {
	prevZero, nextZero := prev.bw.IsZero(), next.bw.IsZero()
	if prevZero && nextZero {
		return false
	}
	if prevZero != nextZero || prev.cand != next.cand {
		return true
	}
	return absDiff(prev.bw.In, next.bw.In) > e.cfg.NotifyThreshold ||
		absDiff(prev.bw.Out, next.bw.Out) > e.cfg.NotifyThreshold
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func (e *Engine) suggestionLocked(peer types.PeerID, a interfaces.Assignment) Suggestion {
	s := Suggestion{Peer: peer, Bandwidth: a.Bandwidth}
	if a.Bandwidth.IsZero() {
		return s
	}
	if rec, ok := e.deps.Table.Get(a.Candidate); ok {
		s.Record = rec
		s.Address = rec.Address()
		s.Session = rec.Session()
	}
	return s
}

// notifyLocked 排队一次回调；取消后尚未执行的回调被丢弃
func (e *Engine) notifyLocked(sub *Subscription, s Suggestion) {
	kind := "suggest"
	if s.IsDisconnect() {
		kind = "disconnect"
	}
	e.dispatch.Enqueue(func() {
		e.mu.Lock()
		cancelled := sub.cancelled
		e.mu.Unlock()
		if cancelled {
			return
		}
		e.deps.Metrics.Suggestions.WithLabelValues(kind).Inc()
		sub.fn(s)
	})
}

// ============================================================================
//                              地址表观察者
// ============================================================================

// AddressAdded 实现 address.Observer
func (e *Engine) AddressAdded(rec *address.Record) {
	if e.IsSubscribed(rec.Peer()) {
		e.Recompute()
	}
}

// AddressUpdated 实现 address.Observer
func (e *Engine) AddressUpdated(rec *address.Record, _ address.Properties) {
	if e.IsSubscribed(rec.Peer()) {
		e.Recompute()
	}
}

// AddressDestroying 实现 address.Observer
//
// 活跃地址被移除前，订阅者先收到一次 0/0。
func (e *Engine) AddressDestroying(rec *address.Record) {
	e.mu.Lock()
	peer := rec.Peer()
	a, ok := e.applied[peer]
	if !ok || a.Candidate != rec.ID() {
		e.mu.Unlock()
		return
	}
	e.applyLocked(peer, interfaces.Assignment{})
	e.mu.Unlock()

	e.dispatch.Drain()
}

// AddressDestroyed 实现 address.Observer
func (e *Engine) AddressDestroyed(rec *address.Record) {
	if e.IsSubscribed(rec.Peer()) {
		e.Recompute()
	}
}

func (e *Engine) preferenceChanged(peer types.PeerID) {
	if e.IsSubscribed(peer) {
		e.Recompute()
	}
}

// ============================================================================
//                              屏蔽
// ============================================================================

// BlockAddress 在 d 时长内不再推荐该地址
func (e *Engine) BlockAddress(rec *address.Record, d time.Duration) {
	e.deps.Table.Block(rec, e.deps.Clock.Now().Add(d))
	log.Debug("address blocked", "address", rec.Address().String(), "for", d)
	e.Recompute()
}

// ResetBackoff 解除节点全部地址的屏蔽
func (e *Engine) ResetBackoff(peer types.PeerID) {
	if e.deps.Table.ResetBlocks(peer) > 0 {
		e.Recompute()
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 取消全部订阅，之后不再回调
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	subs := make([]*Subscription, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return nil
}
