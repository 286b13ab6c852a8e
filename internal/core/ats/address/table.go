package address

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/internal/util/serial"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("ats/address")

var (
	// ErrDuplicate 重复添加同一地址
	ErrDuplicate = fmt.Errorf("address: duplicate address: %w", types.ErrLogic)

	// ErrUnknownRecord 记录不在地址表中
	ErrUnknownRecord = fmt.Errorf("address: unknown record: %w", types.ErrLogic)
)

// Observer 地址表变化的观察者
//
// 回调在地址表锁外执行，可以回调地址表。
type Observer interface {
	// AddressAdded 新地址加入
	AddressAdded(rec *Record)

	// AddressUpdated 属性或会话变化；prev 为变化前的属性
	AddressUpdated(rec *Record, prev Properties)

	// AddressDestroying 地址即将移除，记录仍在表中
	AddressDestroying(rec *Record)

	// AddressDestroyed 地址已移除
	AddressDestroyed(rec *Record)
}

// Filter 地址枚举过滤条件
type Filter struct {
	// Peer 非空时只枚举该节点
	Peer types.PeerID

	// ActiveOnly 只枚举活跃地址
	ActiveOnly bool
}

// Table 地址表
//
// 保存每个节点的已知地址及其性能属性和当前分配。
// 地址表只保存分配值，不校验配额。
type Table struct {
	mu sync.Mutex

	nextID interfaces.CandidateID
	byKey  map[string]*Record
	byID   map[interfaces.CandidateID]*Record
	byPeer map[types.PeerID][]*Record

	window    int
	observers []Observer
	metrics   *metrics.Metrics

	// serial 与推荐引擎共用，保证移除排在已排队的通知之后
	serial *serial.Queue
}

// Option 地址表选项
type Option func(*Table)

// WithAveragingWindow 设置时延与跳数的平均窗口
func WithAveragingWindow(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.window = n
		}
	}
}

// NewTable 创建地址表
func NewTable(m *metrics.Metrics, opts ...Option) *Table {
	if m == nil {
		m = metrics.Nop()
	}
	t := &Table{
		byKey:   make(map[string]*Record),
		byID:    make(map[interfaces.CandidateID]*Record),
		byPeer:  make(map[types.PeerID][]*Record),
		window:  config.DefaultAveragingWindow,
		metrics: m,
		serial:  new(serial.Queue),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Serial 返回地址表的串行回调队列
func (t *Table) Serial() *serial.Queue {
	return t.serial
}

// sampleLocked 记录一次时延与跳数上报
func (t *Table) sampleLocked(rec *Record) {
	rec.delayAvg.add(float64(rec.props.Delay), t.window)
	rec.distanceAvg.add(float64(rec.props.Distance), t.window)
	t.normalizeLocked()
}

// AddObserver 注册观察者
func (t *Table) AddObserver(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

func (t *Table) observersLocked() []Observer {
	out := make([]Observer, len(t.observers))
	copy(out, t.observers)
	return out
}

// ============================================================================
//                              生命周期
// ============================================================================

// Add 添加地址
//
// 同一地址重复添加返回 ErrDuplicate。
func (t *Table) Add(addr Address, session SessionID, props Properties) (*Record, error) {
	if addr.Peer.IsEmpty() {
		return nil, types.ErrEmptyPeerID
	}
	raw := make([]byte, len(addr.Raw))
	copy(raw, addr.Raw)
	addr.Raw = raw

	t.mu.Lock()
	key := addr.key()
	if _, ok := t.byKey[key]; ok {
		t.mu.Unlock()
		log.Error("duplicate address add", "address", addr.String())
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, addr)
	}

	t.nextID++
	rec := &Record{
		table:   t,
		id:      t.nextID,
		addr:    addr,
		session: session,
		props:   props,
	}
	t.byKey[key] = rec
	t.byID[rec.id] = rec
	t.byPeer[addr.Peer] = append(t.byPeer[addr.Peer], rec)
	t.sampleLocked(rec)
	t.metrics.Addresses.Set(float64(len(t.byID)))
	obs := t.observersLocked()
	t.mu.Unlock()

	log.Debug("address added", "address", addr.String(), "scope", props.Scope.String())
	for _, o := range obs {
		o.AddressAdded(rec)
	}
	return rec, nil
}

// Update 原地更新性能属性
//
// 同一原始地址的网络范围发生变化时记录警告，但更新照常生效。
func (t *Table) Update(rec *Record, props Properties) error {
	t.mu.Lock()
	if rec.removed || t.byID[rec.id] != rec {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecord, rec)
	}
	prev := rec.props
	rec.props = props
	t.sampleLocked(rec)
	obs := t.observersLocked()
	t.mu.Unlock()

	if prev.Scope != props.Scope {
		t.metrics.ScopeChanges.Inc()
		log.Warn("address scope changed",
			"address", rec.addr.String(),
			"from", prev.Scope.String(),
			"to", props.Scope.String())
	}
	for _, o := range obs {
		o.AddressUpdated(rec, prev)
	}
	return nil
}

// SetSession 把地址绑定到新的会话
func (t *Table) SetSession(rec *Record, session SessionID) error {
	t.mu.Lock()
	if rec.removed || t.byID[rec.id] != rec {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecord, rec)
	}
	if rec.session == session {
		t.mu.Unlock()
		return nil
	}
	rec.session = session
	props := rec.props
	obs := t.observersLocked()
	t.mu.Unlock()

	for _, o := range obs {
		o.AddressUpdated(rec, props)
	}
	return nil
}

// SetInUse 传输层报告地址开始或停止使用
//
// 状态变化时通知观察者。对未知记录报告停止使用返回 ErrUnknownRecord。
func (t *Table) SetInUse(rec *Record, inUse bool) error {
	t.mu.Lock()
	if rec.removed || t.byID[rec.id] != rec {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecord, rec)
	}
	if rec.inUse == inUse {
		t.mu.Unlock()
		return nil
	}
	rec.inUse = inUse
	props := rec.props
	obs := t.observersLocked()
	t.mu.Unlock()

	log.Debug("address usage changed", "address", rec.addr.String(), "in_use", inUse)
	for _, o := range obs {
		o.AddressUpdated(rec, props)
	}
	return nil
}

// SetUtilization 记录地址测得的吞吐量
//
// 只有吞吐量在 0 与非 0 之间切换时才通知观察者。
func (t *Table) SetUtilization(rec *Record, in, out uint64) {
	t.mu.Lock()
	if rec.removed {
		t.mu.Unlock()
		return
	}
	prev := rec.props
	rec.props.UtilizationIn = in
	rec.props.UtilizationOut = out
	hadCapacity := prev.UtilizationIn > 0 || prev.UtilizationOut > 0
	if hadCapacity == (in > 0 || out > 0) {
		t.mu.Unlock()
		return
	}
	obs := t.observersLocked()
	t.mu.Unlock()

	for _, o := range obs {
		o.AddressUpdated(rec, prev)
	}
}

// Destroy 移除地址
//
// 观察者先收到 AddressDestroying（记录仍在表中），移除后再收到 AddressDestroyed。
// 移除经由串行队列执行：在推荐回调中调用时，移除排在已排队的通知之后，
// Destroy 返回时记录可能尚未移除，但不会再被推荐。
func (t *Table) Destroy(rec *Record) error {
	t.mu.Lock()
	if rec.removed || t.byID[rec.id] != rec {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecord, rec)
	}
	if rec.destroying {
		t.mu.Unlock()
		return nil
	}
	rec.destroying = true
	obs := t.observersLocked()
	t.mu.Unlock()

	for _, o := range obs {
		o.AddressDestroying(rec)
	}

	t.serial.Do(func() {
		t.mu.Lock()
		if rec.removed {
			t.mu.Unlock()
			return
		}
		t.removeLocked(rec)
		t.mu.Unlock()

		log.Debug("address destroyed", "address", rec.addr.String())
		for _, o := range obs {
			o.AddressDestroyed(rec)
		}
	})
	return nil
}

func (t *Table) removeLocked(rec *Record) {
	rec.removed = true
	rec.active = false
	rec.alloc = types.Bandwidth{}
	delete(t.byKey, rec.addr.key())
	delete(t.byID, rec.id)

	list := t.byPeer[rec.addr.Peer]
	for i, r := range list {
		if r == rec {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.byPeer, rec.addr.Peer)
	} else {
		t.byPeer[rec.addr.Peer] = list
	}
	t.normalizeLocked()
	t.metrics.Addresses.Set(float64(len(t.byID)))
}

// SessionDropped 会话结束
//
// 仅能经由该会话到达的地址被移除；其他地址保留原始地址并解除会话。
// 返回受影响的记录数。
func (t *Table) SessionDropped(peer types.PeerID, session SessionID) int {
	if session == NoSession {
		return 0
	}

	t.mu.Lock()
	var affected []*Record
	for _, rec := range t.byPeer[peer] {
		if rec.session == session {
			affected = append(affected, rec)
		}
	}
	t.mu.Unlock()

	for _, rec := range affected {
		if rec.addr.IsInboundOnly() {
			_ = t.Destroy(rec)
			continue
		}
		_ = t.SetSession(rec, NoSession)
	}
	return len(affected)
}

// ============================================================================
//                              查询
// ============================================================================

// Lookup 按地址查找记录
func (t *Table) Lookup(addr Address) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byKey[addr.key()]
	return rec, ok
}

// Get 按标识查找记录
func (t *Table) Get(id interfaces.CandidateID) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[id]
	return rec, ok
}

// ByPeer 返回节点的全部记录
func (t *Table) ByPeer(peer types.PeerID) []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.byPeer[peer]
	out := make([]*Record, len(list))
	copy(out, list)
	return out
}

// Active 返回节点的活跃记录
func (t *Table) Active(peer types.PeerID) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.byPeer[peer] {
		if rec.active {
			return rec, true
		}
	}
	return nil, false
}

// Peers 返回有地址的节点
func (t *Table) Peers() []types.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.PeerID, 0, len(t.byPeer))
	for id := range t.byPeer {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Len 返回记录数
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// List 逐条枚举地址，最后以 done=true 调用一次
func (t *Table) List(f Filter, fn func(info Info, done bool)) {
	t.mu.Lock()
	var infos []Info
	collect := func(list []*Record) {
		for _, rec := range list {
			if f.ActiveOnly && !rec.active {
				continue
			}
			infos = append(infos, rec.infoLocked())
		}
	}
	if !f.Peer.IsEmpty() {
		collect(t.byPeer[f.Peer])
	} else {
		for _, list := range t.byPeer {
			collect(list)
		}
	}
	t.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	for _, info := range infos {
		fn(info, false)
	}
	fn(Info{}, true)
}

// Candidates 返回节点当前可用的候选地址
//
// 屏蔽期内和正在移除的地址被排除。时延与跳数取平均值。
func (t *Table) Candidates(peer types.PeerID, now time.Time) []interfaces.Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []interfaces.Candidate
	for _, rec := range t.byPeer[peer] {
		if rec.destroying || now.Before(rec.blockedUntil) {
			continue
		}
		out = append(out, interfaces.Candidate{
			ID:             rec.id,
			Peer:           peer,
			Scope:          rec.props.Scope,
			Delay:          time.Duration(math.Round(rec.delayAvg.value())),
			Distance:       uint32(math.Round(rec.distanceAvg.value())),
			UtilizationIn:  rec.props.UtilizationIn,
			UtilizationOut: rec.props.UtilizationOut,
			Active:         rec.active,
			InUse:          rec.inUse,
		})
	}
	return out
}

// ============================================================================
//                              分配
// ============================================================================

// SetAllocation 写入节点的分配结果
//
// id 指向的记录成为活跃地址，同一节点的其他记录归零；
// id 为 0 或不属于该节点时节点没有活跃地址。
// 只由分配引擎调用。
func (t *Table) SetAllocation(peer types.PeerID, id interfaces.CandidateID, bw types.Bandwidth) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.byPeer[peer] {
		if rec.id == id {
			rec.active = true
			rec.alloc = bw
			continue
		}
		rec.active = false
		rec.alloc = types.Bandwidth{}
	}
}

// Block 在 until 之前不再推荐该地址
func (t *Table) Block(rec *Record, until time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec.blockedUntil = until
}

// ResetBlocks 解除节点全部地址的屏蔽
func (t *Table) ResetBlocks(peer types.PeerID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, rec := range t.byPeer[peer] {
		if !rec.blockedUntil.IsZero() {
			rec.blockedUntil = time.Time{}
			n++
		}
	}
	return n
}
