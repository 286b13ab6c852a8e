// Package queue 实现每个邻居节点的发送队列
//
// # 概述
//
// 每个直连邻居拥有一个 Queue，所有经过该邻居的连接共享它：
//   - ACK/POLL 插到队首，并可占用第二个发送时机
//   - 加密数据只有在所属连接就绪且流控允许时才可发送，发送时重新检查
//   - 传输层给出的缓冲区不足时，为同一条目重新请求发送时机
//   - 按分配带宽对负载限速；带宽为 0 时负载暂停，控制消息照常发送
//
// # 回调与重入
//
// 完成回调和传输层请求都在锁外执行。回调中可以再次调用
// Add、Cancel、Pop 等方法；Cancel 每次删除前重新扫描队列，
// 不依赖回调前取得的位置。
package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("mesh/queue")

var (
	// ErrQueueFull 普通消息数达到上限
	ErrQueueFull = errors.New("queue: full")

	// ErrQueueClosed 队列已关闭
	ErrQueueClosed = fmt.Errorf("queue: %w", types.ErrClosed)
)

// maxMessageSize 限速器的最小突发量，保证任何单条消息都能通过
const maxMessageSize = 64 * 1024

// Config 队列配置
type Config struct {
	// MaxQueued 普通消息上限（ACK/POLL 不计入）
	MaxQueued int

	// Clock 时钟，测试中注入 clock.NewMock()
	Clock clock.Clock

	// Metrics 指标，可为 nil
	Metrics *metrics.Metrics
}

type slotKind int

const (
	slotNormal slotKind = iota
	slotPriority
)

// slot 一个发送时机请求
type slot struct {
	pending bool
	gen     uint64
	handle  interfaces.TransmitHandle
}

// Queue 单个邻居的发送队列
type Queue struct {
	mu sync.Mutex

	peer types.PeerID
	tx   interfaces.Transmitter
	cfg  Config

	entries []*Entry
	normal  int

	slots [2]slot

	limiter       *rate.Limiter
	paused        bool
	nextPayloadAt time.Time
	pacingTimer   *clock.Timer

	closed bool
}

// New 创建发送队列
func New(peer types.PeerID, tx interfaces.Transmitter, cfg Config) *Queue {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Queue{
		peer: peer,
		tx:   tx,
		cfg:  cfg,
	}
}

// Peer 返回邻居节点
func (q *Queue) Peer() types.PeerID {
	return q.peer
}

// Len 返回排队条目数
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries 返回条目快照（队首在前）
func (q *Queue) Entries() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// ============================================================================
//                              入队
// ============================================================================

// Add 入队一条消息
//
// conn 为 nil 表示不属于本地任何连接的转发消息。
// cont 在消息发送或被取消时恰好执行一次。
func (q *Queue) Add(typ MessageType, payload []byte, conn Conn, fwd bool, cont SentFunc) (*Entry, error) {
	e := &Entry{
		typ:     typ,
		conn:    conn,
		fwd:     fwd,
		payload: payload,
		prio:    PriorityFor(typ, conn, fwd),
		cont:    cont,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	e.enqueued = q.cfg.Clock.Now()

	if typ.IsPriority() {
		q.entries = append([]*Entry{e}, q.entries...)
	} else {
		if q.cfg.MaxQueued > 0 && q.normal >= q.cfg.MaxQueued {
			q.mu.Unlock()
			q.dropped("full")
			log.Debug("queue full", "peer", q.peer.ShortString(), "type", typ.String())
			return nil, ErrQueueFull
		}
		q.entries = append(q.entries, e)
		q.normal++
	}
	q.mu.Unlock()

	if typ.IsPriority() {
		q.request(slotPriority)
	}
	q.request(slotNormal)
	return e, nil
}

// ============================================================================
//                              发送
// ============================================================================

// request 在没有未决请求且存在可发送条目时请求发送时机
func (q *Queue) request(kind slotKind) {
	q.mu.Lock()
	s := &q.slots[kind]
	if q.closed || s.pending {
		q.mu.Unlock()
		return
	}
	e := q.pick(kind, q.cfg.Clock.Now())
	if e == nil {
		q.mu.Unlock()
		return
	}
	s.pending = true
	s.gen++
	gen := s.gen
	size, prio := e.Size(), e.prio
	q.mu.Unlock()

	h := q.tx.NotifyTransmitReady(q.peer, size, prio, func(buf []byte) int {
		return q.transmit(kind, gen, buf)
	})

	q.mu.Lock()
	if s.pending && s.gen == gen {
		s.handle = h
	}
	q.mu.Unlock()
}

// pick 选择下一个可发送条目，调用方持有锁
func (q *Queue) pick(kind slotKind, now time.Time) *Entry {
	for _, e := range q.entries {
		if kind == slotPriority && !e.typ.IsPriority() {
			return nil
		}
		if q.sendable(e, now) {
			return e
		}
	}
	return nil
}

// sendable 条目当前是否可以发送，调用方持有锁
func (q *Queue) sendable(e *Entry, now time.Time) bool {
	if !e.typ.IsPayload() {
		return true
	}
	if q.paused || now.Before(q.nextPayloadAt) {
		return false
	}
	if e.typ == TypeEncrypted {
		return e.conn != nil && e.conn.IsSendable(e.fwd)
	}
	return true
}

// transmit 传输层回调：写入一个条目
func (q *Queue) transmit(kind slotKind, gen uint64, buf []byte) int {
	q.mu.Lock()
	s := &q.slots[kind]
	if !s.pending || s.gen != gen {
		q.mu.Unlock()
		return 0
	}
	s.pending = false
	s.handle = nil

	// 对端断开：由断开处理清理队列
	if len(buf) == 0 {
		q.mu.Unlock()
		return 0
	}

	// 先检查缓冲区再放行，重新请求时不消耗限速额度
	now := q.cfg.Clock.Now()
	var e *Entry
	for {
		e = q.pick(kind, now)
		if e == nil {
			q.mu.Unlock()
			return 0
		}
		if e.Size() > len(buf) {
			q.mu.Unlock()
			log.Debug("buffer too small, retrying", "peer", q.peer.ShortString(), "need", e.Size(), "have", len(buf))
			q.request(kind)
			return 0
		}
		if !e.typ.IsPayload() || q.admit(e, now) {
			break
		}
	}

	n := copy(buf, e.payload)
	q.remove(e)
	if e.typ == TypeEncrypted && e.conn != nil {
		e.conn.RecordSent(e.fwd)
	}
	q.mu.Unlock()

	e.complete(n)
	q.request(slotNormal)
	q.request(slotPriority)
	return n
}

// admit 按限速器放行负载，调用方持有锁
//
// 需要等待时记录下一次可发送负载的时间并安排重试。
func (q *Queue) admit(e *Entry, now time.Time) bool {
	if q.limiter == nil {
		return true
	}
	r := q.limiter.ReserveN(now, e.Size())
	if !r.OK() {
		return true
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return true
	}
	r.CancelAt(now)
	q.nextPayloadAt = now.Add(delay)
	if q.pacingTimer != nil {
		q.pacingTimer.Stop()
	}
	q.pacingTimer = q.cfg.Clock.AfterFunc(delay, q.Kick)
	return false
}

// remove 删除条目，调用方持有锁
func (q *Queue) remove(e *Entry) bool {
	for i, x := range q.entries {
		if x == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			if !e.typ.IsPriority() {
				q.normal--
			}
			return true
		}
	}
	return false
}

// Kick 在条件变化（连接就绪、窗口前移、限速到期）后重新尝试发送
func (q *Queue) Kick() {
	q.request(slotNormal)
	q.request(slotPriority)
}

// Unlock 连接变为可发送后调用
func (q *Queue) Unlock(_ Conn) {
	q.Kick()
}

// ============================================================================
//                              限速
// ============================================================================

// SetRate 设置负载发送速率（字节/秒）
//
// 0 暂停负载；控制消息不受影响。
func (q *Queue) SetRate(bytesPerSec uint64) {
	q.mu.Lock()
	if bytesPerSec == 0 {
		q.paused = true
		q.mu.Unlock()
		return
	}
	burst := int(bytesPerSec)
	if burst < maxMessageSize {
		burst = maxMessageSize
	}
	q.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
	q.paused = false
	q.nextPayloadAt = time.Time{}
	q.mu.Unlock()

	q.Kick()
}

// ============================================================================
//                              取消
// ============================================================================

// Cancel 取消属于 conn 的全部条目
//
// 销毁消息不会被丢弃，而是与连接分离后继续发送。
// 每个被取消的条目以 sent=0 执行完成回调。
func (q *Queue) Cancel(c Conn) int {
	n := 0
	for {
		q.mu.Lock()
		var victim *Entry
		for _, e := range q.entries {
			if e.conn != c {
				continue
			}
			if e.typ == TypeConnectionDestroy {
				e.conn = nil
				continue
			}
			victim = e
			break
		}
		if victim != nil {
			q.remove(victim)
		}
		q.mu.Unlock()

		if victim == nil {
			break
		}
		n++
		q.dropped("cancel")
		victim.complete(0)
	}
	q.reconcile()
	return n
}

// Pop 取出 conn 的第一个负载条目
//
// 该连接排在负载之前的控制消息被丢弃；返回的条目由调用方接管，
// 不会执行完成回调。
func (q *Queue) Pop(c Conn) *Entry {
	for {
		q.mu.Lock()
		var (
			found  *Entry
			victim *Entry
		)
		for _, e := range q.entries {
			if e.conn != c {
				continue
			}
			if e.typ.IsPayload() {
				found = e
			} else {
				victim = e
			}
			break
		}
		if found != nil {
			q.remove(found)
			found.done = true
		} else if victim != nil {
			q.remove(victim)
		}
		q.mu.Unlock()

		switch {
		case found != nil:
			q.reconcile()
			return found
		case victim != nil:
			q.dropped("pop")
			victim.complete(0)
		default:
			q.reconcile()
			return nil
		}
	}
}

// reconcile 队列为空时撤销未决的发送时机请求
func (q *Queue) reconcile() {
	q.mu.Lock()
	if len(q.entries) > 0 {
		q.mu.Unlock()
		return
	}
	handles := q.takeHandles()
	q.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

// takeHandles 清空发送时机请求，调用方持有锁
func (q *Queue) takeHandles() []interfaces.TransmitHandle {
	var handles []interfaces.TransmitHandle
	for i := range q.slots {
		s := &q.slots[i]
		if s.pending && s.handle != nil {
			handles = append(handles, s.handle)
		}
		s.pending = false
		s.handle = nil
		s.gen++
	}
	return handles
}

// Close 关闭队列：撤销发送请求并取消全部条目
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	handles := q.takeHandles()
	entries := q.entries
	q.entries = nil
	q.normal = 0
	if q.pacingTimer != nil {
		q.pacingTimer.Stop()
	}
	q.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, e := range entries {
		q.dropped("close")
		e.complete(0)
	}
}

func (q *Queue) dropped(reason string) {
	if q.cfg.Metrics != nil {
		q.cfg.Metrics.QueueDropped.WithLabelValues(reason).Inc()
	}
}
