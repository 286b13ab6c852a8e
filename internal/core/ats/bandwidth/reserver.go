package bandwidth

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/internal/util/serial"
	"github.com/dep2p/go-ats/pkg/types"
)

// ResultFunc 异步预留结果回调
type ResultFunc func(peer types.PeerID, granted int64, retryAfter time.Duration)

type bucket struct {
	bw      uint64
	limiter *rate.Limiter

	// credit 释放归还的字节，优先于令牌桶使用
	credit int64
}

// ============================================================================
//                              带宽预留
// ============================================================================

// Reserver 入站带宽预留
//
// 每个节点一个令牌桶，速率为分配给该节点的入站带宽，
// 容量为速率乘以 MaxCarry。预留要么全部满足，要么不满足。
type Reserver struct {
	mu sync.Mutex

	maxCarry time.Duration
	clock    clock.Clock
	metrics  *metrics.Metrics

	peers map[types.PeerID]*bucket

	dispatch serial.Queue
}

// NewReserver 创建预留管理器
func NewReserver(cfg config.ReservationConfig, clk clock.Clock, m *metrics.Metrics) *Reserver {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.Nop()
	}
	maxCarry := time.Duration(cfg.MaxCarry)
	if maxCarry <= 0 {
		maxCarry = config.DefaultMaxCarry
	}
	return &Reserver{
		maxCarry: maxCarry,
		clock:    clk,
		metrics:  m,
		peers:    make(map[types.PeerID]*bucket),
	}
}

func (r *Reserver) burstFor(bw uint64) int {
	b := float64(bw) * r.maxCarry.Seconds()
	if b > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(b)
}

// SetBandwidth 设置节点的入站带宽 (bytes/sec)
func (r *Reserver) SetBandwidth(peer types.PeerID, in uint64) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.peers[peer]
	if !ok {
		if in == 0 {
			return
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(in), r.burstFor(in))}
		r.peers[peer] = b
		b.bw = in
		return
	}
	if b.bw == in {
		return
	}
	b.bw = in
	b.limiter.SetLimitAt(now, rate.Limit(in))
	b.limiter.SetBurstAt(now, r.burstFor(in))
	if burst := int64(r.burstFor(in)); b.credit > burst {
		b.credit = burst
	}
}

// Bandwidth 返回节点当前的入站带宽
func (r *Reserver) Bandwidth(peer types.PeerID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.peers[peer]; ok {
		return b.bw
	}
	return 0
}

// Reserve 预留 amount 字节
//
// amount 为负表示释放此前的预留，返回值 granted 等于 amount。
// 不能立即满足时 granted 为 0，retryAfter 给出建议的重试等待时间。
func (r *Reserver) Reserve(peer types.PeerID, amount int64) (granted int64, retryAfter time.Duration) {
	if amount == 0 {
		return 0, 0
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.peers[peer]
	if amount < 0 {
		if ok {
			b.credit -= amount
			if burst := int64(r.burstFor(b.bw)); b.credit > burst {
				b.credit = burst
			}
		}
		r.metrics.Reservations.WithLabelValues("released").Inc()
		return amount, 0
	}

	if !ok || b.bw == 0 {
		r.metrics.Reservations.WithLabelValues("denied").Inc()
		return 0, r.maxCarry
	}

	if b.credit >= amount {
		b.credit -= amount
		r.metrics.Reservations.WithLabelValues("granted").Inc()
		return amount, 0
	}

	need := amount - b.credit
	if need > math.MaxInt32 {
		r.metrics.Reservations.WithLabelValues("denied").Inc()
		return 0, r.maxCarry
	}
	res := b.limiter.ReserveN(now, int(need))
	if !res.OK() {
		// 超过桶容量，永远无法一次满足
		r.metrics.Reservations.WithLabelValues("denied").Inc()
		return 0, r.maxCarry
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		r.metrics.Reservations.WithLabelValues("denied").Inc()
		return 0, delay
	}
	b.credit = 0
	r.metrics.Reservations.WithLabelValues("granted").Inc()
	return amount, 0
}

// Request 排队中的异步预留
type Request struct {
	mu        sync.Mutex
	fn        ResultFunc
	cancelled bool
}

// Cancel 取消预留请求
//
// 尚未执行的请求不再预留；已执行的请求不受影响，回调也不会再被调用。
func (rq *Request) Cancel() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.cancelled = true
	rq.fn = nil
}

func (rq *Request) take() (ResultFunc, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.fn, rq.cancelled
}

// ReserveAsync 预留并通过回调返回结果
//
// 回调内发起的预留会在该回调返回后执行，执行前可通过返回的 Request 取消。
func (r *Reserver) ReserveAsync(peer types.PeerID, amount int64, fn ResultFunc) *Request {
	rq := &Request{fn: fn}
	r.dispatch.Do(func() {
		if _, cancelled := rq.take(); cancelled {
			r.metrics.Reservations.WithLabelValues("cancelled").Inc()
			return
		}
		granted, retry := r.Reserve(peer, amount)
		fn, cancelled := rq.take()
		if cancelled {
			// 回调前被取消：撤销已得到的预留
			if granted > 0 {
				r.Reserve(peer, -granted)
			}
			return
		}
		if fn != nil {
			fn(peer, granted, retry)
		}
	})
	return rq
}

// Remove 删除节点的预留状态
func (r *Reserver) Remove(peer types.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, peer)
}

// Len 返回有带宽分配的节点数
func (r *Reserver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
