// Package serial 提供串行 FIFO 回调执行器
//
// 回调在提交者的 goroutine 中执行。某个 goroutine 正在执行队列时，
// 其他提交（包括回调内的提交）只入队，由正在执行的 goroutine
// 在当前回调返回后按提交顺序继续执行。
package serial

import "sync"

// Queue 串行 FIFO 执行器，零值可用
type Queue struct {
	mu       sync.Mutex
	pending  []func()
	draining bool
}

// Enqueue 提交回调，不执行
func (q *Queue) Enqueue(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// Drain 执行队列中的回调；已有 goroutine 在执行时立即返回
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	for len(q.pending) > 0 {
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn()

		q.mu.Lock()
	}
	q.draining = false
	q.mu.Unlock()
}

// Do 提交回调并执行队列
//
// 返回时 fn 已执行，或者排在正在执行的队列中。
func (q *Queue) Do(fn func()) {
	q.Enqueue(fn)
	q.Drain()
}

// Draining 是否有 goroutine 正在执行队列
func (q *Queue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}
