package serial

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestQueue_Order 测试按提交顺序执行
func TestQueue_Order(t *testing.T) {
	var q Queue
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		q.Enqueue(func() { got = append(got, i) })
	}
	assert.Empty(t, got)

	q.Drain()
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.False(t, q.Draining())
}

// TestQueue_Reentrant 测试回调内提交的回调在当前回调返回后执行
func TestQueue_Reentrant(t *testing.T) {
	var q Queue
	var got []string
	q.Do(func() {
		got = append(got, "outer-begin")
		assert.True(t, q.Draining())
		q.Do(func() { got = append(got, "inner") })
		got = append(got, "outer-end")
	})
	assert.Equal(t, []string{"outer-begin", "outer-end", "inner"}, got)

	t.Log("✅ 重入回调排在队尾")
}

// TestQueue_Concurrent 测试并发提交全部执行
func TestQueue_Concurrent(t *testing.T) {
	var (
		q  Queue
		mu sync.Mutex
		n  int
		wg sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Do(func() {
				mu.Lock()
				n++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	q.Drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, n)
}
