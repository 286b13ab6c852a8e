package bandwidth

import (
	"math"
	"strconv"
	"sync"
	"time"
)

// ============================================================================
//                              流量计量器
// ============================================================================

// Meter 单方向流量计量器
//
// 速率只在 tick 时按本方向自上次 tick 以来的字节增量计算，
// 并以 EWMA 平滑。
type Meter struct {
	mu sync.Mutex

	total     uint64
	lastTotal uint64
	lastTick  time.Time
	ticked    bool
	rate      float64

	lastActive time.Time
}

func newMeter(now time.Time) *Meter {
	return &Meter{lastTick: now, lastActive: now}
}

// Mark 记录字节数
func (m *Meter) Mark(n uint64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total += n
	m.lastActive = now
}

// tick 计算速率
//
// 间隔不为正时沿用上次速率并返回 false，增量留到下次计算。
func (m *Meter) tick(now time.Time, alpha float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Sub(m.lastTick)
	if elapsed <= 0 {
		return false
	}

	delta := m.total - m.lastTotal
	instant := float64(delta) / elapsed.Seconds()
	if !m.ticked {
		m.rate = instant
		m.ticked = true
	} else {
		m.rate = alpha*instant + (1-alpha)*m.rate
	}
	m.lastTotal = m.total
	m.lastTick = now
	return true
}

// Snapshot 获取统计快照
func (m *Meter) Snapshot() MeterSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MeterSnapshot{Total: m.total, Rate: m.rate}
}

// LastActive 获取上次活动时间
func (m *Meter) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActive
}

// MeterSnapshot 计量器快照
type MeterSnapshot struct {
	// Total 累计字节数
	Total uint64

	// Rate 速率 (bytes/sec)
	Rate float64
}

// ============================================================================
//                              辅助函数
// ============================================================================

// FormatRate 以 1024 进制格式化速率，如 "1.50 KB/s"
func FormatRate(bytesPerSec float64) string {
	if math.IsNaN(bytesPerSec) || math.IsInf(bytesPerSec, 0) || bytesPerSec < 0 {
		return "0 B/s"
	}
	units := []string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s"}
	u := 0
	for bytesPerSec >= 1024 && u < len(units)-1 {
		bytesPerSec /= 1024
		u++
	}
	if u == 0 {
		return strconv.FormatFloat(bytesPerSec, 'f', 0, 64) + " " + units[0]
	}
	prec := 2
	if bytesPerSec >= 100 {
		prec = 0
	} else if bytesPerSec >= 10 {
		prec = 1
	}
	return strconv.FormatFloat(bytesPerSec, 'f', prec, 64) + " " + units[u]
}
