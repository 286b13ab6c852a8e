package address

import "math"

// ============================================================================
//                              属性平滑与归一化
// ============================================================================

// average 最近 window 次上报的滑动平均
type average struct {
	samples []float64
	next    int
}

func (a *average) add(v float64, window int) {
	if window <= 0 {
		window = 1
	}
	if len(a.samples) < window {
		a.samples = append(a.samples, v)
		a.next = len(a.samples) % window
		return
	}
	a.samples[a.next] = v
	a.next = (a.next + 1) % len(a.samples)
}

func (a *average) value() float64 {
	if len(a.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range a.samples {
		sum += v
	}
	return sum / float64(len(a.samples))
}

// Quality 归一化后的质量属性
//
// 取值在 [1, 2]：1 为全部地址中的最小平均值，2 为最大平均值。
// 所有地址的平均值相同时为 1。
type Quality struct {
	Delay    float64
	Distance float64
}

// normalize 把 v 按 [min, max] 映射到 [1, 2]
func normalize(v, min, max float64) float64 {
	if max <= min {
		return 1
	}
	return 1 + (v-min)/(max-min)
}

// normalizeLocked 重新计算全部记录的归一化属性
func (t *Table) normalizeLocked() {
	minDelay, maxDelay := math.Inf(1), math.Inf(-1)
	minDist, maxDist := math.Inf(1), math.Inf(-1)
	for _, rec := range t.byID {
		d, h := rec.delayAvg.value(), rec.distanceAvg.value()
		minDelay, maxDelay = math.Min(minDelay, d), math.Max(maxDelay, d)
		minDist, maxDist = math.Min(minDist, h), math.Max(maxDist, h)
	}
	for _, rec := range t.byID {
		rec.quality = Quality{
			Delay:    normalize(rec.delayAvg.value(), minDelay, maxDelay),
			Distance: normalize(rec.distanceAvg.value(), minDist, maxDist),
		}
	}
}
