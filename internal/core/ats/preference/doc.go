// Package preference 聚合各节点的带宽/时延偏好
//
// 偏好值在设置时重置老化，之后按
//
//	baseline + (v-baseline) * factor^(elapsed/interval)
//
// 向基线衰减，单调且不会越过基线。读取时按 last_touched 惰性计算；
// 周期性的 Age 只把衰减折算进存储值并清理回到基线的记录。
package preference
