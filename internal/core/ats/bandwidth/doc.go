// Package bandwidth 实现吞吐量采样和入站带宽预留
//
// Sampler 按节点分别统计收、发两个方向的字节数，每次 Tick 用各自的增量
// 计算瞬时速率并做 EWMA 平滑。采样间隔不为正时沿用上次速率。
//
// Reserver 为每个节点维护一个令牌桶：
//   - 速率等于推荐引擎分配的入站带宽
//   - 容量等于速率乘以 MaxCarry
//   - 预留要么全部满足，要么返回建议的重试时间
//   - 负数表示释放，释放的字节可被后续预留使用
package bandwidth
