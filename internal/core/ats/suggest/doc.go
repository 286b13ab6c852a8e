// Package suggest 实现推荐引擎
//
// 引擎订阅地址表和偏好聚合器的变化，把已订阅节点的候选地址、
// 各范围配额和偏好权重交给求解器，校正越界结果后写回地址表。
//
// 通知规则：
//   - 存在可用地址后至少通知一次
//   - 地址变化、零与非零切换、带宽变化超过阈值时再次通知
//   - 活跃地址被移除前先通知 0/0
//   - 所有 0/0 状态视为相同，不重复通知
//
// 回调在锁外按 FIFO 串行执行。
package suggest
