// Package address 实现地址表
//
// 每个节点可以有零个或多个地址，每个地址附带性能属性
// （时延、跳数、网络范围、吞吐量）和当前的带宽分配。
// 同一节点同一时刻最多一个地址处于活跃状态。
//
// 地址表不计算分配，分配由 suggest 包写入；
// 地址的增删改通过 Observer 通知分配引擎。
package address
