// Package solver 提供带宽分配求解器
//
// Proportional 是默认实现，满足 interfaces.Solver 的约定；
// 其他求解器可以通过 fx.Decorate 替换。
package solver
