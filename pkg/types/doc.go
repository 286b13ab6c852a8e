// Package types 定义 go-ats 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
//
// # 文件组织
//
//   - ids.go        - PeerID（Base58 编码）
//   - enums.go      - NetworkType, Bandwidth
//   - preference.go - Preference 和类型（BandwidthPreference, LatencyPreference）
//   - errors.go     - ErrLogic 及公共错误
//
// # 错误分类
//
// 调用方违反约定时返回包装 ErrLogic 的错误；
// 瞬时状态（无带宽、无路径）不是错误，而是通过 0/0 分配或状态值表达。
package types
