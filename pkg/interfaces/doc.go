// Package interfaces 定义 go-ats 与外部协作方之间的契约
//
// 本包只包含接口和传递用的值类型，实现位于 internal/ 或由调用方提供：
//
//   - core.go    - 核心传输层：发送时机通知、Hello 投递
//   - dht.go     - DHT 节点查询
//   - solver.go  - 带宽分配求解器
//
// 所有回调都在调用方持有的锁之外执行，可以安全地重新进入本模块。
package interfaces
