// Package meshpath 维护到各节点的已知逐跳路径
//
// # 概述
//
// 每个节点拥有一个 Registry，保存从本地节点到该节点的路径：
//   - 按跳数升序排列，便于优先尝试短路径
//   - 同一跳序列只保存一份，重复添加返回已有路径
//   - 经过本地节点的环路在添加时截断
//   - 来自不可信来源（DHT、中继转发）的路径至少 3 跳
//
// 链路断开时相关路径被标记失效而不是立即删除，
// 已经引用它们的连接仍可完成收尾。
//
// # 路径来源
//
//   - 核心层直连：[local, peer]
//   - 建链请求：对端提供的完整路径，本地截取到自身所在位置
//   - DHT 查询：BuildFromDHT 拼接 GET/PUT 两段路径，再由 AddToAll
//     把每个前缀登记给沿途节点
package meshpath
