// Package ats 提供自动传输选择（ATS）服务
//
// ats 为每个节点维护已知地址及其性能属性，为订阅的节点推荐地址和带宽，
// 并在各网络范围的配额内分配带宽。可选的网状网络目录负责多跳路径发现、
// 去重和连接生命周期。
//
// # 核心概念
//
//   - Address: 节点的一个传输地址，带延迟、距离、网络范围等属性
//   - Suggestion: 针对某节点推荐的地址与入站/出站带宽，0/0 表示断开
//   - Preference: 调用方对节点的带宽或延迟偏好，随时间衰减
//   - Reservation: 按分配的入站带宽预留字节
//
// # 快速开始
//
//	svc, err := ats.Start(ctx, ats.WithConfig(ats.DefaultConfig()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	rec, _ := svc.AddressAdd(ats.Address{Peer: id, Transport: "tcp", Raw: raw},
//	    ats.NoSession, ats.Properties{Delay: 20 * time.Millisecond, Distance: 1, Scope: ats.NetworkWAN})
//
//	sub, _ := svc.RequestSuggestion(id, func(s ats.Suggestion) {
//	    if s.IsDisconnect() {
//	        return
//	    }
//	    dial(s.Address, s.Bandwidth)
//	})
//	defer sub.Cancel()
//
// # 网状网络
//
// 通过 WithTransmitter 提供核心传输层后，Mesh() 返回节点目录。
// 推荐引擎分配的出站带宽会同步为邻居发送队列的速率。
//
// # 错误
//
// 调用方违反约定时返回包装 ErrLogic 的错误，可用 IsLogicError 判别。
// 暂无可用带宽、路径仍在查找等状态不是错误。
package ats
