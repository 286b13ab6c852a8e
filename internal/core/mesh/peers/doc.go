// Package peers 实现网状网络的节点目录
//
// 目录按需创建节点记录，记录保存：
//   - 到该节点的已知路径（meshpath.Registry）
//   - 直连邻居的连接集合与发送队列
//   - 以该节点为终点的隧道
//   - 最近一次收到的 Hello
//
// 节点数达到上限时淘汰最久未联系且未被使用的节点；
// 有隧道或存在短路径的节点视为被使用。
//
// 目录接收核心传输层的连接/断开事件，带宽分配结果通过
// SetBandwidth 转为邻居队列的发送速率。
package peers
