// Package introspect 提供本地自省 HTTP 服务
//
// 该服务运行在本地端口，以 JSON 输出地址表、推荐、偏好、吞吐量
// 和网状网络目录的快照。默认绑定到 127.0.0.1，不暴露到网络。
//
// # 端点
//
//	GET /debug/introspect              - 完整诊断报告
//	GET /debug/introspect/addresses    - 地址表
//	GET /debug/introspect/suggestions  - 当前推荐
//	GET /debug/introspect/preferences  - 偏好记录
//	GET /debug/introspect/traffic      - 吞吐量统计
//	GET /debug/introspect/mesh         - 网状网络目录（未启用时 503）
//	GET /debug/introspect/runtime      - Go 运行时信息
//	GET /debug/pprof/*                 - Go pprof 端点
//	GET /health                        - 健康检查
//
// # 使用示例
//
//	server := introspect.New(introspect.Config{
//	    Addr:   "127.0.0.1:6060",
//	    Table:  table,
//	    Engine: engine,
//	})
//	server.Start(ctx)
//	defer server.Stop()
//
// 通过 config.Diagnostics.EnableIntrospect 配置启用。
package introspect
