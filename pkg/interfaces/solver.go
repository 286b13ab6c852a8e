package interfaces

import (
	"time"

	"github.com/dep2p/go-ats/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// Solver 接口
// ════════════════════════════════════════════════════════════════════════════

// CandidateID 候选地址在地址表中的标识
type CandidateID uint64

// Candidate 一个可供选择的地址
//
// Delay 与 Distance 为最近若干次上报的平均值。
type Candidate struct {
	ID       CandidateID
	Peer     types.PeerID
	Scope    types.NetworkType
	Delay    time.Duration
	Distance uint32

	// UtilizationIn/UtilizationOut 测得的吞吐量（字节/秒）
	UtilizationIn  uint64
	UtilizationOut uint64

	// Active 当前是否为该节点的活跃地址
	Active bool

	// InUse 传输层报告该地址正在使用
	InUse bool
}

// HasCapacity 是否测得非 0 吞吐量
func (c Candidate) HasCapacity() bool {
	return c.UtilizationIn > 0 || c.UtilizationOut > 0
}

// PeerPreference 某节点的有效偏好权重
type PeerPreference struct {
	Bandwidth float64
	Latency   float64
}

// SolverInput 一次求解的输入快照
type SolverInput struct {
	// Candidates 已订阅节点的可用候选地址
	Candidates map[types.PeerID][]Candidate

	// Quotas 各网络范围的配额
	Quotas map[types.NetworkType]types.Bandwidth

	// Preferences 各节点的有效偏好（缺省为 0）
	Preferences map[types.PeerID]PeerPreference
}

// Assignment 某节点的分配结果
type Assignment struct {
	Candidate CandidateID
	Bandwidth types.Bandwidth
}

// SolverOutput 求解结果；未出现的节点视为 0/0
type SolverOutput map[types.PeerID]Assignment

// Solver 带宽分配求解器
//
// 实现必须满足：
//   - 同一网络范围内分配的出站（入站）带宽之和不超过该范围配额
//   - 测得容量为 0 的地址在其他条件相当时不优先于非 0 容量的地址
//   - 无法满足最低带宽的节点得到 0/0
//   - 调整一个节点的偏好不会降低其他网络范围内节点的分配
type Solver interface {
	Solve(in SolverInput) SolverOutput
}
