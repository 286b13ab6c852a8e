package solver

import (
	"math"
	"sort"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("ats/solver")

// Proportional 比例分配求解器
//
// 每个节点在配额非 0 的网络范围中选一个地址（跳数优先，其次时延，
// 切换活跃地址需要明显优势）；同一范围内的节点先各得最低带宽，
// 剩余配额按 1 + factor*相对偏好 的权重分摊。
// 范围配额不足以给每个节点最低带宽时，偏好低的节点得到 0/0。
type Proportional struct {
	cfg config.SolverConfig
}

var _ interfaces.Solver = (*Proportional)(nil)

// NewProportional 创建比例分配求解器
func NewProportional(cfg config.SolverConfig) *Proportional {
	if cfg.StabilityFactor < 1 {
		cfg.StabilityFactor = 1
	}
	if cfg.ProportionalityFactor < 0 {
		cfg.ProportionalityFactor = 0
	}
	return &Proportional{cfg: cfg}
}

// choice 某节点选中的地址
type choice struct {
	peer types.PeerID
	cand interfaces.Candidate
	pref float64
}

// Solve 实现 interfaces.Solver
func (s *Proportional) Solve(in interfaces.SolverInput) interfaces.SolverOutput {
	out := make(interfaces.SolverOutput)

	byScope := make(map[types.NetworkType][]choice)
	for _, peer := range sortedPeers(in.Candidates) {
		pref := in.Preferences[peer]
		cand, ok := s.selectAddress(in.Candidates[peer], in.Quotas, pref)
		if !ok {
			continue
		}
		byScope[cand.Scope] = append(byScope[cand.Scope], choice{
			peer: peer,
			cand: cand,
			pref: math.Max(0, pref.Bandwidth),
		})
	}

	for scope, choices := range byScope {
		s.distribute(in.Quotas[scope], choices, out)
	}
	return out
}

// ============================================================================
//                              地址选择
// ============================================================================

// selectAddress 选择节点的地址
//
// 所在范围任一方向配额为 0 的地址不可选。当前地址为活跃地址，
// 没有活跃地址时为传输层正在使用的地址。
func (s *Proportional) selectAddress(cands []interfaces.Candidate, quotas map[types.NetworkType]types.Bandwidth, pref interfaces.PeerPreference) (interfaces.Candidate, bool) {
	var (
		best    interfaces.Candidate
		found   bool
		current interfaces.Candidate
		hasCurr bool
	)
	for _, c := range cands {
		q := quotas[c.Scope]
		if q.In == 0 || q.Out == 0 {
			continue
		}
		if c.Active || (c.InUse && !current.Active) {
			current, hasCurr = c, true
		}
		if !found || better(c, best) {
			best, found = c, true
		}
	}
	if !found {
		return interfaces.Candidate{}, false
	}
	if !hasCurr || best.ID == current.ID {
		return best, true
	}

	// 时延偏好越高越容易切换
	stability := s.cfg.StabilityFactor
	if pref.Latency > 0 {
		stability = math.Max(1, stability/(1+pref.Latency))
	}
	if best.Distance < current.Distance {
		return best, true
	}
	if best.Distance != current.Distance {
		return current, true
	}
	if float64(best.Delay)*stability < float64(current.Delay) {
		return best, true
	}
	if best.Delay == current.Delay && best.HasCapacity() && !current.HasCapacity() {
		return best, true
	}
	return current, true
}

// better a 是否优于 b：跳数少者优先，其次时延低，
// 再次有测得吞吐量者优先，最后按标识
func better(a, b interfaces.Candidate) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.Delay != b.Delay {
		return a.Delay < b.Delay
	}
	if a.HasCapacity() != b.HasCapacity() {
		return a.HasCapacity()
	}
	return a.ID < b.ID
}

// ============================================================================
//                              带宽分摊
// ============================================================================

// distribute 在一个网络范围内分摊配额
func (s *Proportional) distribute(quota types.Bandwidth, choices []choice, out interfaces.SolverOutput) {
	// 偏好高者优先获得准入
	sort.SliceStable(choices, func(i, j int) bool {
		if choices[i].pref != choices[j].pref {
			return choices[i].pref > choices[j].pref
		}
		return choices[i].peer.Compare(choices[j].peer) < 0
	})

	admitted := len(choices)
	if minBW := s.cfg.MinBandwidth; minBW > 0 {
		limit := quota.In / minBW
		if o := quota.Out / minBW; o < limit {
			limit = o
		}
		if uint64(admitted) > limit {
			log.Debug("scope oversubscribed", "peers", admitted, "admitted", limit)
			admitted = int(limit)
		}
	}
	if admitted == 0 {
		return
	}
	choices = choices[:admitted]

	var maxPref float64
	for _, c := range choices {
		maxPref = math.Max(maxPref, c.pref)
	}
	weights := make([]float64, len(choices))
	var total float64
	for i, c := range choices {
		rel := 0.0
		if maxPref > 0 {
			rel = c.pref / maxPref
		}
		weights[i] = 1 + s.cfg.ProportionalityFactor*rel
		total += weights[i]
	}

	n := uint64(admitted)
	restIn := quota.In - n*s.cfg.MinBandwidth
	restOut := quota.Out - n*s.cfg.MinBandwidth
	for i, c := range choices {
		share := weights[i] / total
		out[c.peer] = interfaces.Assignment{
			Candidate: c.cand.ID,
			Bandwidth: types.Bandwidth{
				In:  s.cfg.MinBandwidth + portion(restIn, share),
				Out: s.cfg.MinBandwidth + portion(restOut, share),
			},
		}
	}
}

// portion 向下取整的份额，保证总和不超过 rest
func portion(rest uint64, share float64) uint64 {
	v := math.Floor(float64(rest) * share)
	if v <= 0 {
		return 0
	}
	if v >= float64(rest) {
		return rest
	}
	return uint64(v)
}

func sortedPeers(m map[types.PeerID][]interfaces.Candidate) []types.PeerID {
	out := make([]types.PeerID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
