package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dep2p/go-ats/pkg/types"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("config: invalid config")

// ValidationError 配置校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置错误 [%s]: %s", e.Field, e.Message)
}

// ValidationErrors 多个配置校验错误
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap 使 errors.Is(err, ErrInvalidConfig) 成立
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Validator 配置校验器
type Validator struct {
	errors ValidationErrors
}

// NewValidator 创建校验器
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Errors 返回所有错误
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// Validate 校验配置
func Validate(cfg *Config) error {
	if cfg == nil {
		return ErrInvalidConfig
	}

	v := NewValidator()
	v.validateQuotas(&cfg.Quotas, cfg.Solver.MinBandwidth)
	v.validateMesh(&cfg.Mesh)
	v.validateSolver(&cfg.Solver)
	v.validatePreference(&cfg.Preference)
	v.validateSampler(&cfg.Sampler)

	if cfg.Address.AveragingWindow <= 0 {
		v.addError("address.averaging_window", "必须大于 0")
	}
	if cfg.Address.InterfaceRefresh <= 0 {
		v.addError("address.interface_refresh", "必须大于 0")
	}
	if cfg.Reservation.MaxCarry <= 0 {
		v.addError("reservation.max_carry", "必须大于 0")
	}
	if cfg.Diagnostics.EnableIntrospect && cfg.Diagnostics.IntrospectAddr == "" {
		v.addError("diagnostics.introspect_addr", "启用自省服务时不能为空")
	}

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	return Validate(c)
}

func (v *Validator) validateQuotas(q *QuotaConfig, minBW uint64) {
	for _, scope := range types.AllNetworkTypes() {
		quota := q.For(scope)
		// 配额为 0 表示该范围禁用；非 0 时至少容纳一个最低带宽地址
		if quota.Out != 0 && quota.Out < minBW {
			v.addError("quotas."+scope.String()+".out", "小于最低带宽")
		}
		if quota.In != 0 && quota.In < minBW {
			v.addError("quotas."+scope.String()+".in", "小于最低带宽")
		}
	}
}

func (v *Validator) validateMesh(m *MeshConfig) {
	if m.MaxPeers <= 0 {
		v.addError("mesh.max_peers", "必须大于 0")
	}
	if m.MaxQueuedMessages <= 0 {
		v.addError("mesh.max_queued_messages", "必须大于 0")
	}
	if m.MaxTunnelConnections <= 0 {
		v.addError("mesh.max_tunnel_connections", "必须大于 0")
	}
	if m.SearchCacheSize <= 0 {
		v.addError("mesh.search_cache_size", "必须大于 0")
	}
}

func (v *Validator) validateSolver(s *SolverConfig) {
	if s.ProportionalityFactor < 0 {
		v.addError("solver.proportionality_factor", "不能为负")
	}
	if s.StabilityFactor < 1 {
		v.addError("solver.stability_factor", "必须不小于 1")
	}
}

func (v *Validator) validatePreference(p *PreferenceConfig) {
	if p.AgingInterval <= 0 {
		v.addError("preference.aging_interval", "必须大于 0")
	}
	if p.AgingFactor <= 0 || p.AgingFactor >= 1 {
		v.addError("preference.aging_factor", "必须在 (0,1) 之间")
	}
	if p.Epsilon <= 0 {
		v.addError("preference.epsilon", "必须大于 0")
	}
}

func (v *Validator) validateSampler(s *SamplerConfig) {
	if s.Interval <= 0 {
		v.addError("sampler.interval", "必须大于 0")
	}
	if s.Alpha <= 0 || s.Alpha > 1 {
		v.addError("sampler.alpha", "必须在 (0,1] 之间")
	}
}
