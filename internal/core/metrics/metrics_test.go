package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

// TestNew_Register 测试注册到私有注册表
func TestNew_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ClockAnomalies.Inc()
	m.QueueDropped.WithLabelValues("cancel").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClockAnomalies))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueueDropped.WithLabelValues("cancel")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// 第二个实例使用独立注册表互不冲突
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
	assert.NotPanics(t, func() { Nop() })

	t.Log("✅ 指标注册正确")
}

// TestModule 测试 Fx 模块
func TestModule(t *testing.T) {
	var m *Metrics

	app := fxtest.New(t,
		Module(),
		fx.Populate(&m),
	)
	defer app.RequireStart().RequireStop()

	require.NotNil(t, m)
	m.Peers.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Peers))
}
