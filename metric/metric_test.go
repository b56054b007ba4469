package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngine()
	require.NoError(t, m.Register(reg))

	m.RuleApplications.WithLabelValues("I900").Inc()
	m.FixpointPasses.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "noetic_rules_applications_total")
	assert.Contains(t, names, "noetic_rules_fixpoint_passes_total")
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngine()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}
