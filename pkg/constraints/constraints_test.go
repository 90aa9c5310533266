package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/pkg/proto"
)

func TestExtractLevels(t *testing.T) {
	tests := []struct {
		name    string
		message string
		check   func(t *testing.T, c ExecutionConstraints)
	}{
		{
			name:    "low disruption",
			message: "We want minimal disruption to operations",
			check: func(t *testing.T, c ExecutionConstraints) {
				assert.Equal(t, LevelLow, c.DisruptionTolerance)
			},
		},
		{
			name:    "high disruption",
			message: "We are open to switching suppliers entirely",
			check: func(t *testing.T, c ExecutionConstraints) {
				assert.Equal(t, LevelHigh, c.DisruptionTolerance)
			},
		},
		{
			name:    "urgency",
			message: "This is urgent, we need it done asap",
			check: func(t *testing.T, c ExecutionConstraints) {
				assert.Equal(t, LevelHigh, c.TimeSensitivity)
			},
		},
		{
			name:    "strict budget",
			message: "There is a hard cap on spend this quarter",
			check: func(t *testing.T, c ExecutionConstraints) {
				assert.Equal(t, LevelLow, c.BudgetFlexibility)
			},
		},
		{
			name:    "nothing",
			message: "What is the status of the case?",
			check: func(t *testing.T, c ExecutionConstraints) {
				assert.False(t, c.Active())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Extract(tt.message, proto.StageStrategy)
			tt.check(t, c)
		})
	}
}

func TestExtractMaxBudget(t *testing.T) {
	tests := []struct {
		message string
		want    float64
	}{
		{"Keep it under $250,000 total", 250000},
		{"budget of 80k for this", 80000},
		{"no more than $1.5m", 1500000},
		{"capped at 500000", 500000},
	}
	for _, tt := range tests {
		c := Extract(tt.message, proto.StageStrategy)
		assert.InDelta(t, tt.want, c.MaxBudgetUSD, 0.01, "message: %s", tt.message)
	}
}

func TestExtractSuppliers(t *testing.T) {
	c := Extract("Please avoid Meridian Supply and stick with Northfield", proto.StageSourcing)
	assert.Contains(t, c.ExcludedSuppliers, "Meridian Supply")
	assert.Equal(t, "Northfield", c.PreferredSupplier)
}

func TestExtractRecordsAudit(t *testing.T) {
	c := Extract("This is urgent and we must not exceed budget", proto.StagePlanning)
	require.NotEmpty(t, c.Extractions)
	for _, e := range c.Extractions {
		assert.Equal(t, proto.StagePlanning, e.Stage)
		assert.NotEmpty(t, e.Excerpt)
		assert.NotEmpty(t, e.Pattern)
	}
}

func TestMergeOverwritesAndUnions(t *testing.T) {
	base := NewExecutionConstraints()
	base.RiskAppetite = LevelLow
	base.ExcludedSuppliers = []string{"Atlas Components"}

	newer := NewExecutionConstraints()
	newer.RiskAppetite = LevelHigh
	newer.ExcludedSuppliers = []string{"Meridian Supply", "atlas components"}

	base.Merge(newer)
	assert.Equal(t, LevelHigh, base.RiskAppetite)
	assert.Len(t, base.ExcludedSuppliers, 2)
}

func TestPromptBlock(t *testing.T) {
	c := NewExecutionConstraints()
	assert.Empty(t, c.PromptBlock())

	c.DisruptionTolerance = LevelHigh
	c.MaxBudgetUSD = 50000
	block := c.PromptBlock()
	assert.Contains(t, block, "disruption_tolerance: HIGH")
	assert.Contains(t, block, "max_budget_usd: 50000")
}

func TestStoreApplyAccumulates(t *testing.T) {
	s := NewStore()

	merged, extractions := s.Apply("CASE-001", "We want minimal disruption", proto.StageStrategy)
	assert.Equal(t, LevelLow, merged.DisruptionTolerance)
	assert.NotEmpty(t, extractions)

	merged, _ = s.Apply("CASE-001", "Also this is urgent", proto.StageStrategy)
	assert.Equal(t, LevelLow, merged.DisruptionTolerance)
	assert.Equal(t, LevelHigh, merged.TimeSensitivity)

	// Other cases are isolated.
	other := s.Get("CASE-002")
	assert.False(t, other.Active())

	s.Drop("CASE-001")
	dropped := s.Get("CASE-001")
	assert.False(t, dropped.Active())
}
