package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/pkg/constraints"
	"caseflow/pkg/planner"
	"caseflow/pkg/proto"
)

func runScoringChain(t *testing.T, r *Runner, tc *Context) []ScoredSupplier {
	t.Helper()
	ctx := context.Background()
	for _, name := range []proto.TaskName{
		proto.TaskBuildEvaluationCriteria,
		proto.TaskPullSupplierPerformance,
		proto.TaskNormalizeMetrics,
		proto.TaskComputeScoresAndRank,
	} {
		res := r.Run(ctx, name, tc)
		require.Equal(t, proto.TaskCompleted, res.Status, "task %s", name)
	}
	ranked, ok := fromData[[]ScoredSupplier](tc, "ranked_suppliers")
	require.True(t, ok)
	return ranked
}

func TestScoringChainRanksSeededSuppliers(t *testing.T) {
	r, _, _ := testRunner(t)
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))

	ranked := runScoringChain(t, r, tc)
	require.Len(t, ranked, 3)

	assert.Equal(t, "SUP-001", ranked[0].SupplierID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.True(t, ranked[0].Incumbent)
	assert.InDelta(t, 8.72, ranked[0].TotalScore, 0.001)

	assert.Equal(t, "SUP-003", ranked[2].SupplierID)
	assert.Equal(t, 3, ranked[2].Rank)
	assert.Greater(t, ranked[1].TotalScore, ranked[2].TotalScore)
}

func TestExcludedSupplierRanksLast(t *testing.T) {
	r, _, _ := testRunner(t)
	ec := constraints.NewExecutionConstraints()
	ec.ExcludedSuppliers = []string{"Northfield Technology"}
	ec.PreferredSupplier = "SUP-002"

	tc := NewContext(testCase("CASE-1"), &ec, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))
	ranked := runScoringChain(t, r, tc)
	require.Len(t, ranked, 3)

	// The strongest supplier is excluded by the user, so it drops to the
	// bottom regardless of score.
	assert.Equal(t, "SUP-001", ranked[2].SupplierID)
	assert.True(t, ranked[2].Excluded)
	assert.Equal(t, "SUP-002", ranked[0].SupplierID)
	assert.True(t, ranked[0].Preferred)
}

func TestPriorityCriteriaShiftWeights(t *testing.T) {
	r, _, _ := testRunner(t)
	ec := constraints.NewExecutionConstraints()
	ec.PriorityCriteria = []string{"Risk"}

	tc := NewContext(testCase("CASE-1"), &ec, planner.PathwayCompetitiveBid, nil)
	res := r.Run(context.Background(), proto.TaskBuildEvaluationCriteria, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)

	criteria, ok := res.Data["criteria"].([]Criterion)
	require.True(t, ok)
	require.Len(t, criteria, 3)

	var total, riskWeight float64
	for _, c := range criteria {
		total += c.Weight
		if c.Name == "Risk" {
			riskWeight = c.Weight
		}
	}
	assert.InDelta(t, 1.0, total, 0.001)
	assert.InDelta(t, 0.50/1.15, riskWeight, 0.001)
}

func TestEligibilityChecksPullDataWhenMissing(t *testing.T) {
	r, _, _ := testRunner(t)
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))

	res := r.Run(context.Background(), proto.TaskEligibilityChecks, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)

	eligible, ok := res.Data["eligible_suppliers"].([]string)
	require.True(t, ok)
	// All seeded suppliers clear the quality floor and risk ceiling.
	assert.Len(t, eligible, 3)
	assert.Empty(t, res.Data["ineligible_suppliers"])
}

func TestGenerateExplanationsNarratesTopRanked(t *testing.T) {
	r, mock, _ := testRunner(t)
	mock.Script("supplier ranking", "Northfield leads on quality and delivery.")

	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))
	runScoringChain(t, r, tc)

	res := r.Run(context.Background(), proto.TaskGenerateExplanations, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	assert.Contains(t, res.Data["explanation"], "Northfield Technology")
	assert.Equal(t, "Northfield leads on quality and delivery.", res.Data["narrative"])
}
