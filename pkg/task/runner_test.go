package task

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/pkg/config"
	"caseflow/pkg/constraints"
	"caseflow/pkg/gen"
	"caseflow/pkg/limiter"
	"caseflow/pkg/planner"
	"caseflow/pkg/proto"
	"caseflow/pkg/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, st.Seed())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testRunner(t *testing.T) (*Runner, *gen.MockGenerator, *store.Store) {
	t.Helper()
	st := testStore(t)
	mock := gen.NewMockGenerator("mock")
	r := NewRunner(st, nil, mock, config.ModelCfg{Model: "mock", MaxReplyTokens: 128}, config.ConstraintsCfg{TaskTimeoutSec: 10})
	return r, mock, st
}

func testDispatch(caseID string) *limiter.Dispatch {
	lim := limiter.NewLimiter(config.ConstraintsCfg{
		MaxTokensPerTask: 2000,
		MaxTokensPerCase: 20000,
		MaxToolCalls:     10,
		MaxPlanSteps:     6,
	})
	return lim.NewDispatch(caseID)
}

func testCase(caseID string) *proto.CaseState {
	return proto.NewCaseState(caseID, "CAT-IT-HW")
}

func TestUnknownTaskErrors(t *testing.T) {
	r, _, _ := testRunner(t)
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, nil)

	res := r.Run(context.Background(), proto.TaskName("no_such_task"), tc)
	assert.Equal(t, proto.TaskErrored, res.Status)
	assert.Contains(t, res.Err, "unknown task")
}

func TestRulesShortCircuitSkipsLaterPhases(t *testing.T) {
	r, mock, _ := testRunner(t)
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwaySimplified, testDispatch("CASE-1"))

	res := r.Run(context.Background(), proto.TaskDetermineRfxPath, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	assert.Equal(t, "RFQ", res.Data["rfx_type"])
	assert.Zero(t, res.TokensUsed)
	assert.Zero(t, mock.CallCount())
	require.Len(t, res.GroundedIn, 1)
	assert.Equal(t, proto.GroundRule, res.GroundedIn[0].SourceType)
}

func TestRfxTypeFollowsPathwayAndInputs(t *testing.T) {
	r, _, _ := testRunner(t)

	noCategory := proto.NewCaseState("CASE-2", "")
	tc := NewContext(noCategory, nil, planner.PathwayCompetitiveBid, nil)
	res := r.Run(context.Background(), proto.TaskDetermineRfxPath, tc)
	assert.Equal(t, "RFI", res.Data["rfx_type"])

	tc = NewContext(testCase("CASE-3"), nil, planner.PathwayStrategic, nil)
	res = r.Run(context.Background(), proto.TaskDetermineRfxPath, tc)
	assert.Equal(t, "RFP", res.Data["rfx_type"])
}

func TestSkippedTaskCarriesNoOutput(t *testing.T) {
	r, mock, _ := testRunner(t)
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, nil)

	// No drafted questions in context, so the tracker does not apply.
	res := r.Run(context.Background(), proto.TaskCreateQATracker, tc)
	assert.Equal(t, proto.TaskSkipped, res.Status)
	assert.Nil(t, res.Data)
	assert.Nil(t, res.GroundedIn)
	assert.Zero(t, res.TokensUsed)
	assert.Zero(t, mock.CallCount())
}

func TestRetrievalFailureClearsGrounding(t *testing.T) {
	r, _, st := testRunner(t)
	require.NoError(t, st.Close())

	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, nil)
	res := r.Run(context.Background(), proto.TaskCompareBids, tc)
	assert.Equal(t, proto.TaskErrored, res.Status)
	assert.NotEmpty(t, res.Err)
	assert.Nil(t, res.GroundedIn)
}

func TestToolCallLimitStopsRetrieval(t *testing.T) {
	r, _, _ := testRunner(t)
	lim := limiter.NewLimiter(config.ConstraintsCfg{
		MaxTokensPerTask: 2000,
		MaxTokensPerCase: 20000,
		MaxToolCalls:     0,
		MaxPlanSteps:     6,
	})
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, lim.NewDispatch("CASE-1"))

	res := r.Run(context.Background(), proto.TaskCompareBids, tc)
	assert.Equal(t, proto.TaskErrored, res.Status)
	assert.Contains(t, res.Err, limiter.ErrToolCallLimit.Error())
}

func TestSignalPipelineOverSeededData(t *testing.T) {
	r, _, _ := testRunner(t)
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))
	ctx := context.Background()

	for _, name := range []proto.TaskName{
		proto.TaskDetectContractExpiry,
		proto.TaskDetectPerformanceDrop,
		proto.TaskDetectSpendAnomalies,
		proto.TaskApplyRelevanceFilters,
	} {
		res := r.Run(ctx, name, tc)
		require.Equal(t, proto.TaskCompleted, res.Status, "task %s", name)
	}

	signals, ok := fromData[[]Signal](tc, "signals")
	require.True(t, ok)
	require.NotEmpty(t, signals)

	byType := make(map[string]int)
	for _, s := range signals {
		byType[s.Type]++
	}
	// Seeded data: one contract inside the 90-day window, one supplier
	// below the on-time floor and above the risk ceiling, one spend spike.
	assert.Equal(t, 1, byType["contract_expiry"])
	assert.Equal(t, 1, byType["performance_degradation"])
	assert.Equal(t, 1, byType["risk_alert"])
	assert.Equal(t, 1, byType["spend_anomaly"])

	// Sorted by severity, so the single high-severity risk alert leads.
	assert.Equal(t, "risk_alert", signals[0].Type)
	urgency, ok := fromData[int](tc, "urgency_score")
	require.True(t, ok)
	assert.Equal(t, 7, urgency)
}

func TestAutoprepRecommendationsFollowSignals(t *testing.T) {
	r, _, _ := testRunner(t)
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, nil)
	tc.Data["signals"] = []Signal{
		{Type: "contract_expiry", Severity: "high", ContractID: "CTR-1001", DaysUntilExpiry: 20},
		{Type: "risk_alert", Severity: "high", SupplierID: "SUP-003"},
	}

	res := r.Run(context.Background(), proto.TaskAutoprepRecommendations, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)

	recs, ok := res.Data["recommendations"].([]Recommendation)
	require.True(t, ok)
	require.Len(t, recs, 2)
	assert.Equal(t, "Review contract terms", recs[0].Action)
	assert.Equal(t, "Evaluate alternative suppliers", recs[1].Action)

	inputs, ok := res.Data["required_inputs"].([]string)
	require.True(t, ok)
	assert.Contains(t, inputs, "Current contract document")
	assert.Contains(t, inputs, "Approved supplier list")
}

func TestNarrationCommitsTokens(t *testing.T) {
	r, mock, _ := testRunner(t)
	mock.Script("Summarize these sourcing signals", "Two issues need attention this quarter.")

	d := testDispatch("CASE-1")
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, d)
	tc.Data["signals"] = []Signal{{Type: "risk_alert", Severity: "high", Message: "supplier risk above ceiling"}}
	tc.Data["urgency_score"] = 7

	res := r.Run(context.Background(), proto.TaskGroundedSignalSummary, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	assert.Equal(t, "Two issues need attention this quarter.", res.Data["narrative"])
	assert.Positive(t, res.TokensUsed)
	assert.Less(t, d.CaseRemaining(), 20000)
}

func TestNarrationBudgetExhaustionKeepsResults(t *testing.T) {
	r, mock, _ := testRunner(t)
	lim := limiter.NewLimiter(config.ConstraintsCfg{
		MaxTokensPerTask: 1,
		MaxTokensPerCase: 20000,
		MaxToolCalls:     10,
		MaxPlanSteps:     6,
	})
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, lim.NewDispatch("CASE-1"))
	tc.Data["signals"] = []Signal{{Type: "risk_alert", Severity: "high", Message: "supplier risk above ceiling"}}

	res := r.Run(context.Background(), proto.TaskGroundedSignalSummary, tc)
	assert.Equal(t, proto.TaskCompleted, res.Status)
	assert.Contains(t, res.Err, limiter.ErrTaskBudgetExceeded.Error())
	assert.NotContains(t, res.Data, "narrative")
	assert.NotEmpty(t, res.Data["summary"])
	assert.Zero(t, mock.CallCount())
}

func TestNarrationLeadsWithReworkNote(t *testing.T) {
	r, mock, _ := testRunner(t)
	mock.Script("rejected by the reviewer: numbers disagree with the bid table",
		"Revised summary addressing the objection.")

	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))
	tc.Rework = "numbers disagree with the bid table"
	tc.Data["signals"] = []Signal{{Type: "risk_alert", Severity: "high", Message: "supplier risk above ceiling"}}

	res := r.Run(context.Background(), proto.TaskGroundedSignalSummary, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	assert.Equal(t, "Revised summary addressing the objection.", res.Data["narrative"])
}

func TestNarrationTruncatesOversizedPrompt(t *testing.T) {
	r, mock, _ := testRunner(t)

	lim := limiter.NewLimiter(config.ConstraintsCfg{
		MaxTokensPerTask: 600,
		MaxTokensPerCase: 20000,
		MaxToolCalls:     10,
		MaxPlanSteps:     6,
	})
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, lim.NewDispatch("CASE-1"))

	// Far more prompt text than the per-task budget can carry.
	prompt := strings.Repeat("quarterly spend drifted well outside the historical band. ", 400)
	res := proto.TaskResult{TaskName: proto.TaskGroundedSignalSummary, Status: proto.TaskCompleted}
	r.narrate(context.Background(), tc, &res, prompt)

	assert.Empty(t, res.Err)
	assert.Contains(t, res.Data, "narrative")
	assert.Equal(t, 1, mock.CallCount())
}

func TestNarrationBackendFailureMarksErrored(t *testing.T) {
	r, mock, _ := testRunner(t)
	mock.FailNext(errors.New("backend down"))

	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))
	tc.Data["signals"] = []Signal{{Type: "risk_alert", Severity: "high", Message: "supplier risk above ceiling"}}

	res := r.Run(context.Background(), proto.TaskGroundedSignalSummary, tc)
	assert.Equal(t, proto.TaskErrored, res.Status)
	assert.Contains(t, res.Err, "backend down")
	assert.Nil(t, res.GroundedIn)
	assert.NotEmpty(t, res.Data["summary"])
}

func TestNegotiationPipeline(t *testing.T) {
	r, _, st := testRunner(t)
	require.NoError(t, st.SeedBidsForCase("CASE-1"))

	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))
	ctx := context.Background()

	res := r.Run(ctx, proto.TaskCompareBids, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	assert.Equal(t, 3, res.Data["bid_count"])
	assert.InDelta(t, 1095.0, res.Data["price_low_usd"], 0.01)
	assert.InDelta(t, 44.29, res.Data["price_spread_pct"].(float64), 0.1)
	assert.Len(t, res.GroundedIn, 3)

	res = r.Run(ctx, proto.TaskPriceAnomalyDetection, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	anomalies, ok := res.Data["price_anomalies"].([]PriceAnomaly)
	require.True(t, ok)
	// Mean bid is 1275; only the 1580 bid deviates beyond 20%.
	require.Len(t, anomalies, 1)
	assert.Equal(t, "SUP-003", anomalies[0].SupplierID)
	assert.Equal(t, "above", anomalies[0].Direction)

	res = r.Run(ctx, proto.TaskLeverageExtraction, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	points, ok := res.Data["leverage_points"].([]LeveragePoint)
	require.True(t, ok)
	types := make(map[string]bool)
	for _, lp := range points {
		types[lp.Type] = true
	}
	assert.True(t, types["price_competition"])
	assert.True(t, types["competition"])
	assert.True(t, types["price_anomaly"])

	res = r.Run(ctx, proto.TaskProposeTargets, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	targets, ok := res.Data["negotiation_targets"].(NegotiationTargets)
	require.True(t, ok)
	assert.InDelta(t, 1095*0.95, targets.TargetPriceUSD, 0.01)
	assert.InDelta(t, 1095.0, targets.FallbackPriceUSD, 0.01)
	assert.InDelta(t, 1095*1.10, targets.WalkawayPriceUSD, 0.01)
	assert.Equal(t, "standard", targets.Posture)
}

func TestProposeTargetsHonorsPostureAndBudget(t *testing.T) {
	r, _, _ := testRunner(t)

	ec := constraints.NewExecutionConstraints()
	ec.NegotiationPosture = constraints.PostureAggressive
	ec.MaxBudgetUSD = 1100

	tc := NewContext(testCase("CASE-1"), &ec, planner.PathwayCompetitiveBid, nil)
	tc.Data["price_low_usd"] = 1095.0

	res := r.Run(context.Background(), proto.TaskProposeTargets, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	targets := res.Data["negotiation_targets"].(NegotiationTargets)
	assert.Equal(t, "aggressive", targets.Posture)
	assert.InDelta(t, 1095*0.92, targets.TargetPriceUSD, 0.01)
	// Walk-away is capped by the stated budget.
	assert.InDelta(t, 1100.0, targets.WalkawayPriceUSD, 0.01)
}

func TestContractReviewChain(t *testing.T) {
	r, _, _ := testRunner(t)
	cs := testCase("CASE-1")
	cs.SupplierID = "SUP-002"
	cs.ContractID = "CTR-1002"

	tc := NewContext(cs, nil, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))
	ctx := context.Background()

	res := r.Run(ctx, proto.TaskExtractKeyTerms, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	terms, ok := res.Data["key_terms"].([]ContractTerm)
	require.True(t, ok)
	assert.Len(t, terms, 4)

	res = r.Run(ctx, proto.TaskTermValidation, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	issues, ok := res.Data["term_issues"].([]TermIssue)
	require.True(t, ok)
	// Seeded CTR-1002 auto-renews, which always warrants a reminder.
	require.Len(t, issues, 1)
	assert.Equal(t, "auto_renew", issues[0].Term)
	assert.Equal(t, false, res.Data["terms_valid"])

	res = r.Run(ctx, proto.TaskTermAlignmentSummary, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	assert.Equal(t, "issues found", res.Data["alignment_status"])

	res = r.Run(ctx, proto.TaskHandoffPacket, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	packet, ok := res.Data["handoff_packet"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CTR-1002", packet["contract_id"])
	items := packet["items"].([]HandoffItem)
	assert.Len(t, items, 5)
}

func TestExtractKeyTermsSkipsWithoutContract(t *testing.T) {
	r, _, _ := testRunner(t)
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, nil)

	res := r.Run(context.Background(), proto.TaskExtractKeyTerms, tc)
	assert.Equal(t, proto.TaskSkipped, res.Status)
}

func TestExpectedSavingsWithEstimatedBaseline(t *testing.T) {
	r, _, _ := testRunner(t)
	cs := testCase("CASE-1")
	cs.ContractID = "CTR-1001"

	tc := NewContext(cs, nil, planner.PathwayCompetitiveBid, testDispatch("CASE-1"))
	res := r.Run(context.Background(), proto.TaskComputeExpectedSavings, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)

	est, ok := res.Data["savings_estimate"].(SavingsEstimate)
	require.True(t, ok)
	assert.True(t, est.BaselineEstimated)
	assert.InDelta(t, 240000.0, est.NewAnnualUSD, 0.01)
	assert.InDelta(t, 264000.0, est.OldAnnualUSD, 0.01)
	assert.InDelta(t, 24000.0, est.TotalSavingsUSD, 0.01)
	assert.InDelta(t, est.TotalSavingsUSD*0.70, est.HardSavingsUSD, 0.01)
	assert.InDelta(t, est.TotalSavingsUSD*0.20, est.SoftSavingsUSD, 0.01)
	assert.InDelta(t, est.TotalSavingsUSD*0.10, est.CostAvoidanceUSD, 0.01)
}

func TestRolloutChecklistAndIndicators(t *testing.T) {
	r, _, _ := testRunner(t)
	tc := NewContext(testCase("CASE-1"), nil, planner.PathwayCompetitiveBid, nil)
	ctx := context.Background()

	res := r.Run(ctx, proto.TaskBuildRolloutChecklist, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	checklist := res.Data["rollout_checklist"].([]ChecklistItem)
	phases := make(map[string]bool)
	for _, item := range checklist {
		phases[item.Phase] = true
	}
	assert.Len(t, phases, 4)
	assert.Equal(t, 90, res.Data["rollout_days"])

	res = r.Run(ctx, proto.TaskDefineEarlyIndicators, tc)
	require.Equal(t, proto.TaskCompleted, res.Status)
	indicators := res.Data["early_indicators"].([]EarlyIndicator)
	assert.NotEmpty(t, indicators)
}

func TestDependsOnWalksTransitively(t *testing.T) {
	assert.True(t, DependsOn(proto.TaskNegotiationPlaybook, proto.TaskCompareBids))
	assert.True(t, DependsOn(proto.TaskGenerateExplanations, proto.TaskPullSupplierPerformance))
	assert.True(t, DependsOn(proto.TaskCreateQATracker, proto.TaskDetermineRfxPath))
	assert.False(t, DependsOn(proto.TaskDetectContractExpiry, proto.TaskCompareBids))
	assert.False(t, DependsOn(proto.TaskCompareBids, proto.TaskNegotiationPlaybook))
}
