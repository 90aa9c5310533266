package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/pkg/config"
	"caseflow/pkg/constraints"
	"caseflow/pkg/memory"
	"caseflow/pkg/proto"
)

func newPlanner(t *testing.T) *Planner {
	t.Helper()
	p, err := New(config.ConstraintsCfg{MaxPlanSteps: 6})
	require.NoError(t, err)
	return p
}

func decideIntent(goal proto.Goal, work proto.WorkType) proto.Intent {
	return proto.Intent{
		Category:   proto.IntentDecide,
		Goal:       goal,
		WorkType:   work,
		Confidence: 0.95,
		Source:     proto.SourceRule,
	}
}

func TestPlaybooksLoadAndValidate(t *testing.T) {
	books, err := loadPlaybooks(6)
	require.NoError(t, err)
	assert.Len(t, books.stages, 6)
	for agent, byName := range books.agents {
		require.Contains(t, byName, "default", "agent %s", agent)
	}
}

func TestPlaybooksRejectStepLimit(t *testing.T) {
	_, err := loadPlaybooks(3)
	assert.Error(t, err)
}

func TestPlanStrategyStage(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")

	plan, err := p.Plan(decideIntent(proto.GoalCreate, proto.WorkData), cs, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, proto.AgentSourcingSignal, plan.Agent)
	assert.Equal(t, "default", plan.Playbook)
	assert.Equal(t, []proto.TaskName{
		proto.TaskDetectContractExpiry,
		proto.TaskDetectPerformanceDrop,
		proto.TaskDetectSpendAnomalies,
		proto.TaskApplyRelevanceFilters,
		proto.TaskGroundedSignalSummary,
		proto.TaskAutoprepRecommendations,
	}, plan.Tasks)
	assert.False(t, plan.ApprovalRequired)
}

func TestPlanRejectsMissingCategory(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "")

	_, err := p.Plan(decideIntent(proto.GoalCreate, proto.WorkData), cs, nil, nil)
	var rej *PlanningRejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, proto.StageStrategy, rej.Stage)
	assert.Contains(t, rej.Reason, "category_id")
}

func TestPlanRejectsMissingSupplierAtNegotiation(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")
	cs.Stage = proto.StageNegotiation

	_, err := p.Plan(decideIntent(proto.GoalCreate, proto.WorkArtifact), cs, nil, nil)
	var rej *PlanningRejectedError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "supplier_id")
}

func TestPlanArtifactOverrideAtSourcing(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")
	cs.Stage = proto.StageSourcing

	plan, err := p.Plan(decideIntent(proto.GoalCreate, proto.WorkArtifact), cs, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, proto.AgentRfxDraft, plan.Agent)
	assert.Contains(t, plan.Tasks, proto.TaskDetermineRfxPath)

	// Data work at the same stage goes to supplier scoring.
	plan, err = p.Plan(decideIntent(proto.GoalCreate, proto.WorkData), cs, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, proto.AgentSupplierScoring, plan.Agent)
}

func TestPlanApprovalPolicy(t *testing.T) {
	p := newPlanner(t)

	// DECIDE goal requires approval at any stage.
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")
	plan, err := p.Plan(decideIntent(proto.GoalDecide, proto.WorkApproval), cs, nil, nil)
	require.NoError(t, err)
	assert.True(t, plan.ApprovalRequired)

	// Negotiation and contracting stages always require approval.
	cs.Stage = proto.StageNegotiation
	cs.SupplierID = "SUP-001"
	plan, err = p.Plan(decideIntent(proto.GoalCreate, proto.WorkArtifact), cs, nil, nil)
	require.NoError(t, err)
	assert.True(t, plan.ApprovalRequired)

	cs.Stage = proto.StageContracting
	cs.ContractID = "CTR-1001"
	plan, err = p.Plan(decideIntent(proto.GoalCreate, proto.WorkData), cs, nil, nil)
	require.NoError(t, err)
	assert.True(t, plan.ApprovalRequired)
}

func TestPlanCheckPlaybook(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")
	cs.Stage = proto.StagePlanning

	plan, err := p.Plan(decideIntent(proto.GoalCheck, proto.WorkCompliance), cs, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "check", plan.Playbook)
	assert.Equal(t, []proto.TaskName{
		proto.TaskEligibilityChecks,
		proto.TaskPullRiskIndicators,
		proto.TaskGenerateExplanations,
	}, plan.Tasks)
}

func TestPlanTrackOverrideAtPlanning(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")
	cs.Stage = proto.StagePlanning

	plan, err := p.Plan(proto.Intent{
		Category: proto.IntentDecide, Goal: proto.GoalTrack, WorkType: proto.WorkData,
		Confidence: 0.9, Source: proto.SourceRule,
	}, cs, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, proto.AgentSourcingSignal, plan.Agent)
	assert.Equal(t, "track", plan.Playbook)
}

func TestPlanDeterministic(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")
	intent := decideIntent(proto.GoalCreate, proto.WorkData)

	first, err := p.Plan(intent, cs, nil, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := p.Plan(intent, cs, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPlanConstraintNote(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")

	ec := constraints.NewExecutionConstraints()
	ec.MaxBudgetUSD = 250_000
	plan, err := p.Plan(decideIntent(proto.GoalCreate, proto.WorkData), cs, nil, &ec)
	require.NoError(t, err)
	assert.Contains(t, plan.Rationale, constraints.FieldMaxBudget)
}

func TestPlanReworkAfterRejection(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")
	cs.Stage = proto.StagePlanning

	mem := memory.NewCaseMemory("CASE-1", config.MemoryCfg{
		MaxInteractions: 10, MaxIntents: 10, MaxDecisions: 10,
	})
	mem.RecordDecision(memory.Decision{
		Stage: proto.StagePlanning, Approved: false,
		Note: "benchmark data is stale, refresh it first",
	})

	plan, err := p.Plan(decideIntent(proto.GoalCreate, proto.WorkData), cs, mem, nil)
	require.NoError(t, err)
	assert.Equal(t, "benchmark data is stale, refresh it first", plan.ReworkNote)
	assert.True(t, plan.ApprovalRequired)
	assert.Contains(t, plan.Rationale, "rework after rejection")
	assert.Contains(t, plan.Rationale, "stale")
}

func TestPlanIgnoresRejectionAtOtherStage(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")
	cs.Stage = proto.StagePlanning

	mem := memory.NewCaseMemory("CASE-1", config.MemoryCfg{
		MaxInteractions: 10, MaxIntents: 10, MaxDecisions: 10,
	})
	// Rejected at strategy, but the case has since moved on.
	mem.RecordDecision(memory.Decision{
		Stage: proto.StageStrategy, Approved: false, Note: "wrong category",
	})

	plan, err := p.Plan(decideIntent(proto.GoalCreate, proto.WorkData), cs, mem, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.ReworkNote)
	assert.NotContains(t, plan.Rationale, "rework")
}

func TestPlanApprovedDecisionIsNotRework(t *testing.T) {
	p := newPlanner(t)
	cs := proto.NewCaseState("CASE-1", "CAT-IT-HW")

	mem := memory.NewCaseMemory("CASE-1", config.MemoryCfg{
		MaxInteractions: 10, MaxIntents: 10, MaxDecisions: 10,
	})
	mem.RecordDecision(memory.Decision{
		Stage: proto.StageStrategy, Approved: true, Note: "looks good",
	})

	plan, err := p.Plan(decideIntent(proto.GoalCreate, proto.WorkData), cs, mem, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.ReworkNote)
	assert.False(t, plan.ApprovalRequired)
}

func TestSelectPathway(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		strategic bool
		want      string
	}{
		{"simplified", 12_000, false, PathwaySimplified},
		{"boundary 50k stays simplified", 50_000, false, PathwaySimplified},
		{"competitive", 120_000, false, PathwayCompetitiveBid},
		{"strategic by value", 750_000, false, PathwayStrategic},
		{"strategic by flag", 10_000, true, PathwayStrategic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := proto.NewCaseState("C", "CAT")
			cs.EstimatedValue = tt.value
			cs.Strategic = tt.strategic
			assert.Equal(t, tt.want, SelectPathway(cs))
		})
	}
}
