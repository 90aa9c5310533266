package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTransitions(t *testing.T) {
	tests := []struct {
		from    Stage
		to      Stage
		allowed bool
	}{
		{StageStrategy, StagePlanning, true},
		{StageStrategy, StageSourcing, false},
		{StagePlanning, StageSourcing, true},
		{StagePlanning, StageNegotiation, true},
		{StagePlanning, StageContracting, false},
		{StageSourcing, StageNegotiation, true},
		{StageSourcing, StagePlanning, false},
		{StageNegotiation, StageContracting, true},
		{StageContracting, StageExecution, true},
		{StageExecution, StageExecution, true},
		{StageExecution, StageStrategy, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestStageDisplay(t *testing.T) {
	assert.Equal(t, "DTP-02 (Planning)", StagePlanning.Display())
	assert.Equal(t, "DTP-06 (Execution)", StageExecution.Display())
	assert.True(t, StageExecution.Terminal())
	assert.False(t, StageContracting.Terminal())
	assert.False(t, Stage("DTP-99").Valid())
}

func TestStageIndexFollowsPipelineOrder(t *testing.T) {
	for i, st := range Stages {
		assert.Equal(t, i, st.Index())
	}
	assert.Equal(t, -1, Stage("unknown").Index())
}

func TestNewCaseState(t *testing.T) {
	cs := NewCaseState("CASE-100", "CAT-IT-HW")
	assert.Equal(t, StageStrategy, cs.Stage)
	assert.Equal(t, CaseInProgress, cs.Status)
	assert.False(t, cs.WaitingForHuman)
	assert.True(t, cs.CheckInvariants())
}

func TestCheckInvariantsWaitingStatusCoupling(t *testing.T) {
	cs := NewCaseState("CASE-101", "CAT-IT-HW")

	cs.WaitingForHuman = true
	assert.False(t, cs.CheckInvariants())

	cs.Status = CaseWaitingForHuman
	assert.True(t, cs.CheckInvariants())

	cs.WaitingForHuman = false
	assert.False(t, cs.CheckInvariants())
}

func TestCloneIsolatesActivityLog(t *testing.T) {
	cs := NewCaseState("CASE-102", "CAT-IT-HW")
	cs.ActivityLog = append(cs.ActivityLog, ActivityEntry{Message: "first"})

	cp := cs.Clone()
	cp.ActivityLog = append(cp.ActivityLog, ActivityEntry{Message: "second"})
	cp.Stage = StagePlanning

	require.Len(t, cs.ActivityLog, 1)
	assert.Equal(t, StageStrategy, cs.Stage)
}

func TestDeriveVerification(t *testing.T) {
	ref := GroundingRef{SourceType: GroundDataRow, SourceID: "SUP-001"}

	grounded := Artifact{Claims: []Claim{
		{Text: "a", GroundedIn: []GroundingRef{ref}},
		{Text: "b", GroundedIn: []GroundingRef{ref}},
	}}
	assert.Equal(t, Verified, grounded.DeriveVerification())

	mixed := Artifact{Claims: []Claim{
		{Text: "a", GroundedIn: []GroundingRef{ref}},
		{Text: "b"},
	}}
	assert.Equal(t, Partial, mixed.DeriveVerification())

	bare := Artifact{Claims: []Claim{{Text: "a"}}}
	assert.Equal(t, Unverified, bare.DeriveVerification())

	noClaims := Artifact{GroundedIn: []GroundingRef{ref}}
	assert.Equal(t, Verified, noClaims.DeriveVerification())
}

func TestAgentAllowedAt(t *testing.T) {
	assert.True(t, AgentAllowedAt(AgentSourcingSignal, StageStrategy))
	assert.True(t, AgentAllowedAt(AgentSupplierScoring, StageNegotiation))
	assert.False(t, AgentAllowedAt(AgentImplementation, StageStrategy))
	assert.False(t, AgentAllowedAt(AgentContract, StageNegotiation))
}

func TestIntentReadOnly(t *testing.T) {
	status := Intent{Category: IntentStatus}
	assert.True(t, status.ReadOnly(false))
	assert.True(t, status.ReadOnly(true))

	explain := Intent{Category: IntentExplain}
	assert.False(t, explain.ReadOnly(false))
	assert.True(t, explain.ReadOnly(true))

	explore := Intent{Category: IntentExplore}
	assert.False(t, explore.ReadOnly(true))
}
