package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/pkg/config"
	"caseflow/pkg/gen"
	"caseflow/pkg/limiter"
	"caseflow/pkg/proto"
)

func testCfg() config.ClassifierCfg {
	return config.ClassifierCfg{
		RuleAcceptThreshold: 0.85,
		LLMOnlyThreshold:    0.70,
		CacheSize:           16,
	}
}

func testModel() config.ModelCfg {
	return config.ModelCfg{Backend: config.BackendMock, Model: "mock", CostPer1KIn: 0.15, CostPer1KOut: 0.60}
}

func TestRuleClassifySingleLevel(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		cc       Context
		category proto.IntentCategory
	}{
		{"status keyword", "What's the status of this case?", Context{HasOutput: true}, proto.IntentStatus},
		{"where are we", "where are we on the laptop refresh", Context{}, proto.IntentStatus},
		{"greeting", "hi there", Context{}, proto.IntentStatus},
		{"action verb", "run the signal scan", Context{}, proto.IntentDecide},
		{"explore", "what if we considered alternatives?", Context{HasOutput: true}, proto.IntentExplore},
		{"explain", "explain the supplier scoring", Context{HasOutput: true}, proto.IntentExplain},
		{"why question", "why did Northfield rank first?", Context{HasOutput: true}, proto.IntentExplain},
		{"short message", "ok thanks", Context{}, proto.IntentStatus},
		{"no match", "the weather was nice at the offsite last week", Context{}, proto.IntentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ruleClassify(tt.message, tt.cc)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, proto.SourceRule, got.Source)
		})
	}
}

func TestContextAdjustment(t *testing.T) {
	// Action verb with no prior output is forced to DECIDE at 0.95.
	got := ruleClassify("Scan signals for this category", Context{Stage: proto.StageStrategy, HasOutput: false})
	assert.Equal(t, proto.IntentDecide, got.Category)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)

	// A question about existing output prefers EXPLAIN over the verb.
	got = ruleClassify("Can you run me through what the analysis found?", Context{HasOutput: true})
	assert.Equal(t, proto.IntentExplain, got.Category)
}

func TestTwoLevelPass(t *testing.T) {
	tests := []struct {
		name    string
		message string
		goal    proto.Goal
		work    proto.WorkType
	}{
		{"scan signals special phrase", "scan signals for IT hardware", proto.GoalCreate, proto.WorkData},
		{"draft rfp", "draft RFP for the shortlisted suppliers", proto.GoalCreate, proto.WorkArtifact},
		{"score suppliers", "score suppliers in this category", proto.GoalCreate, proto.WorkData},
		{"check compliance", "check compliance of the draft", proto.GoalCheck, proto.WorkCompliance},
		{"savings", "track savings against the baseline", proto.GoalCreate, proto.WorkValue},
		{"generic verb", "prepare a negotiation strategy", proto.GoalCreate, proto.WorkArtifact},
		{"select supplier", "select the winning supplier", proto.GoalDecide, proto.WorkApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := twoLevel(tt.message, Context{}, proto.Intent{Category: proto.IntentDecide, Source: proto.SourceRule})
			assert.Equal(t, tt.goal, in.Goal)
			assert.Equal(t, tt.work, in.WorkType)
			assert.GreaterOrEqual(t, in.Confidence, 0.85)
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := New(nil, testModel(), testCfg())
	cc := Context{Stage: proto.StageStrategy, Status: proto.CaseInProgress}

	first := c.Classify(context.Background(), "Scan signals", cc)
	for i := 0; i < 5; i++ {
		got := c.Classify(context.Background(), "Scan signals", cc)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, proto.IntentDecide, first.Category)
	assert.Equal(t, proto.GoalCreate, first.Goal)
	assert.Equal(t, proto.WorkData, first.WorkType)
}

func TestClassifyHighConfidenceRuleSkipsBackend(t *testing.T) {
	mock := gen.NewMockGenerator("mock")
	c := New(mock, testModel(), testCfg())

	got := c.Classify(context.Background(), "What's the current status?", Context{HasOutput: true})
	assert.Equal(t, proto.IntentStatus, got.Category)
	assert.Equal(t, proto.SourceRule, got.Source)
	assert.Zero(t, mock.CallCount())
}

func TestClassifyLLMFallbackBelowFloor(t *testing.T) {
	mock := gen.NewMockGenerator("mock")
	mock.Script("offsite", `{"category":"GENERAL","goal":"","work_type":"","confidence":0.6,"rationale":"small talk"}`)
	c := New(mock, testModel(), testCfg())

	got := c.Classify(context.Background(), "the weather was nice at the offsite last week", Context{})
	assert.Equal(t, proto.IntentGeneral, got.Category)
	assert.Equal(t, proto.SourceLLM, got.Source)
	assert.Equal(t, 1, mock.CallCount())
}

func TestClassifyMergeBandHigherConfidenceWins(t *testing.T) {
	mock := gen.NewMockGenerator("mock")
	mock.Script("anything new", `{"category":"STATUS","goal":"","work_type":"","confidence":0.9,"rationale":"asking for an update"}`)
	c := New(mock, testModel(), testCfg())

	// "anything new on this one?" is an unmatched question: rule EXPLAIN
	// at 0.75, inside the merge band. Backend answers at 0.9 and wins.
	got := c.Classify(context.Background(), "anything new on this one?", Context{HasOutput: true})
	assert.Equal(t, proto.IntentStatus, got.Category)
	assert.Equal(t, proto.SourceMerged, got.Source)
}

func TestClassifyMergeBandTieFavorsRule(t *testing.T) {
	mock := gen.NewMockGenerator("mock")
	mock.Script("anything new", `{"category":"STATUS","goal":"","work_type":"","confidence":0.75,"rationale":"tie"}`)
	c := New(mock, testModel(), testCfg())

	got := c.Classify(context.Background(), "anything new on this one?", Context{HasOutput: true})
	assert.Equal(t, proto.IntentExplain, got.Category)
	assert.Equal(t, proto.SourceRule, got.Source)
}

func TestClassifyBackendFailureDegrades(t *testing.T) {
	mock := gen.NewMockGenerator("mock")
	mock.FailNext(errors.New("backend down"))
	c := New(mock, testModel(), testCfg())

	got := c.Classify(context.Background(), "the weather was nice at the offsite last week", Context{})
	assert.Equal(t, proto.IntentGeneral, got.Category)
	assert.Equal(t, proto.SourceRule, got.Source)
	assert.True(t, got.Degraded)
}

func TestClassifyUnparseableReplyDegrades(t *testing.T) {
	mock := gen.NewMockGenerator("mock")
	mock.Script("offsite", "sorry, I cannot help with that")
	c := New(mock, testModel(), testCfg())

	got := c.Classify(context.Background(), "the weather was nice at the offsite last week", Context{})
	assert.True(t, got.Degraded)
	assert.Equal(t, proto.SourceRule, got.Source)
}

func TestClassifyCacheAvoidsRepeatCalls(t *testing.T) {
	mock := gen.NewMockGenerator("mock")
	mock.Script("offsite", `{"category":"GENERAL","goal":"","work_type":"","confidence":0.6,"rationale":"small talk"}`)
	c := New(mock, testModel(), testCfg())
	cc := Context{Stage: proto.StageStrategy}

	first := c.Classify(context.Background(), "the weather was nice at the offsite last week", cc)
	second := c.Classify(context.Background(), "The weather  was nice at the offsite last week", cc)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.CallCount())

	// A different context misses the cache.
	c.Classify(context.Background(), "the weather was nice at the offsite last week", Context{Stage: proto.StageSourcing})
	assert.Equal(t, 2, mock.CallCount())
}

func TestClassifyExhaustedBudgetSkipsBackend(t *testing.T) {
	mock := gen.NewMockGenerator("mock")
	mock.Script("offsite", `{"category":"GENERAL","goal":"","work_type":"","confidence":0.6,"rationale":"small talk"}`)
	c := New(mock, testModel(), testCfg())

	lim := limiter.NewLimiter(config.ConstraintsCfg{MaxTokensPerTask: 10, MaxTokensPerCase: 10})
	budget := lim.ForCase("CASE-001")
	budget.Commit(10, 0.01)

	got := c.Classify(context.Background(), "the weather was nice at the offsite last week",
		Context{CaseID: "CASE-001", Budget: budget})
	assert.Zero(t, mock.CallCount())
	assert.Equal(t, proto.SourceRule, got.Source)
	assert.True(t, got.Degraded)
}

func TestClassifyBackendCallCommitsUsage(t *testing.T) {
	mock := gen.NewMockGenerator("mock")
	mock.Script("offsite", `{"category":"GENERAL","goal":"","work_type":"","confidence":0.6,"rationale":"small talk"}`)
	c := New(mock, testModel(), testCfg())

	lim := limiter.NewLimiter(config.ConstraintsCfg{MaxTokensPerTask: 900, MaxTokensPerCase: 3000})
	budget := lim.ForCase("CASE-002")

	c.Classify(context.Background(), "the weather was nice at the offsite last week",
		Context{CaseID: "CASE-002", Budget: budget})
	require.Equal(t, 1, mock.CallCount())

	tokens, cost := budget.Usage()
	assert.Positive(t, tokens)
	assert.Positive(t, cost)

	// A cache hit spends nothing further.
	c.Classify(context.Background(), "the weather was nice at the offsite last week",
		Context{CaseID: "CASE-002", Budget: budget})
	after, _ := budget.Usage()
	assert.Equal(t, tokens, after)
}

func TestStripFences(t *testing.T) {
	require.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
