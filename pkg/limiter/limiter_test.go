package limiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/pkg/config"
)

func testConstraints() config.ConstraintsCfg {
	return config.ConstraintsCfg{
		MaxTokensPerTask: 900,
		MaxTokensPerCase: 3000,
		MaxToolCalls:     3,
		MaxPlanSteps:     6,
		TaskTimeoutSec:   60,
	}
}

func TestCaseBudgetEnforced(t *testing.T) {
	l := NewLimiter(testConstraints())
	cl := l.ForCase("CASE-001")

	require.NoError(t, cl.Reserve(900))
	cl.Commit(900, 0.01)
	cl.Commit(900, 0.01)
	cl.Commit(900, 0.01)

	// 2700 used, 300 left.
	assert.Equal(t, 300, cl.Remaining())
	require.NoError(t, cl.Reserve(300))
	err := cl.Reserve(301)
	assert.ErrorIs(t, err, ErrCaseBudgetExceeded)
}

func TestForCaseReturnsSameLimiter(t *testing.T) {
	l := NewLimiter(testConstraints())
	a := l.ForCase("CASE-001")
	b := l.ForCase("CASE-001")
	assert.Same(t, a, b)

	c := l.ForCase("CASE-002")
	assert.NotSame(t, a, c)
}

func TestTaskBudgetClampedToCaseRemainder(t *testing.T) {
	l := NewLimiter(testConstraints())
	d := l.NewDispatch("CASE-001")

	assert.Equal(t, 900, d.TaskBudget())

	l.ForCase("CASE-001").Commit(2800, 0.05)
	assert.Equal(t, 200, d.TaskBudget())

	l.ForCase("CASE-001").Commit(200, 0.01)
	assert.Equal(t, 0, d.TaskBudget())
	assert.True(t, l.ForCase("CASE-001").Exhausted())
}

func TestReserveTaskChecksBothCaps(t *testing.T) {
	l := NewLimiter(testConstraints())
	d := l.NewDispatch("CASE-001")

	assert.ErrorIs(t, d.ReserveTask(901), ErrTaskBudgetExceeded)

	l.ForCase("CASE-001").Commit(2500, 0.02)
	assert.ErrorIs(t, d.ReserveTask(600), ErrCaseBudgetExceeded)
	assert.NoError(t, d.ReserveTask(500))
}

func TestToolCallLimit(t *testing.T) {
	l := NewLimiter(testConstraints())
	d := l.NewDispatch("CASE-001")

	for i := 0; i < 3; i++ {
		require.NoError(t, d.CountToolCall())
	}
	assert.ErrorIs(t, d.CountToolCall(), ErrToolCallLimit)
}

func TestPlanStepLimit(t *testing.T) {
	l := NewLimiter(testConstraints())
	d := l.NewDispatch("CASE-001")

	assert.NoError(t, d.CheckPlanSteps(6))
	assert.ErrorIs(t, d.CheckPlanSteps(7), ErrPlanStepLimit)
}

func TestDispatchCommitFlowsToCase(t *testing.T) {
	l := NewLimiter(testConstraints())
	d := l.NewDispatch("CASE-001")

	d.Commit(150, 0.002)
	tokens, cost := l.ForCase("CASE-001").Usage()
	assert.Equal(t, 150, tokens)
	assert.InDelta(t, 0.002, cost, 1e-9)
}
