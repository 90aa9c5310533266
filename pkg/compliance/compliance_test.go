package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/pkg/config"
	"caseflow/pkg/constraints"
	"caseflow/pkg/memory"
)

func activeConstraints() constraints.ExecutionConstraints {
	ec := constraints.NewExecutionConstraints()
	ec.DisruptionTolerance = constraints.LevelHigh
	return ec
}

func TestNoConstraintsVerdict(t *testing.T) {
	ec := constraints.NewExecutionConstraints()
	res := Check("any output at all", &ec, nil)
	assert.Equal(t, NoConstraints, res.Verdict)
	assert.False(t, res.Blocking)

	res = Check("any output", nil, nil)
	assert.Equal(t, NoConstraints, res.Verdict)
}

func TestKeywordSatisfiesConstraint(t *testing.T) {
	ec := activeConstraints()
	res := Check("We recommend a competitive rebid to reset pricing.", &ec, nil)
	assert.Equal(t, Compliant, res.Verdict)
	assert.Contains(t, res.Addressed, constraints.FieldDisruptionTolerance)
	assert.Empty(t, res.Violations)
}

func TestSilenceIsAViolation(t *testing.T) {
	ec := activeConstraints()
	res := Check("The incumbent renews on current terms.", &ec, nil)
	require.Equal(t, NonCompliant, res.Verdict)
	assert.True(t, res.Blocking)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, constraints.FieldDisruptionTolerance, res.Violations[0].Field)
	assert.Equal(t, ViolationMissingReference, res.Violations[0].Type)
}

func TestJustificationPhraseSatisfies(t *testing.T) {
	ec := activeConstraints()
	res := Check("The disruption tolerance preference does not apply to this status report.", &ec, nil)
	assert.Equal(t, Compliant, res.Verdict)
}

func TestExcludedSupplierMentionContradicts(t *testing.T) {
	ec := constraints.NewExecutionConstraints()
	ec.ExcludedSuppliers = []string{"Meridian Supply Co"}

	res := Check("Meridian Supply Co ranks second on price.", &ec, nil)
	require.Equal(t, NonCompliant, res.Verdict)
	assert.Equal(t, ViolationContradicted, res.Violations[0].Type)

	res = Check("Meridian Supply Co was excluded per your instruction.", &ec, nil)
	assert.Equal(t, Compliant, res.Verdict)

	res = Check("Two suppliers remain on the shortlist.", &ec, nil)
	assert.Equal(t, Compliant, res.Verdict)
}

func TestPriorityCriteriaEachChecked(t *testing.T) {
	ec := constraints.NewExecutionConstraints()
	ec.PriorityCriteria = []string{"quality", "sustainability"}

	res := Check("Quality weighs heaviest in the ranking.", &ec, nil)
	require.Equal(t, NonCompliant, res.Verdict)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "sustainability", res.Violations[0].Value)
}

func TestCheckIsIdempotent(t *testing.T) {
	ec := constraints.NewExecutionConstraints()
	ec.RiskAppetite = constraints.LevelLow
	ec.MaxBudgetUSD = 100000

	text := "A conservative shortlist keeps cost within the stated budget."
	first := Check(text, &ec, nil)
	second := Check(text, &ec, nil)
	assert.Equal(t, first, second)
}

func TestDetectContradictions(t *testing.T) {
	mem := memory.NewCaseMemory("CASE-1", config.MemoryCfg{MaxInteractions: 20, MaxIntents: 5, MaxDecisions: 10})
	mem.LastStrategy = "competitive_bid"
	mem.LastSupplier = "SUP-001"

	cs := DetectContradictions("strategic", "SUP-002", mem)
	require.Len(t, cs, 2)
	assert.Equal(t, "strategy", cs[0].Field)
	assert.Equal(t, "competitive_bid", cs[0].OldValue)
	assert.Equal(t, "strategic", cs[0].NewValue)
	assert.Equal(t, "supplier", cs[1].Field)

	// Same values, case-insensitive, raise nothing.
	assert.Empty(t, DetectContradictions("Competitive_Bid", "sup-001", mem))
	// Empty new values never contradict.
	assert.Empty(t, DetectContradictions("", "", mem))
	assert.Empty(t, DetectContradictions("strategic", "SUP-002", nil))
}

func TestReflectionNamesPreferences(t *testing.T) {
	ec := constraints.NewExecutionConstraints()
	ec.DisruptionTolerance = constraints.LevelLow
	ec.NegotiationPosture = constraints.PostureCollaborative

	text := Reflection(&ec, Result{Verdict: Compliant})
	assert.Contains(t, text, "minimizing disruption is a priority")
	assert.Contains(t, text, "relationship preservation is important")

	withViolations := Reflection(&ec, Result{
		Verdict:    NonCompliant,
		Violations: []Violation{{Field: "disruption_tolerance", Expected: "output should reference the LOW disruption tolerance preference"}},
	})
	assert.Contains(t, withViolations, "could not be fully addressed")

	empty := constraints.NewExecutionConstraints()
	assert.Empty(t, Reflection(&empty, Result{}))
}

func TestContradictionWarningShowsBothValues(t *testing.T) {
	warning := ContradictionWarning([]Contradiction{
		{Field: "supplier", OldValue: "SUP-001", NewValue: "SUP-002"},
	})
	assert.Contains(t, warning, `"SUP-001"`)
	assert.Contains(t, warning, `"SUP-002"`)
	assert.Empty(t, ContradictionWarning(nil))
}
