// Package compliance enforces the constraint accounting invariant: no
// produced output is released unless it explicitly addresses every
// active execution constraint, either by satisfying it or by stating
// why it cannot be satisfied. The checker is rule based and pure; it
// never calls the generation backend.
package compliance

import (
	"fmt"
	"strings"

	"caseflow/pkg/constraints"
	"caseflow/pkg/memory"
)

// Verdict is the outcome of a compliance check.
type Verdict string

const (
	NoConstraints Verdict = "NO_CONSTRAINTS"
	Compliant     Verdict = "COMPLIANT"
	NonCompliant  Verdict = "NON_COMPLIANT"
)

// Violation types.
const (
	ViolationMissingReference = "missing_reference"
	ViolationContradicted     = "contradicted"
)

// Violation is one active constraint the output failed to account for.
type Violation struct {
	Field    string `json:"field"`
	Value    string `json:"value"`
	Expected string `json:"expected"`
	Type     string `json:"type"`
}

// Result is the full outcome of one check.
type Result struct {
	Verdict    Verdict     `json:"verdict"`
	Violations []Violation `json:"violations,omitempty"`
	Addressed  []string    `json:"addressed,omitempty"`
	// Blocking means the output must not be released without the
	// reflection annotation prepended.
	Blocking bool `json:"blocking"`
}

// Contradiction pairs a remembered decision value with a new one that
// disagrees. Both values are surfaced; the human resolves.
type Contradiction struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// levelKeywords maps each constraint field and level to the terms that
// count as addressing it.
var levelKeywords = map[string]map[constraints.Level][]string{
	constraints.FieldDisruptionTolerance: {
		constraints.LevelHigh:   {"disruption", "aggressive", "competitive", "change", "switch"},
		constraints.LevelLow:    {"stability", "continuity", "conservative", "maintain", "incumbent"},
		constraints.LevelMedium: {"balanced", "moderate", "careful"},
	},
	constraints.FieldRiskAppetite: {
		constraints.LevelHigh:   {"risk", "aggressive", "bold", "opportunity"},
		constraints.LevelLow:    {"risk", "conservative", "safe", "caution"},
		constraints.LevelMedium: {"balanced risk", "moderate risk", "measured"},
	},
	constraints.FieldTimeSensitivity: {
		constraints.LevelHigh:   {"urgent", "fast", "quick", "immediate", "speed", "timeline"},
		constraints.LevelLow:    {"thorough", "time", "careful", "comprehensive"},
		constraints.LevelMedium: {"balanced", "reasonable timeline"},
	},
	constraints.FieldBudgetFlexibility: {
		constraints.LevelHigh:   {"budget", "flexible", "invest", "value"},
		constraints.LevelLow:    {"budget", "cost", "fixed", "limit", "constraint"},
		constraints.LevelMedium: {"budget", "balanced", "moderate"},
	},
}

var postureKeywords = map[constraints.Posture][]string{
	constraints.PostureAggressive:    {"leverage", "aggressive", "competitive", "push", "maximize"},
	constraints.PostureCollaborative: {"partnership", "collaborative", "relationship", "win-win"},
}

// justificationPhrases let an output satisfy a constraint by explicitly
// stating it does not apply to this result.
var justificationPhrases = []string{
	"does not apply",
	"not applicable",
	"cannot be satisfied",
	"could not be addressed",
	"unable to satisfy",
	"no impact on",
}

// Check evaluates the output text against every active constraint. It
// is a pure function: identical inputs always yield identical results.
func Check(artifactText string, ec *constraints.ExecutionConstraints, mem *memory.CaseMemory) Result {
	if ec == nil || !ec.Active() {
		return Result{Verdict: NoConstraints}
	}

	text := strings.ToLower(artifactText)
	var violations []Violation
	var addressed []string

	record := func(field, value string, ok bool, expected, vtype string) {
		if ok {
			addressed = append(addressed, field)
			return
		}
		violations = append(violations, Violation{Field: field, Value: value, Expected: expected, Type: vtype})
	}

	checkLevel := func(field string, level constraints.Level) {
		if level == constraints.Unspecified {
			return
		}
		ok := containsAnyKeyword(text, levelKeywords[field][level]) || justified(text, field)
		record(field, string(level), ok,
			fmt.Sprintf("output should reference the %s %s preference", level, humanize(field)),
			ViolationMissingReference)
	}

	checkLevel(constraints.FieldDisruptionTolerance, ec.DisruptionTolerance)
	checkLevel(constraints.FieldRiskAppetite, ec.RiskAppetite)
	checkLevel(constraints.FieldTimeSensitivity, ec.TimeSensitivity)
	checkLevel(constraints.FieldBudgetFlexibility, ec.BudgetFlexibility)

	if ec.MaxBudgetUSD > 0 {
		ok := containsAnyKeyword(text, []string{"budget", "cost", "price", "$"}) ||
			justified(text, constraints.FieldMaxBudget)
		record(constraints.FieldMaxBudget, fmt.Sprintf("%.0f", ec.MaxBudgetUSD), ok,
			"output should address the stated budget cap", ViolationMissingReference)
	}

	if ec.PreferredSupplier != "" {
		ok := strings.Contains(text, strings.ToLower(ec.PreferredSupplier)) ||
			justified(text, constraints.FieldPreferredSupplier)
		record(constraints.FieldPreferredSupplier, ec.PreferredSupplier, ok,
			fmt.Sprintf("output should address the preference for %s", ec.PreferredSupplier),
			ViolationMissingReference)
	}

	if ec.NegotiationPosture != constraints.PostureUnspecified {
		ok := containsAnyKeyword(text, postureKeywords[ec.NegotiationPosture]) ||
			justified(text, constraints.FieldNegotiationPosture)
		record(constraints.FieldNegotiationPosture, string(ec.NegotiationPosture), ok,
			fmt.Sprintf("output should reflect the %s negotiation posture", ec.NegotiationPosture),
			ViolationMissingReference)
	}

	for _, criterion := range ec.PriorityCriteria {
		ok := strings.Contains(text, strings.ToLower(criterion)) ||
			justified(text, constraints.FieldPriorityCriteria)
		record(constraints.FieldPriorityCriteria, criterion, ok,
			fmt.Sprintf("output should reference priority criterion %q", criterion),
			ViolationMissingReference)
	}

	// An excluded supplier appearing in the output without exclusion
	// language contradicts the constraint outright.
	for _, excluded := range ec.ExcludedSuppliers {
		name := strings.ToLower(excluded)
		mentioned := strings.Contains(text, name)
		if mentioned && !strings.Contains(text, "exclud") && !strings.Contains(text, "removed") {
			record(constraints.FieldExcludedSuppliers, excluded, false,
				fmt.Sprintf("%s must be excluded from consideration", excluded),
				ViolationContradicted)
			continue
		}
		record(constraints.FieldExcludedSuppliers, excluded, true, "", "")
	}

	if len(violations) > 0 {
		return Result{Verdict: NonCompliant, Violations: violations, Addressed: addressed, Blocking: true}
	}
	return Result{Verdict: Compliant, Addressed: addressed}
}

// DetectContradictions compares the new output's primary decision
// fields against the values remembered from earlier cycles.
func DetectContradictions(newStrategy, newSupplier string, mem *memory.CaseMemory) []Contradiction {
	if mem == nil {
		return nil
	}
	var out []Contradiction
	if newStrategy != "" && mem.LastStrategy != "" && !strings.EqualFold(newStrategy, mem.LastStrategy) {
		out = append(out, Contradiction{Field: "strategy", OldValue: mem.LastStrategy, NewValue: newStrategy})
	}
	if newSupplier != "" && mem.LastSupplier != "" && !strings.EqualFold(newSupplier, mem.LastSupplier) {
		out = append(out, Contradiction{Field: "supplier", OldValue: mem.LastSupplier, NewValue: newSupplier})
	}
	return out
}

// Reflection renders the mandatory acknowledgment text prepended to a
// pack narrative when the check is non-compliant or constraints are
// active. Empty when there is nothing to say.
func Reflection(ec *constraints.ExecutionConstraints, res Result) string {
	if ec == nil || !ec.Active() {
		return ""
	}

	var phrases []string
	switch ec.DisruptionTolerance {
	case constraints.LevelHigh:
		phrases = append(phrases, "disruption is acceptable")
	case constraints.LevelLow:
		phrases = append(phrases, "minimizing disruption is a priority")
	}
	switch ec.RiskAppetite {
	case constraints.LevelHigh:
		phrases = append(phrases, "you're comfortable with risk")
	case constraints.LevelLow:
		phrases = append(phrases, "a conservative approach is preferred")
	}
	switch ec.TimeSensitivity {
	case constraints.LevelHigh:
		phrases = append(phrases, "speed is critical")
	case constraints.LevelLow:
		phrases = append(phrases, "thoroughness is valued over speed")
	}
	switch ec.BudgetFlexibility {
	case constraints.LevelLow:
		phrases = append(phrases, "the budget is fixed")
	case constraints.LevelHigh:
		phrases = append(phrases, "there's budget flexibility if justified")
	}
	if ec.MaxBudgetUSD > 0 {
		phrases = append(phrases, fmt.Sprintf("the budget cap is $%.0f", ec.MaxBudgetUSD))
	}
	if ec.PreferredSupplier != "" {
		phrases = append(phrases, fmt.Sprintf("%s is the preferred supplier", ec.PreferredSupplier))
	}
	switch ec.NegotiationPosture {
	case constraints.PostureAggressive:
		phrases = append(phrases, "an aggressive negotiation approach is preferred")
	case constraints.PostureCollaborative:
		phrases = append(phrases, "relationship preservation is important")
	}
	if len(ec.PriorityCriteria) > 0 {
		phrases = append(phrases, fmt.Sprintf("%s take priority", strings.Join(ec.PriorityCriteria, ", ")))
	}
	if len(ec.ExcludedSuppliers) > 0 {
		phrases = append(phrases, fmt.Sprintf("%s are excluded from consideration", strings.Join(ec.ExcludedSuppliers, ", ")))
	}

	var sb strings.Builder
	sb.WriteString("Based on your stated preferences: ")
	sb.WriteString(joinPhrases(phrases))
	sb.WriteString(".")

	if len(res.Violations) > 0 {
		sb.WriteString("\n\nNote: some constraints could not be fully addressed:\n")
		for i, v := range res.Violations {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&sb, "- %s: %s\n", v.Field, v.Expected)
		}
	}
	return sb.String()
}

// ContradictionWarning renders the conflict notice appended to a
// response when old and new decision values disagree.
func ContradictionWarning(cs []Contradiction) string {
	if len(cs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Heads up: conflicting information detected:\n")
	for i, c := range cs {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&sb, "- %s changed from %q to %q\n", c.Field, c.OldValue, c.NewValue)
	}
	sb.WriteString("Please review and confirm how you'd like to proceed.")
	return sb.String()
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// justified reports an explicit statement that the constraint does not
// bear on this output. The field must be named near the phrase's
// sentence for the justification to count.
func justified(text, field string) bool {
	name := humanize(field)
	if !strings.Contains(text, name) {
		return false
	}
	for _, phrase := range justificationPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func humanize(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

func joinPhrases(phrases []string) string {
	switch len(phrases) {
	case 0:
		return "no specific preferences are recorded"
	case 1:
		return phrases[0]
	case 2:
		return phrases[0] + " and " + phrases[1]
	default:
		return strings.Join(phrases[:len(phrases)-1], ", ") + ", and " + phrases[len(phrases)-1]
	}
}
