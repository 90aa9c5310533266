package constraints

import (
	"regexp"
	"strconv"
	"strings"

	"caseflow/pkg/proto"
)

// Phrase tables for deterministic extraction. Matching is substring
// based on the lowercased message; the matched phrase is the audit
// excerpt.
var levelPhrases = []struct {
	field   string
	level   Level
	phrases []string
}{
	{FieldDisruptionTolerance, LevelLow, []string{
		"minimal disruption", "no disruption", "avoid disruption", "without disrupting",
	}},
	{FieldDisruptionTolerance, LevelHigh, []string{
		"open to switching", "willing to switch", "open to alternatives", "disruption is fine",
	}},
	{FieldRiskAppetite, LevelLow, []string{
		"risk averse", "low risk", "play it safe", "minimize risk",
	}},
	{FieldRiskAppetite, LevelHigh, []string{
		"comfortable with risk", "high risk", "take some risk",
	}},
	{FieldTimeSensitivity, LevelHigh, []string{
		"urgent", "asap", "as soon as possible", "immediately", "time sensitive",
	}},
	{FieldTimeSensitivity, LevelLow, []string{
		"no rush", "no hurry", "whenever convenient",
	}},
	{FieldBudgetFlexibility, LevelLow, []string{
		"strict budget", "hard cap", "cannot exceed", "must not exceed", "tight budget",
	}},
	{FieldBudgetFlexibility, LevelHigh, []string{
		"flexible budget", "budget is flexible", "budget is not a concern",
	}},
}

var posturePhrases = []struct {
	posture Posture
	phrases []string
}{
	{PostureAggressive, []string{
		"negotiate hard", "hard bargain", "push on price", "aggressive negotiation",
	}},
	{PostureCollaborative, []string{
		"maintain the relationship", "collaborative", "partnership approach", "keep them happy",
	}},
}

var criterionPhrases = map[string][]string{
	"price":   {"prioritize price", "price matters most", "cheapest", "lowest price", "cost is key"},
	"quality": {"prioritize quality", "quality matters most", "quality over price", "best quality"},
	"speed":   {"prioritize speed", "fastest delivery", "speed matters most", "lead time is critical"},
	"service": {"prioritize service", "service matters most", "support is critical"},
}

var (
	maxBudgetRe = regexp.MustCompile(
		`(?i)(?:under|below|max(?:imum)?(?:\s+budget)?(?:\s+of)?|capped? at|no more than|budget of|up to)\s*\$?\s*([\d][\d,]*(?:\.\d+)?)\s*(k|m)?\b`)
	excludeRe = regexp.MustCompile(
		`(?i)(?:avoid|exclude|don't use|do not use|no longer use|drop)\s+([A-Z][\w&-]*(?:\s+[A-Z][\w&-]*)*)`)
	preferRe = regexp.MustCompile(
		`(?i)(?:prefer|stick with|stay with|must use|keep using)\s+([A-Z][\w&-]*(?:\s+[A-Z][\w&-]*)*)`)
)

// Extract derives constraints from one user message. Deterministic and
// side-effect free; every hit records its source phrase and stage.
func Extract(message string, stage proto.Stage) ExecutionConstraints {
	out := NewExecutionConstraints()
	lower := strings.ToLower(message)

	record := func(field, value, excerpt, pattern string) {
		out.Extractions = append(out.Extractions, Extraction{
			Field: field, Value: value, Excerpt: excerpt, Pattern: pattern, Stage: stage,
		})
	}

	for _, entry := range levelPhrases {
		for _, phrase := range entry.phrases {
			if strings.Contains(lower, phrase) {
				setLevel(&out, entry.field, entry.level)
				record(entry.field, string(entry.level), phrase, "phrase")
				break
			}
		}
	}

	for _, entry := range posturePhrases {
		for _, phrase := range entry.phrases {
			if strings.Contains(lower, phrase) {
				out.NegotiationPosture = entry.posture
				record(FieldNegotiationPosture, string(entry.posture), phrase, "phrase")
				break
			}
		}
	}

	for criterion, phrases := range criterionPhrases {
		for _, phrase := range phrases {
			if strings.Contains(lower, phrase) {
				out.PriorityCriteria = unionStrings(out.PriorityCriteria, []string{criterion})
				record(FieldPriorityCriteria, criterion, phrase, "phrase")
				break
			}
		}
	}

	if m := maxBudgetRe.FindStringSubmatch(message); m != nil {
		if amount, ok := parseAmount(m[1], m[2]); ok {
			out.MaxBudgetUSD = amount
			record(FieldMaxBudget, strconv.FormatFloat(amount, 'f', 0, 64), m[0], "regex")
		}
	}

	for _, m := range excludeRe.FindAllStringSubmatch(message, -1) {
		name := strings.TrimSpace(m[1])
		out.ExcludedSuppliers = unionStrings(out.ExcludedSuppliers, []string{name})
		record(FieldExcludedSuppliers, name, m[0], "regex")
	}

	if m := preferRe.FindStringSubmatch(message); m != nil {
		out.PreferredSupplier = strings.TrimSpace(m[1])
		record(FieldPreferredSupplier, out.PreferredSupplier, m[0], "regex")
	}

	return out
}

func setLevel(c *ExecutionConstraints, field string, level Level) {
	switch field {
	case FieldDisruptionTolerance:
		c.DisruptionTolerance = level
	case FieldRiskAppetite:
		c.RiskAppetite = level
	case FieldTimeSensitivity:
		c.TimeSensitivity = level
	case FieldBudgetFlexibility:
		c.BudgetFlexibility = level
	}
}

func parseAmount(number, suffix string) (float64, bool) {
	amount, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(suffix) {
	case "k":
		amount *= 1_000
	case "m":
		amount *= 1_000_000
	}
	return amount, true
}
