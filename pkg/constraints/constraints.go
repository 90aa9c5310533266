// Package constraints holds binding user preferences extracted
// deterministically from case conversation. Constraints are read by
// the planner and injected into generation prompts; generation output
// never creates or modifies them.
package constraints

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"caseflow/pkg/proto"
)

// Level is a three-valued preference with an explicit unspecified state.
type Level string

const (
	Unspecified Level = "UNSPECIFIED"
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Posture is the negotiation stance preference.
type Posture string

const (
	PostureUnspecified   Posture = "UNSPECIFIED"
	PostureAggressive    Posture = "AGGRESSIVE"
	PostureCollaborative Posture = "COLLABORATIVE"
)

// Field names used in extraction audit records and compliance checks.
const (
	FieldDisruptionTolerance = "disruption_tolerance"
	FieldRiskAppetite        = "risk_appetite"
	FieldTimeSensitivity     = "time_sensitivity"
	FieldBudgetFlexibility   = "budget_flexibility"
	FieldMaxBudget           = "max_budget_usd"
	FieldPreferredSupplier   = "preferred_supplier"
	FieldExcludedSuppliers   = "excluded_suppliers"
	FieldNegotiationPosture  = "negotiation_posture"
	FieldPriorityCriteria    = "priority_criteria"
)

// Extraction records where a constraint value came from.
type Extraction struct {
	Field   string      `json:"field"`
	Value   string      `json:"value"`
	Excerpt string      `json:"excerpt"`
	Pattern string      `json:"pattern"`
	Stage   proto.Stage `json:"stage"`
}

// ExecutionConstraints is the active preference set for one case.
// Every field defaults to its unspecified state.
type ExecutionConstraints struct {
	DisruptionTolerance Level        `json:"disruption_tolerance"`
	RiskAppetite        Level        `json:"risk_appetite"`
	TimeSensitivity     Level        `json:"time_sensitivity"`
	BudgetFlexibility   Level        `json:"budget_flexibility"`
	MaxBudgetUSD        float64      `json:"max_budget_usd"` // 0 means unspecified
	PreferredSupplier   string       `json:"preferred_supplier"`
	ExcludedSuppliers   []string     `json:"excluded_suppliers"`
	NegotiationPosture  Posture      `json:"negotiation_posture"`
	PriorityCriteria    []string     `json:"priority_criteria"`
	Extractions         []Extraction `json:"extractions"`
}

// NewExecutionConstraints returns a fully unspecified set.
func NewExecutionConstraints() ExecutionConstraints {
	return ExecutionConstraints{
		DisruptionTolerance: Unspecified,
		RiskAppetite:        Unspecified,
		TimeSensitivity:     Unspecified,
		BudgetFlexibility:   Unspecified,
		NegotiationPosture:  PostureUnspecified,
	}
}

// Active reports whether any constraint has been specified.
func (c *ExecutionConstraints) Active() bool {
	return c.DisruptionTolerance != Unspecified ||
		c.RiskAppetite != Unspecified ||
		c.TimeSensitivity != Unspecified ||
		c.BudgetFlexibility != Unspecified ||
		c.MaxBudgetUSD > 0 ||
		c.PreferredSupplier != "" ||
		len(c.ExcludedSuppliers) > 0 ||
		c.NegotiationPosture != PostureUnspecified ||
		len(c.PriorityCriteria) > 0
}

// ActiveFields lists specified constraints as field/value pairs, in a
// stable order, for compliance checking and prompt rendering.
func (c *ExecutionConstraints) ActiveFields() []Extraction {
	var out []Extraction
	add := func(field, value string) {
		out = append(out, Extraction{Field: field, Value: value})
	}

	if c.DisruptionTolerance != Unspecified {
		add(FieldDisruptionTolerance, string(c.DisruptionTolerance))
	}
	if c.RiskAppetite != Unspecified {
		add(FieldRiskAppetite, string(c.RiskAppetite))
	}
	if c.TimeSensitivity != Unspecified {
		add(FieldTimeSensitivity, string(c.TimeSensitivity))
	}
	if c.BudgetFlexibility != Unspecified {
		add(FieldBudgetFlexibility, string(c.BudgetFlexibility))
	}
	if c.MaxBudgetUSD > 0 {
		add(FieldMaxBudget, fmt.Sprintf("%.0f", c.MaxBudgetUSD))
	}
	if c.PreferredSupplier != "" {
		add(FieldPreferredSupplier, c.PreferredSupplier)
	}
	if len(c.ExcludedSuppliers) > 0 {
		add(FieldExcludedSuppliers, strings.Join(c.ExcludedSuppliers, ", "))
	}
	if c.NegotiationPosture != PostureUnspecified {
		add(FieldNegotiationPosture, string(c.NegotiationPosture))
	}
	if len(c.PriorityCriteria) > 0 {
		add(FieldPriorityCriteria, strings.Join(c.PriorityCriteria, ", "))
	}
	return out
}

// Merge folds newer into c: specified fields overwrite, list fields
// union, extraction records append.
func (c *ExecutionConstraints) Merge(newer ExecutionConstraints) {
	if newer.DisruptionTolerance != Unspecified {
		c.DisruptionTolerance = newer.DisruptionTolerance
	}
	if newer.RiskAppetite != Unspecified {
		c.RiskAppetite = newer.RiskAppetite
	}
	if newer.TimeSensitivity != Unspecified {
		c.TimeSensitivity = newer.TimeSensitivity
	}
	if newer.BudgetFlexibility != Unspecified {
		c.BudgetFlexibility = newer.BudgetFlexibility
	}
	if newer.MaxBudgetUSD > 0 {
		c.MaxBudgetUSD = newer.MaxBudgetUSD
	}
	if newer.PreferredSupplier != "" {
		c.PreferredSupplier = newer.PreferredSupplier
	}
	c.ExcludedSuppliers = unionStrings(c.ExcludedSuppliers, newer.ExcludedSuppliers)
	if newer.NegotiationPosture != PostureUnspecified {
		c.NegotiationPosture = newer.NegotiationPosture
	}
	c.PriorityCriteria = unionStrings(c.PriorityCriteria, newer.PriorityCriteria)
	c.Extractions = append(c.Extractions, newer.Extractions...)
}

// PromptBlock renders the active constraints for inclusion in a
// generation prompt. Empty string when nothing is active.
func (c *ExecutionConstraints) PromptBlock() string {
	fields := c.ActiveFields()
	if len(fields) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Binding user constraints (must be respected or explicitly addressed):\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, "- %s: %s\n", f.Field, f.Value)
	}
	return sb.String()
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(s))
	}
	sort.Strings(out)
	return out
}

// Store holds per-case constraint sets. Created on first touch,
// dropped on case close.
type Store struct {
	byCase map[string]*ExecutionConstraints
	mu     sync.RWMutex
}

// NewStore creates an empty constraint store.
func NewStore() *Store {
	return &Store{byCase: make(map[string]*ExecutionConstraints)}
}

// Get returns a copy of the case's constraints.
func (s *Store) Get(caseID string) ExecutionConstraints {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.byCase[caseID]; ok {
		return *c
	}
	return NewExecutionConstraints()
}

// Apply extracts constraints from the message and merges them into the
// case's set, returning the merged result and the new extractions.
func (s *Store) Apply(caseID, message string, stage proto.Stage) (ExecutionConstraints, []Extraction) {
	extracted := Extract(message, stage)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byCase[caseID]
	if !ok {
		fresh := NewExecutionConstraints()
		current = &fresh
		s.byCase[caseID] = current
	}
	current.Merge(extracted)
	return *current, extracted.Extractions
}

// Drop removes a case's constraints on case close.
func (s *Store) Drop(caseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byCase, caseID)
}
