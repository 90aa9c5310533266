// Package proto defines the shared domain model for procurement cases:
// DTP stages, intents, tasks, artifacts, and case state. It has no
// dependencies on other caseflow packages so every layer can use it.
package proto

import "fmt"

// Stage identifies one of the six ordered DTP pipeline phases.
type Stage string

const (
	StageStrategy    Stage = "DTP-01"
	StagePlanning    Stage = "DTP-02"
	StageSourcing    Stage = "DTP-03"
	StageNegotiation Stage = "DTP-04"
	StageContracting Stage = "DTP-05"
	StageExecution   Stage = "DTP-06"
)

// Stages lists all DTP stages in pipeline order.
var Stages = []Stage{
	StageStrategy,
	StagePlanning,
	StageSourcing,
	StageNegotiation,
	StageContracting,
	StageExecution,
}

var stageNames = map[Stage]string{
	StageStrategy:    "Strategy",
	StagePlanning:    "Planning",
	StageSourcing:    "Sourcing",
	StageNegotiation: "Negotiation",
	StageContracting: "Contracting",
	StageExecution:   "Execution",
}

// StageTransitions is the allowed-transition DAG. Only forward moves are
// permitted. Planning is the single branching stage: competitive paths go
// to Sourcing, renewal/simplified paths go straight to Negotiation.
// Execution is terminal and self-loops.
var StageTransitions = map[Stage][]Stage{
	StageStrategy:    {StagePlanning},
	StagePlanning:    {StageSourcing, StageNegotiation},
	StageSourcing:    {StageNegotiation},
	StageNegotiation: {StageContracting},
	StageContracting: {StageExecution},
	StageExecution:   {StageExecution},
}

// ApprovalStages are the stages that always require human approval before
// an artifact pack is acted on, regardless of intent. Negotiation and
// contracting carry binding commercial commitments.
var ApprovalStages = map[Stage]bool{
	StageNegotiation: true,
	StageContracting: true,
}

// String returns the stage identifier, e.g. "DTP-02".
func (s Stage) String() string { return string(s) }

// Name returns the human-readable stage name, e.g. "Planning".
func (s Stage) Name() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return string(s)
}

// Display returns "DTP-02 (Planning)" style labels for user-facing text.
func (s Stage) Display() string {
	return fmt.Sprintf("%s (%s)", string(s), s.Name())
}

// Valid reports whether s is a known DTP stage.
func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// Terminal reports whether s is the terminal stage.
func (s Stage) Terminal() bool { return s == StageExecution }

// CanTransition reports whether moving from s to target is an edge in the
// allowed-transition DAG.
func (s Stage) CanTransition(target Stage) bool {
	for _, next := range StageTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// NextStages returns a copy of the allowed next stages for s.
func (s Stage) NextStages() []Stage {
	next := StageTransitions[s]
	out := make([]Stage, len(next))
	copy(out, next)
	return out
}

// Index returns the position of s in pipeline order, or -1 if unknown.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}
