package proto

// IntentCategory is the single-level classification of a user message.
type IntentCategory string

const (
	IntentStatus  IntentCategory = "STATUS"
	IntentExplain IntentCategory = "EXPLAIN"
	IntentExplore IntentCategory = "EXPLORE"
	IntentDecide  IntentCategory = "DECIDE"
	IntentGeneral IntentCategory = "GENERAL"
)

// Goal is the primary user goal in the two-level classification. It is
// populated only for DECIDE-class or ambiguous messages.
type Goal string

const (
	GoalTrack      Goal = "TRACK"
	GoalUnderstand Goal = "UNDERSTAND"
	GoalCreate     Goal = "CREATE"
	GoalCheck      Goal = "CHECK"
	GoalDecide     Goal = "DECIDE"
)

// WorkType is the secondary axis of the two-level classification.
type WorkType string

const (
	WorkArtifact   WorkType = "ARTIFACT"
	WorkData       WorkType = "DATA"
	WorkApproval   WorkType = "APPROVAL"
	WorkCompliance WorkType = "COMPLIANCE"
	WorkValue      WorkType = "VALUE"
)

// IntentSource records which classification path produced the result.
type IntentSource string

const (
	SourceRule   IntentSource = "rule"
	SourceLLM    IntentSource = "llm"
	SourceMerged IntentSource = "merged"
)

// Intent is the structured classification of one user message. It is
// transient: consumed by the Planner and recorded in the activity log,
// never persisted on its own.
type Intent struct {
	Category   IntentCategory `json:"category"`
	Goal       Goal           `json:"goal,omitempty"`
	WorkType   WorkType       `json:"work_type,omitempty"`
	Confidence float64        `json:"confidence"`
	Source     IntentSource   `json:"source"`
	Rationale  string         `json:"rationale,omitempty"`
	// Degraded is set when the LLM fallback failed and the rule result was
	// used regardless of its confidence.
	Degraded bool `json:"degraded,omitempty"`
}

// ReadOnly reports whether the intent can be answered from existing case
// state without running any tasks. EXPLAIN is read-only only when a prior
// output exists to explain.
func (in Intent) ReadOnly(hasOutput bool) bool {
	switch in.Category {
	case IntentStatus:
		return true
	case IntentExplain:
		return hasOutput
	default:
		return false
	}
}
