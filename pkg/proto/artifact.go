package proto

import "time"

// ArtifactType identifies the kind of work product an agent produced.
type ArtifactType string

const (
	// Sourcing signal outputs.
	ArtifactSignalReport   ArtifactType = "SIGNAL_REPORT"
	ArtifactSignalSummary  ArtifactType = "SIGNAL_SUMMARY"
	ArtifactAutoprepBundle ArtifactType = "AUTOPREP_BUNDLE"

	// Supplier scoring outputs.
	ArtifactEvaluationScorecard ArtifactType = "EVALUATION_SCORECARD"
	ArtifactSupplierShortlist   ArtifactType = "SUPPLIER_SHORTLIST"

	// RFx outputs.
	ArtifactRfxPath      ArtifactType = "RFX_PATH"
	ArtifactRfxDraftPack ArtifactType = "RFX_DRAFT_PACK"
	ArtifactRfxQATracker ArtifactType = "RFX_QA_TRACKER"

	// Negotiation outputs.
	ArtifactNegotiationPlan ArtifactType = "NEGOTIATION_PLAN"
	ArtifactLeverageSummary ArtifactType = "LEVERAGE_SUMMARY"
	ArtifactTargetTerms     ArtifactType = "TARGET_TERMS"

	// Contract outputs.
	ArtifactKeyTermsExtract      ArtifactType = "KEY_TERMS_EXTRACT"
	ArtifactTermValidationReport ArtifactType = "TERM_VALIDATION_REPORT"
	ArtifactContractHandoff      ArtifactType = "CONTRACT_HANDOFF_PACKET"

	// Implementation outputs.
	ArtifactImplementationChecklist ArtifactType = "IMPLEMENTATION_CHECKLIST"
	ArtifactEarlyIndicators         ArtifactType = "EARLY_INDICATORS_REPORT"
	ArtifactValueCapture            ArtifactType = "VALUE_CAPTURE_TEMPLATE"

	// Supervisor outputs.
	ArtifactStatusSummary   ArtifactType = "STATUS_SUMMARY"
	ArtifactNextBestActions ArtifactType = "NEXT_BEST_ACTIONS"
)

// VerificationStatus reflects how well an artifact's claims are grounded.
// It is derived from the grounding sets, never set free-form.
type VerificationStatus string

const (
	Verified   VerificationStatus = "VERIFIED"
	Partial    VerificationStatus = "PARTIAL"
	Unverified VerificationStatus = "UNVERIFIED"
)

// Claim is one factual statement in an artifact together with the
// grounding references that support it.
type Claim struct {
	Text       string         `json:"text"`
	GroundedIn []GroundingRef `json:"grounded_in,omitempty"`
}

// Artifact is a single structured work product inside an ArtifactPack.
type Artifact struct {
	Type               ArtifactType       `json:"type"`
	Title              string             `json:"title"`
	Content            map[string]any     `json:"content,omitempty"`
	ContentText        string             `json:"content_text,omitempty"`
	Claims             []Claim            `json:"claims,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	GroundedIn         []GroundingRef     `json:"grounded_in,omitempty"`
}

// DeriveVerification computes the verification status from the artifact's
// claims: VERIFIED when every claim is grounded, PARTIAL when some are,
// UNVERIFIED when none are. Artifacts without explicit claims fall back to
// the pack-level grounding set.
func (a *Artifact) DeriveVerification() VerificationStatus {
	if len(a.Claims) == 0 {
		if len(a.GroundedIn) > 0 {
			return Verified
		}
		return Unverified
	}
	grounded := 0
	for _, c := range a.Claims {
		if len(c.GroundedIn) > 0 {
			grounded++
		}
	}
	switch {
	case grounded == len(a.Claims):
		return Verified
	case grounded > 0:
		return Partial
	default:
		return Unverified
	}
}

// NextAction is a recommended follow-up surfaced alongside artifacts.
type NextAction struct {
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Agent       AgentName `json:"agent"`
}

// Risk is a flagged concern attached to a pack.
type Risk struct {
	Description string `json:"description"`
	Severity    string `json:"severity"` // low | medium | high
}

// TaskUsage is the per-task breakdown inside ExecutionMetadata.
type TaskUsage struct {
	TaskName   TaskName   `json:"task_name"`
	Status     TaskStatus `json:"status"`
	TokensUsed int        `json:"tokens_used"`
	DurationMs int64      `json:"duration_ms"`
}

// ExecutionMetadata aggregates resource usage for one supervisor cycle.
type ExecutionMetadata struct {
	TotalTokens   int         `json:"total_tokens"`
	EstimatedCost float64     `json:"estimated_cost_usd"`
	TaskDetail    []TaskUsage `json:"task_detail,omitempty"`
}

// ArtifactPack is the unit of output from one supervisor execution cycle.
type ArtifactPack struct {
	PackID        string            `json:"pack_id"`
	CaseID        string            `json:"case_id"`
	AgentName     AgentName         `json:"agent_name"`
	Artifacts     []Artifact        `json:"artifacts"`
	NextActions   []NextAction      `json:"next_actions,omitempty"`
	Risks         []Risk            `json:"risks,omitempty"`
	TasksExecuted []TaskName        `json:"tasks_executed"`
	Metadata      ExecutionMetadata `json:"execution_metadata"`
	Narrative     string            `json:"narrative,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Grounding returns the union of grounding references across artifacts.
func (p *ArtifactPack) Grounding() []GroundingRef {
	var refs []GroundingRef
	for i := range p.Artifacts {
		refs = append(refs, p.Artifacts[i].GroundedIn...)
	}
	return refs
}
