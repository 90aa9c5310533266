package proto

import "time"

// CaseStatus is the lifecycle status of a procurement case.
type CaseStatus string

const (
	CaseInProgress      CaseStatus = "InProgress"
	CaseWaitingForHuman CaseStatus = "WaitingForHuman"
	CaseClosed          CaseStatus = "Closed"
)

// ActivityEntry is one append-only record of a supervisor decision.
type ActivityEntry struct {
	Timestamp   time.Time      `json:"timestamp"`
	Message     string         `json:"message"`
	Intent      Intent         `json:"intent"`
	AgentName   AgentName      `json:"agent_name,omitempty"`
	PackID      string         `json:"pack_id,omitempty"`
	TokensUsed  int            `json:"tokens_used"`
	CostUSD     float64        `json:"cost_usd"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// CaseState is the canonical state of one procurement case. Only the
// Supervisor mutates it; every other component receives read-only copies.
//
// Invariant: WaitingForHuman == true implies Status == CaseWaitingForHuman,
// and the activity log is append-only.
type CaseState struct {
	CaseID          string          `json:"case_id"`
	Stage           Stage           `json:"dtp_stage"`
	Status          CaseStatus      `json:"status"`
	CategoryID      string          `json:"category_id,omitempty"`
	SupplierID      string          `json:"supplier_id,omitempty"`
	ContractID      string          `json:"contract_id,omitempty"`
	EstimatedValue  float64         `json:"estimated_value,omitempty"`
	Strategic       bool            `json:"is_strategic,omitempty"`
	LatestOutput    *ArtifactPack   `json:"latest_agent_output,omitempty"`
	LatestAgentName AgentName       `json:"latest_agent_name,omitempty"`
	WaitingForHuman bool            `json:"waiting_for_human"`
	ActivityLog     []ActivityEntry `json:"activity_log"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewCaseState creates a case at the first stage.
func NewCaseState(caseID, categoryID string) *CaseState {
	now := time.Now().UTC()
	return &CaseState{
		CaseID:     caseID,
		Stage:      StageStrategy,
		Status:     CaseInProgress,
		CategoryID: categoryID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasOutput reports whether a prior agent output exists for the case.
func (c *CaseState) HasOutput() bool { return c.LatestOutput != nil }

// Clone returns a deep-enough copy for read-only consumers. The activity
// log slice is copied; artifact packs are shared because they are never
// mutated after creation.
func (c *CaseState) Clone() *CaseState {
	cp := *c
	cp.ActivityLog = make([]ActivityEntry, len(c.ActivityLog))
	copy(cp.ActivityLog, c.ActivityLog)
	return &cp
}

// CheckInvariants verifies the waiting/status coupling. It is used by
// tests and by the supervisor before committing state.
func (c *CaseState) CheckInvariants() bool {
	if c.WaitingForHuman && c.Status != CaseWaitingForHuman {
		return false
	}
	if !c.WaitingForHuman && c.Status == CaseWaitingForHuman {
		return false
	}
	return true
}
