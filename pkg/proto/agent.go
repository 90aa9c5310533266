package proto

// AgentName identifies one of the first-class agent families. Each family
// owns a set of tasks and produces a characteristic artifact type.
type AgentName string

const (
	AgentSupervisor      AgentName = "SUPERVISOR"
	AgentSourcingSignal  AgentName = "SOURCING_SIGNAL"
	AgentSupplierScoring AgentName = "SUPPLIER_SCORING"
	AgentRfxDraft        AgentName = "RFX_DRAFT"
	AgentNegotiation     AgentName = "NEGOTIATION_SUPPORT"
	AgentContract        AgentName = "CONTRACT_SUPPORT"
	AgentImplementation  AgentName = "IMPLEMENTATION"
)

// StageAgents is the fixed stage→agent allow-list. The Planner rejects any
// plan whose agent is not listed for the case's current stage.
var StageAgents = map[Stage][]AgentName{
	StageStrategy:    {AgentSourcingSignal},
	StagePlanning:    {AgentSourcingSignal, AgentSupplierScoring},
	StageSourcing:    {AgentSupplierScoring, AgentRfxDraft},
	StageNegotiation: {AgentNegotiation, AgentSupplierScoring},
	StageContracting: {AgentContract},
	StageExecution:   {AgentImplementation},
}

// AgentAllowedAt reports whether the agent may run at the given stage.
func AgentAllowedAt(agent AgentName, stage Stage) bool {
	for _, a := range StageAgents[stage] {
		if a == agent {
			return true
		}
	}
	return false
}
