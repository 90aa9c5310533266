// Package planner maps a classified intent and the current case state
// to an ordered task plan. Planning is deterministic and side-effect
// free: the same inputs always yield the same plan, and no generation
// backend is ever consulted.
package planner

import (
	"fmt"
	"strings"

	"caseflow/pkg/config"
	"caseflow/pkg/constraints"
	"caseflow/pkg/memory"
	"caseflow/pkg/proto"
)

// Sourcing pathway names, chosen by estimated case value.
const (
	PathwayStrategic      = "strategic"
	PathwayCompetitiveBid = "competitive_bid"
	PathwaySimplified     = "simplified"
)

// Value thresholds for pathway selection, in USD.
const (
	strategicValueFloor   = 500_000
	competitiveValueFloor = 50_000
)

// Stages where every produced artifact needs human sign-off regardless
// of the intent.
var alwaysApproveStages = map[proto.Stage]bool{
	proto.StageNegotiation: true,
	proto.StageContracting: true,
}

// ActionPlan is the planner's output: which agent runs which tasks, in
// order, and whether the resulting artifact must wait for a human.
type ActionPlan struct {
	Agent            proto.AgentName  `json:"agent"`
	Playbook         string           `json:"playbook"`
	Tasks            []proto.TaskName `json:"tasks"`
	Pathway          string           `json:"pathway"`
	ApprovalRequired bool             `json:"approval_required"`
	Rationale        string           `json:"rationale,omitempty"`

	// ReworkNote carries the reviewer's note from a rejection at the
	// current stage. Non-empty means the plan reworks a rejected
	// artifact rather than producing a first draft.
	ReworkNote string `json:"rework_note,omitempty"`
}

// PlanningRejectedError reports why no plan could be produced. It is a
// policy outcome, not an internal failure.
type PlanningRejectedError struct {
	Stage  proto.Stage
	Agent  proto.AgentName
	Reason string
}

func (e *PlanningRejectedError) Error() string {
	return fmt.Sprintf("planning rejected at %s: %s", e.Stage, e.Reason)
}

type Planner struct {
	books    *playbookSet
	maxSteps int
}

// New parses and validates the embedded playbook table. The step limit
// comes from the execution constraints config.
func New(cfg config.ConstraintsCfg) (*Planner, error) {
	books, err := loadPlaybooks(cfg.MaxPlanSteps)
	if err != nil {
		return nil, err
	}
	return &Planner{books: books, maxSteps: cfg.MaxPlanSteps}, nil
}

// Plan builds the action plan for one intent against one case. mem may
// be nil; when it holds a rejection at the current stage the plan is
// marked as rework and the reviewer's note rides along.
func (p *Planner) Plan(intent proto.Intent, cs *proto.CaseState, mem *memory.CaseMemory, ec *constraints.ExecutionConstraints) (*ActionPlan, error) {
	entry := p.books.stages[cs.Stage]

	agent := p.selectAgent(entry, intent)
	if !proto.AgentAllowedAt(agent, cs.Stage) {
		return nil, &PlanningRejectedError{
			Stage:  cs.Stage,
			Agent:  agent,
			Reason: fmt.Sprintf("agent %s is not permitted at stage %s", agent, cs.Stage),
		}
	}

	if missing := missingInputs(entry.RequiredInputs, cs); len(missing) > 0 {
		return nil, &PlanningRejectedError{
			Stage:  cs.Stage,
			Agent:  agent,
			Reason: fmt.Sprintf("missing required case inputs: %s", strings.Join(missing, ", ")),
		}
	}

	book := playbookName(intent)
	tasks, ok := p.books.agents[agent][book]
	if !ok {
		book = "default"
		tasks = p.books.agents[agent][book]
	}

	plan := &ActionPlan{
		Agent:    agent,
		Playbook: book,
		Tasks:    append([]proto.TaskName(nil), tasks...),
		Pathway:  SelectPathway(cs),
		ApprovalRequired: intent.Goal == proto.GoalDecide ||
			alwaysApproveStages[cs.Stage],
	}
	plan.Rationale = fmt.Sprintf("playbook %s for %s", book, agent)
	if mem != nil {
		// A rejection only stays pending while the case sits at the
		// stage it was issued for; approval advances the stage.
		if rej := mem.LastRejection(); rej != nil && rej.Stage == cs.Stage {
			plan.ReworkNote = rej.Note
			plan.ApprovalRequired = true
			plan.Rationale += "; rework after rejection"
			if rej.Note != "" {
				plan.Rationale += ": " + rej.Note
			}
		}
	}
	if ec != nil {
		if fields := ec.ActiveFields(); len(fields) > 0 {
			names := make([]string, len(fields))
			for i, f := range fields {
				names[i] = f.Field
			}
			plan.Rationale += " under constraints: " + strings.Join(names, ", ")
		}
	}
	return plan, nil
}

// selectAgent picks the agent family for the stage, honoring the
// per-stage overrides keyed by goal or work type.
func (p *Planner) selectAgent(entry stageEntry, intent proto.Intent) proto.AgentName {
	if len(entry.Overrides) > 0 {
		if a, ok := entry.Overrides[strings.ToLower(string(intent.WorkType))]; ok {
			return proto.AgentName(a)
		}
		if a, ok := entry.Overrides[strings.ToLower(string(intent.Goal))]; ok {
			return proto.AgentName(a)
		}
	}
	return proto.AgentName(entry.Agent)
}

// playbookName chooses the task list variant for the intent. Full runs
// for creative and decisive work, lighter variants for tracking and
// compliance checks.
func playbookName(intent proto.Intent) string {
	if intent.WorkType == proto.WorkCompliance || intent.Goal == proto.GoalCheck {
		return "check"
	}
	if intent.Goal == proto.GoalTrack || intent.Category == proto.IntentExplore {
		return "track"
	}
	return "default"
}

// SelectPathway maps estimated case value to the sourcing pathway. A
// case marked strategic takes the strategic pathway regardless of value.
func SelectPathway(cs *proto.CaseState) string {
	switch {
	case cs.Strategic || cs.EstimatedValue > strategicValueFloor:
		return PathwayStrategic
	case cs.EstimatedValue > competitiveValueFloor:
		return PathwayCompetitiveBid
	default:
		return PathwaySimplified
	}
}

func missingInputs(required []string, cs *proto.CaseState) []string {
	var missing []string
	for _, in := range required {
		switch in {
		case "category_id":
			if cs.CategoryID == "" {
				missing = append(missing, in)
			}
		case "supplier_id":
			if cs.SupplierID == "" {
				missing = append(missing, in)
			}
		case "contract_id":
			if cs.ContractID == "" {
				missing = append(missing, in)
			}
		}
	}
	return missing
}
