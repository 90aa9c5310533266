// Package supervisor is the orchestration core. It owns every case
// mutation: one Execute cycle classifies the user message, plans the
// work, runs the plan's tasks, assembles the artifact pack, checks it
// against the user's constraints, and commits the new case state in a
// single transaction. Everything else in the system only reads.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"caseflow/pkg/classifier"
	"caseflow/pkg/compliance"
	"caseflow/pkg/constraints"
	"caseflow/pkg/eventlog"
	"caseflow/pkg/limiter"
	"caseflow/pkg/logx"
	"caseflow/pkg/memory"
	"caseflow/pkg/metrics"
	"caseflow/pkg/planner"
	"caseflow/pkg/proto"
	"caseflow/pkg/store"
	"caseflow/pkg/task"
)

// CycleFailedError reports a cycle aborted because a failed task blocked
// the rest of the plan. No case state was committed; the partial pack is
// attached for diagnostics only.
type CycleFailedError struct {
	CaseID  string
	Task    proto.TaskName
	Reason  string
	Partial *proto.ArtifactPack
}

func (e *CycleFailedError) Error() string {
	return fmt.Sprintf("cycle failed for case %s: task %s: %s", e.CaseID, e.Task, e.Reason)
}

// Outcome is the result of one supervisor cycle.
type Outcome struct {
	Case           *proto.CaseState
	Pack           *proto.ArtifactPack
	Intent         proto.Intent
	Compliance     compliance.Result
	Contradictions []compliance.Contradiction
	Reply          string
}

// Deps are the supervisor's collaborators, all constructed by the caller.
type Deps struct {
	Store       *store.Store
	Classifier  *classifier.Classifier
	Planner     *planner.Planner
	Runner      *task.Runner
	Limiter     *limiter.Limiter
	Constraints *constraints.Store
	Memory      *memory.Manager
	Events      *eventlog.Writer // optional
}

// Supervisor serializes all work per case and is the sole writer of
// case state.
type Supervisor struct {
	store       *store.Store
	classifier  *classifier.Classifier
	planner     *planner.Planner
	runner      *task.Runner
	limits      *limiter.Limiter
	constraints *constraints.Store
	memory      *memory.Manager
	events      *eventlog.Writer
	log         *logx.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires a supervisor from its dependencies.
func New(d Deps) *Supervisor {
	return &Supervisor{
		store:       d.Store,
		classifier:  d.Classifier,
		planner:     d.Planner,
		runner:      d.Runner,
		limits:      d.Limiter,
		constraints: d.Constraints,
		memory:      d.Memory,
		events:      d.Events,
		log:         logx.NewLogger("supervisor"),
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-case mutex, creating it on first use.
// Concurrent Execute calls on the same case serialize; different cases
// proceed in parallel.
func (s *Supervisor) lockFor(caseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[caseID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[caseID] = l
	}
	return l
}

// CaseSpec describes a case to create.
type CaseSpec struct {
	CaseID         string
	CategoryID     string
	SupplierID     string
	ContractID     string
	EstimatedValue float64
	Strategic      bool
}

// CreateCase creates and persists a new case at the first stage.
func (s *Supervisor) CreateCase(spec CaseSpec) (*proto.CaseState, error) {
	caseID := spec.CaseID
	if caseID == "" {
		caseID = "CASE-" + uuid.New().String()[:8]
	}
	cs := proto.NewCaseState(caseID, spec.CategoryID)
	cs.SupplierID = spec.SupplierID
	cs.ContractID = spec.ContractID
	cs.EstimatedValue = spec.EstimatedValue
	cs.Strategic = spec.Strategic

	if err := s.store.SaveCase(cs); err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}
	s.log.Info("created case %s (category %s)", cs.CaseID, cs.CategoryID)
	return cs, nil
}

// Execute runs one full cycle for a user message against a case.
func (s *Supervisor) Execute(ctx context.Context, caseID, message string) (*Outcome, error) {
	lock := s.lockFor(caseID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	cs, err := s.store.GetCase(caseID)
	if err != nil {
		return nil, err
	}
	working := cs.Clone()
	mem := s.memory.Get(caseID)
	ec, extracted := s.constraints.Apply(caseID, message, working.Stage)
	if len(extracted) > 0 {
		s.log.Debug("case %s: extracted %d constraint(s) from message", caseID, len(extracted))
	}

	// A case parked at an approval gate treats decision keywords as the
	// decision itself. Anything else falls through to classification.
	if working.WaitingForHuman {
		if kind := classifyDecision(message); kind != decisionNone {
			return s.applyDecision(working, mem, kind, message)
		}
	}

	caseLim := s.limits.ForCase(caseID)

	intent := s.classifier.Classify(ctx, message, classifier.Context{
		CaseID:    working.CaseID,
		Stage:     working.Stage,
		Status:    working.Status,
		HasOutput: working.HasOutput(),
		Budget:    caseLim,
	})

	if intent.ReadOnly(working.HasOutput()) {
		return s.readOnly(working, mem, intent, message)
	}

	// Read-only intents are free; everything past this point generates.
	if caseLim.Exhausted() {
		return nil, fmt.Errorf("case %s: %w", caseID, limiter.ErrCaseBudgetExceeded)
	}

	plan, err := s.planner.Plan(intent, working, mem, &ec)
	if err != nil {
		s.event(&eventlog.Event{
			CaseID: caseID, Kind: eventlog.KindError,
			Stage: string(working.Stage), Detail: err.Error(),
		})
		return nil, err
	}

	dispatch := s.limits.NewDispatch(caseID)
	if err := dispatch.CheckPlanSteps(len(plan.Tasks)); err != nil {
		return nil, err
	}

	_, costBefore := caseLim.Usage()

	tc := task.NewContext(working, &ec, plan.Pathway, dispatch)
	tc.Agent = plan.Agent
	tc.Rework = plan.ReworkNote

	var results []proto.TaskResult
	for i, name := range plan.Tasks {
		res := s.runner.Run(ctx, name, tc)
		results = append(results, res)
		if res.Status != proto.TaskErrored {
			continue
		}
		// A failed task aborts the cycle only when a later plan step
		// depends on its output. Independent failures are tolerated.
		for _, rem := range plan.Tasks[i+1:] {
			if task.DependsOn(rem, name) {
				_, costAfter := caseLim.Usage()
				metrics.RecordCycle(string(plan.Agent), string(working.Stage), "failed", time.Since(start).Seconds())
				s.event(&eventlog.Event{
					CaseID: caseID, Kind: eventlog.KindError,
					Stage: string(working.Stage), Agent: string(plan.Agent),
					Detail: fmt.Sprintf("task %s failed: %s", name, res.Err),
				})
				return nil, &CycleFailedError{
					CaseID:  caseID,
					Task:    name,
					Reason:  res.Err,
					Partial: assemblePack(plan, working, results, tc.Data, costAfter-costBefore),
				}
			}
		}
	}

	_, costAfter := caseLim.Usage()
	pack := assemblePack(plan, working, results, tc.Data, costAfter-costBefore)

	check := compliance.Check(packText(pack), &ec, mem)
	if check.Blocking {
		reflection := compliance.Reflection(&ec, check)
		if pack.Narrative != "" {
			pack.Narrative = reflection + "\n\n" + pack.Narrative
		} else {
			pack.Narrative = reflection
		}
	}

	topSupplier := topRankedSupplier(tc.Data)
	contradictions := compliance.DetectContradictions(plan.Pathway, topSupplier, mem)
	for _, c := range contradictions {
		mem.RecordContradiction(c.Field, c.OldValue, c.NewValue)
	}

	mem.RecordInteraction(memory.Interaction{
		Message: message,
		Intent:  intent.Category,
		Agent:   plan.Agent,
		Summary: firstLine(pack.Narrative),
	})
	mem.LastStrategy = plan.Pathway
	if topSupplier != "" {
		mem.LastSupplier = topSupplier
	}

	now := time.Now().UTC()
	working.LatestOutput = pack
	working.LatestAgentName = plan.Agent
	working.WaitingForHuman = plan.ApprovalRequired
	if plan.ApprovalRequired {
		working.Status = proto.CaseWaitingForHuman
	} else {
		working.Status = proto.CaseInProgress
	}
	working.UpdatedAt = now
	working.ActivityLog = append(working.ActivityLog, proto.ActivityEntry{
		Timestamp:  now,
		Message:    message,
		Intent:     intent,
		AgentName:  plan.Agent,
		PackID:     pack.PackID,
		TokensUsed: pack.Metadata.TotalTokens,
		CostUSD:    pack.Metadata.EstimatedCost,
	})

	if !working.CheckInvariants() {
		return nil, fmt.Errorf("case %s: waiting/status invariant violated before commit", caseID)
	}
	if err := s.store.SaveCase(working); err != nil {
		return nil, fmt.Errorf("failed to commit cycle for case %s: %w", caseID, err)
	}
	if err := s.memory.Persist(caseID); err != nil {
		s.log.Warn("case %s: memory persist failed: %v", caseID, err)
	}

	metrics.RecordCycle(string(plan.Agent), string(working.Stage), "completed", time.Since(start).Seconds())
	s.event(&eventlog.Event{
		CaseID: caseID, Kind: eventlog.KindCycle,
		Stage: string(working.Stage), Agent: string(plan.Agent),
		Intent: string(intent.Category), PackID: pack.PackID,
		Tokens: pack.Metadata.TotalTokens, CostUSD: pack.Metadata.EstimatedCost,
	})

	return &Outcome{
		Case:           working,
		Pack:           pack,
		Intent:         intent,
		Compliance:     check,
		Contradictions: contradictions,
		Reply:          buildReply(pack, plan, contradictions),
	}, nil
}

// Decide records an explicit human approval or rejection, bypassing
// keyword detection. Used by the CLI decide command.
func (s *Supervisor) Decide(caseID string, approve bool, note string) (*Outcome, error) {
	lock := s.lockFor(caseID)
	lock.Lock()
	defer lock.Unlock()

	cs, err := s.store.GetCase(caseID)
	if err != nil {
		return nil, err
	}
	if !cs.WaitingForHuman {
		return nil, fmt.Errorf("case %s is not waiting for a decision", caseID)
	}

	working := cs.Clone()
	mem := s.memory.Get(caseID)
	kind := decisionReject
	if approve {
		kind = decisionApprove
	}
	return s.applyDecision(working, mem, kind, note)
}

// applyDecision commits an approval or rejection. Approval advances the
// stage along the pipeline; rejection keeps the stage and records the
// feedback for rework. Both clear the waiting flag.
func (s *Supervisor) applyDecision(working *proto.CaseState, mem *memory.CaseMemory, kind decisionKind, message string) (*Outcome, error) {
	prior := working.Stage
	now := time.Now().UTC()

	var reply string
	if kind == decisionApprove {
		next := s.advanceTarget(working)
		if !working.Stage.CanTransition(next) {
			return nil, fmt.Errorf("case %s: no valid transition from %s", working.CaseID, working.Stage)
		}
		working.Stage = next
		if next == prior {
			reply = fmt.Sprintf("Approved. %s continues in %s.", working.CaseID, prior.Display())
		} else {
			reply = fmt.Sprintf("Approved. %s advanced from %s to %s.", working.CaseID, prior.Display(), next.Display())
		}
	} else {
		reply = fmt.Sprintf("Understood. %s stays at %s; tell me what to change and I will rework the output.",
			working.CaseID, prior.Display())
	}

	working.WaitingForHuman = false
	working.Status = proto.CaseInProgress
	working.UpdatedAt = now
	intent := proto.Intent{Category: proto.IntentDecide, Goal: proto.GoalDecide, Confidence: 1, Source: proto.SourceRule}
	working.ActivityLog = append(working.ActivityLog, proto.ActivityEntry{
		Timestamp: now,
		Message:   message,
		Intent:    intent,
	})

	mem.RecordDecision(memory.Decision{
		Stage:    prior,
		Approved: kind == decisionApprove,
		Note:     message,
	})
	mem.RecordInteraction(memory.Interaction{
		Message: message,
		Intent:  proto.IntentDecide,
		Summary: reply,
	})

	if !working.CheckInvariants() {
		return nil, fmt.Errorf("case %s: waiting/status invariant violated before commit", working.CaseID)
	}
	if err := s.store.SaveCase(working); err != nil {
		return nil, fmt.Errorf("failed to commit decision for case %s: %w", working.CaseID, err)
	}
	if err := s.memory.Persist(working.CaseID); err != nil {
		s.log.Warn("case %s: memory persist failed: %v", working.CaseID, err)
	}

	evKind := eventlog.KindDecision
	if kind == decisionReject {
		evKind = eventlog.KindRejection
	}
	s.event(&eventlog.Event{
		CaseID: working.CaseID, Kind: evKind,
		Stage: string(working.Stage), Detail: message,
	})

	return &Outcome{Case: working, Intent: intent, Reply: reply}, nil
}

// advanceTarget resolves the next stage on approval. The planning stage
// branches: simplified-pathway cases skip straight to negotiation while
// the rest go through sourcing.
func (s *Supervisor) advanceTarget(cs *proto.CaseState) proto.Stage {
	next := cs.Stage.NextStages()
	if len(next) == 0 {
		return cs.Stage
	}
	if cs.Stage == proto.StagePlanning {
		if planner.SelectPathway(cs) == planner.PathwaySimplified {
			return proto.StageNegotiation
		}
		return proto.StageSourcing
	}
	return next[0]
}

// readOnly answers STATUS and EXPLAIN intents from existing state. No
// tasks run, no tokens are spent, and the latest output stays untouched;
// only the activity log records the exchange.
func (s *Supervisor) readOnly(working *proto.CaseState, mem *memory.CaseMemory, intent proto.Intent, message string) (*Outcome, error) {
	var reply string
	var artifactType proto.ArtifactType
	if intent.Category == proto.IntentExplain {
		reply = explainReply(working)
		artifactType = proto.ArtifactNextBestActions
	} else {
		reply = statusReply(working, mem)
		artifactType = proto.ArtifactStatusSummary
	}

	// The ephemeral pack exists for rendering only; it is never attached
	// to the case or persisted.
	pack := &proto.ArtifactPack{
		PackID:    uuid.New().String(),
		CaseID:    working.CaseID,
		AgentName: proto.AgentSupervisor,
		Artifacts: []proto.Artifact{{
			Type:        artifactType,
			Title:       "Case response",
			ContentText: reply,
		}},
		Narrative: reply,
		CreatedAt: time.Now().UTC(),
	}

	now := time.Now().UTC()
	working.UpdatedAt = now
	working.ActivityLog = append(working.ActivityLog, proto.ActivityEntry{
		Timestamp: now,
		Message:   message,
		Intent:    intent,
		AgentName: proto.AgentSupervisor,
	})

	if err := s.store.SaveCase(working); err != nil {
		return nil, fmt.Errorf("failed to record activity for case %s: %w", working.CaseID, err)
	}

	mem.RecordInteraction(memory.Interaction{
		Message: message,
		Intent:  intent.Category,
		Agent:   proto.AgentSupervisor,
	})
	if err := s.memory.Persist(working.CaseID); err != nil {
		s.log.Warn("case %s: memory persist failed: %v", working.CaseID, err)
	}

	s.event(&eventlog.Event{
		CaseID: working.CaseID, Kind: eventlog.KindStatus,
		Stage: string(working.Stage), Intent: string(intent.Category),
	})

	return &Outcome{Case: working, Pack: pack, Intent: intent, Reply: reply}, nil
}

func (s *Supervisor) event(ev *eventlog.Event) {
	if s.events == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := s.events.Write(ev); err != nil {
		s.log.Warn("event log write failed: %v", err)
	}
}

// statusReply summarizes the case from its own state.
func statusReply(cs *proto.CaseState, mem *memory.CaseMemory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is at %s, status %s.", cs.CaseID, cs.Stage.Display(), cs.Status)
	if cs.LatestAgentName != "" {
		fmt.Fprintf(&b, " Last worked by %s.", cs.LatestAgentName)
	}
	if cs.WaitingForHuman {
		b.WriteString(" The latest output is waiting for your approval.")
	}

	tokens := 0
	cost := 0.0
	for _, e := range cs.ActivityLog {
		tokens += e.TokensUsed
		cost += e.CostUSD
	}
	fmt.Fprintf(&b, " %d interaction(s) so far, %d tokens ($%.4f) spent.", len(cs.ActivityLog), tokens, cost)

	if mem != nil {
		if d := mem.LastDecision(); d != nil {
			verdict := "rejected"
			if d.Approved {
				verdict = "approved"
			}
			fmt.Fprintf(&b, " Last decision: %s at %s.", verdict, d.Stage.Display())
		}
	}
	return b.String()
}

// explainReply walks the latest pack's artifacts and grounding.
func explainReply(cs *proto.CaseState) string {
	pack := cs.LatestOutput
	if pack == nil {
		return "There is no agent output on this case yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The latest output came from %s and ran %d task(s).", pack.AgentName, len(pack.TasksExecuted))
	for i := range pack.Artifacts {
		a := &pack.Artifacts[i]
		fmt.Fprintf(&b, "\n- %s (%s): %s, grounded in %d source(s)",
			a.Title, a.Type, a.VerificationStatus, len(a.GroundedIn))
	}
	if refs := pack.Grounding(); len(refs) > 0 {
		distinct := make(map[string]bool, len(refs))
		for _, ref := range refs {
			distinct[ref.SourceID] = true
		}
		fmt.Fprintf(&b, "\nEvidence draws on %d reference(s) across %d distinct source(s).",
			len(refs), len(distinct))
	}
	if pack.Narrative != "" {
		b.WriteString("\n\n")
		b.WriteString(pack.Narrative)
	}
	return b.String()
}

// packText gathers all human-readable output for the compliance check.
func packText(pack *proto.ArtifactPack) string {
	var b strings.Builder
	b.WriteString(pack.Narrative)
	for i := range pack.Artifacts {
		a := &pack.Artifacts[i]
		b.WriteString("\n")
		b.WriteString(a.Title)
		if a.ContentText != "" {
			b.WriteString("\n")
			b.WriteString(a.ContentText)
		}
		for _, c := range a.Claims {
			b.WriteString("\n")
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

func topRankedSupplier(data map[string]any) string {
	ranked, _ := data["ranked_suppliers"].([]task.ScoredSupplier)
	if len(ranked) == 0 {
		return ""
	}
	return ranked[0].Name
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func buildReply(pack *proto.ArtifactPack, plan *planner.ActionPlan, contradictions []compliance.Contradiction) string {
	var b strings.Builder
	if pack.Narrative != "" {
		b.WriteString(pack.Narrative)
	} else {
		fmt.Fprintf(&b, "%s completed %d task(s) and produced %d artifact(s).",
			plan.Agent, len(pack.TasksExecuted), len(pack.Artifacts))
	}
	if warning := compliance.ContradictionWarning(contradictions); warning != "" {
		b.WriteString("\n\n")
		b.WriteString(warning)
	}
	if plan.ApprovalRequired {
		b.WriteString("\n\nThis output needs your approval before the case can advance. Reply approve or reject.")
	}
	return b.String()
}
