// Package task implements the closed library of agent tasks. Every
// task runs through the same four-phase pipeline: deterministic rules,
// data retrieval, analytics, and optional narration. The generation
// backend only ever narrates results that already exist; it never
// produces a decision.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caseflow/pkg/config"
	"caseflow/pkg/constraints"
	"caseflow/pkg/gen"
	"caseflow/pkg/limiter"
	"caseflow/pkg/logx"
	"caseflow/pkg/metrics"
	"caseflow/pkg/proto"
	"caseflow/pkg/retriever"
	"caseflow/pkg/store"
)

// Context is the shared state one plan execution threads through its
// tasks. Data accumulates each task's output so later tasks can build
// on earlier results.
type Context struct {
	Case        *proto.CaseState
	Constraints *constraints.ExecutionConstraints
	Pathway     string
	Agent       proto.AgentName
	Data        map[string]any
	Dispatch    *limiter.Dispatch

	// Rework holds the reviewer's note when the plan reworks a
	// rejected artifact. Narration prompts lead with it.
	Rework string
}

// NewContext builds a task context for one case snapshot.
func NewContext(cs *proto.CaseState, ec *constraints.ExecutionConstraints, pathway string, d *limiter.Dispatch) *Context {
	return &Context{
		Case:        cs,
		Constraints: ec,
		Pathway:     pathway,
		Data:        make(map[string]any),
		Dispatch:    d,
	}
}

// countTool registers one retrieval or generation call against the
// dispatch limits.
func (tc *Context) countTool() error {
	if tc.Dispatch == nil {
		return nil
	}
	return tc.Dispatch.CountToolCall()
}

// fromData fetches a typed value a previous task left in the bag.
func fromData[T any](tc *Context, key string) (T, bool) {
	v, ok := tc.Data[key].(T)
	return v, ok
}

// phaseOut is the output of one pipeline phase.
type phaseOut struct {
	data map[string]any
	refs []proto.GroundingRef
	// done means the rules phase fully determined the answer and the
	// remaining phases are skipped.
	done bool
	// skip means the task does not apply to this context at all.
	skip bool
}

func out(data map[string]any, refs ...proto.GroundingRef) phaseOut {
	return phaseOut{data: data, refs: refs}
}

// task is one entry in the closed task library.
type task interface {
	Rules(tc *Context) phaseOut
	Retrieve(ctx context.Context, tc *Context) (phaseOut, error)
	Analyze(tc *Context) phaseOut
	// Narration returns the prompt for the narration phase; ok=false
	// means the task produces structured output only.
	Narration(tc *Context) (prompt string, ok bool)
}

// baseTask supplies no-op phases so concrete tasks override only what
// they use.
type baseTask struct{}

func (baseTask) Rules(*Context) phaseOut { return phaseOut{} }
func (baseTask) Retrieve(context.Context, *Context) (phaseOut, error) {
	return phaseOut{}, nil
}
func (baseTask) Analyze(*Context) phaseOut         { return phaseOut{} }
func (baseTask) Narration(*Context) (string, bool) { return "", false }

const narratorSystem = `You are a procurement analyst writing for a case owner.
Summarize and explain ONLY the data supplied in the prompt. Never introduce
facts, numbers, or supplier names that are not present in the data. Keep it
to 2-4 sentences, specific and actionable.`

// Runner executes named tasks through the four-phase pipeline.
type Runner struct {
	store   *store.Store
	ret     retriever.Retriever
	gen     gen.Generator
	model   config.ModelCfg
	counter *gen.TokenCounter
	timeout time.Duration
	log     *logx.Logger
}

// NewRunner wires the runner's dependencies. gen may be nil, which
// disables narration phases; retrieval-only operation still works.
func NewRunner(st *store.Store, ret retriever.Retriever, g gen.Generator, model config.ModelCfg, cfg config.ConstraintsCfg) *Runner {
	counter, err := gen.NewTokenCounter()
	if err != nil {
		counter = nil
	}
	return &Runner{
		store:   st,
		ret:     ret,
		gen:     g,
		model:   model,
		counter: counter,
		timeout: time.Duration(cfg.TaskTimeoutSec) * time.Second,
		log:     logx.NewLogger("task"),
	}
}

// Run executes one task. Failures inside a task never propagate as Go
// errors: the result's status and error field carry them so the caller
// can decide whether the plan continues.
func (r *Runner) Run(ctx context.Context, name proto.TaskName, tc *Context) proto.TaskResult {
	start := time.Now()
	res := proto.TaskResult{TaskName: name, Status: proto.TaskCompleted}

	t, ok := r.taskFor(name)
	if !ok {
		res.Status = proto.TaskErrored
		res.Err = fmt.Sprintf("unknown task %q", name)
		return res
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	merge := func(p phaseOut) {
		if len(p.data) > 0 && res.Data == nil {
			res.Data = make(map[string]any, len(p.data))
		}
		for k, v := range p.data {
			res.Data[k] = v
			tc.Data[k] = v
		}
		res.GroundedIn = append(res.GroundedIn, p.refs...)
	}

	rules := t.Rules(tc)
	if rules.skip {
		res.Status = proto.TaskSkipped
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}
	merge(rules)
	if rules.done {
		r.log.Debug("task %s determined by rules, phases 2-4 skipped", name)
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	retrieved, err := t.Retrieve(ctx, tc)
	if err != nil {
		r.log.Warn("task %s retrieval failed: %v", name, err)
		res.Status = proto.TaskErrored
		res.Err = err.Error()
		res.GroundedIn = nil
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}
	merge(retrieved)

	merge(t.Analyze(tc))

	if prompt, wants := t.Narration(tc); wants {
		r.narrate(ctx, tc, &res, prompt)
	}

	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// narrate runs the generation phase. Budget exhaustion skips narration
// but keeps the structured results; a backend failure marks the task
// errored with its partial data.
func (r *Runner) narrate(ctx context.Context, tc *Context, res *proto.TaskResult, prompt string) {
	if r.gen == nil {
		return
	}
	if tc.Rework != "" {
		prompt = "The previous attempt was rejected by the reviewer: " +
			tc.Rework + "\nAddress the objection in this revision.\n\n" + prompt
	}
	if tc.Constraints != nil {
		if block := tc.Constraints.PromptBlock(); block != "" {
			prompt = block + "\n\n" + prompt
		}
	}

	maxReply := r.model.MaxReplyTokens
	if maxReply <= 0 {
		maxReply = 256
	}
	if tc.Dispatch != nil {
		// Oversized prompts are cut to fit the per-task budget instead
		// of failing the reservation outright.
		if limit := tc.Dispatch.TaskBudget() - maxReply - r.counter.CountTokens(narratorSystem); limit > 0 {
			prompt = r.counter.TruncateToTokenLimit(prompt, limit)
		}
	}
	want := r.counter.CountTokens(narratorSystem+prompt) + maxReply

	if tc.Dispatch != nil {
		if err := tc.Dispatch.ReserveTask(want); err != nil {
			r.log.Warn("narration skipped for %s: %v", res.TaskName, err)
			res.Err = err.Error()
			return
		}
	}
	if err := tc.countTool(); err != nil {
		res.Err = err.Error()
		return
	}

	resp, err := r.gen.Complete(ctx, gen.Request{
		System:      narratorSystem,
		Prompt:      prompt,
		MaxTokens:   maxReply,
		Temperature: 0.2,
	})
	if err != nil {
		if errors.Is(err, limiter.ErrCaseBudgetExceeded) || errors.Is(err, limiter.ErrTaskBudgetExceeded) {
			res.Err = err.Error()
			return
		}
		r.log.Warn("narration failed for %s: %v", res.TaskName, err)
		res.Status = proto.TaskErrored
		res.Err = err.Error()
		res.GroundedIn = nil
		return
	}

	if res.Data == nil {
		res.Data = make(map[string]any, 1)
	}
	res.Data["narrative"] = resp.Text
	tc.Data[string(res.TaskName)+"_narrative"] = resp.Text
	res.TokensUsed = resp.Tokens()
	metrics.RecordGeneration(tc.Case.CaseID, string(tc.Agent), r.model.Model,
		resp.TokensIn, resp.TokensOut, gen.CostUSD(r.model, resp))
	if tc.Dispatch != nil {
		tc.Dispatch.Commit(resp.Tokens(), gen.CostUSD(r.model, resp))
	}
}

// taskFor dispatches on the closed task name set. The switch is
// exhaustive over the names declared in proto.
func (r *Runner) taskFor(name proto.TaskName) (task, bool) {
	switch name {
	// Sourcing signal.
	case proto.TaskDetectContractExpiry:
		return &detectContractExpiry{r: r}, true
	case proto.TaskDetectPerformanceDrop:
		return &detectPerformanceDrop{r: r}, true
	case proto.TaskDetectSpendAnomalies:
		return &detectSpendAnomalies{r: r}, true
	case proto.TaskApplyRelevanceFilters:
		return &applyRelevanceFilters{}, true
	case proto.TaskGroundedSignalSummary:
		return &groundedSignalSummary{r: r}, true
	case proto.TaskAutoprepRecommendations:
		return &autoprepRecommendations{}, true

	// Supplier scoring.
	case proto.TaskBuildEvaluationCriteria:
		return &buildEvaluationCriteria{}, true
	case proto.TaskPullSupplierPerformance:
		return &pullSupplierPerformance{r: r}, true
	case proto.TaskPullRiskIndicators:
		return &pullRiskIndicators{r: r}, true
	case proto.TaskNormalizeMetrics:
		return &normalizeMetrics{}, true
	case proto.TaskComputeScoresAndRank:
		return &computeScoresAndRank{}, true
	case proto.TaskEligibilityChecks:
		return &eligibilityChecks{r: r}, true
	case proto.TaskGenerateExplanations:
		return &generateExplanations{}, true

	// RFx drafting.
	case proto.TaskDetermineRfxPath:
		return &determineRfxPath{}, true
	case proto.TaskRetrieveTemplates:
		return &retrieveTemplates{r: r}, true
	case proto.TaskAssembleRfxSections:
		return &assembleRfxSections{}, true
	case proto.TaskCompletenessChecks:
		return &completenessChecks{}, true
	case proto.TaskDraftRequirements:
		return &draftRequirements{}, true
	case proto.TaskCreateQATracker:
		return &createQATracker{}, true

	// Negotiation support.
	case proto.TaskCompareBids:
		return &compareBids{r: r}, true
	case proto.TaskLeverageExtraction:
		return &leverageExtraction{}, true
	case proto.TaskBenchmarkRetrieval:
		return &benchmarkRetrieval{r: r}, true
	case proto.TaskPriceAnomalyDetection:
		return &priceAnomalyDetection{}, true
	case proto.TaskProposeTargets:
		return &proposeTargets{}, true
	case proto.TaskNegotiationPlaybook:
		return &negotiationPlaybook{}, true

	// Contract support.
	case proto.TaskExtractKeyTerms:
		return &extractKeyTerms{r: r}, true
	case proto.TaskTermValidation:
		return &termValidation{}, true
	case proto.TaskTermAlignmentSummary:
		return &termAlignmentSummary{}, true
	case proto.TaskHandoffPacket:
		return &handoffPacket{}, true

	// Implementation.
	case proto.TaskBuildRolloutChecklist:
		return &buildRolloutChecklist{r: r}, true
	case proto.TaskComputeExpectedSavings:
		return &computeExpectedSavings{r: r}, true
	case proto.TaskDefineEarlyIndicators:
		return &defineEarlyIndicators{}, true
	case proto.TaskReportingTemplates:
		return &reportingTemplates{}, true
	}
	return nil, false
}

// taskDeps declares which earlier tasks a task consumes data from. The
// supervisor uses it to decide whether an errored task blocks the rest
// of the plan.
var taskDeps = map[proto.TaskName][]proto.TaskName{
	proto.TaskApplyRelevanceFilters: {
		proto.TaskDetectContractExpiry,
		proto.TaskDetectPerformanceDrop,
		proto.TaskDetectSpendAnomalies,
	},
	proto.TaskGroundedSignalSummary:   {proto.TaskApplyRelevanceFilters},
	proto.TaskAutoprepRecommendations: {proto.TaskApplyRelevanceFilters},

	proto.TaskNormalizeMetrics:     {proto.TaskPullSupplierPerformance},
	proto.TaskComputeScoresAndRank: {proto.TaskBuildEvaluationCriteria, proto.TaskNormalizeMetrics},
	proto.TaskGenerateExplanations: {proto.TaskComputeScoresAndRank},

	proto.TaskAssembleRfxSections: {proto.TaskDetermineRfxPath},
	proto.TaskCompletenessChecks:  {proto.TaskAssembleRfxSections},
	proto.TaskDraftRequirements:   {proto.TaskDetermineRfxPath},
	proto.TaskCreateQATracker:     {proto.TaskDraftRequirements},

	proto.TaskLeverageExtraction:    {proto.TaskCompareBids},
	proto.TaskPriceAnomalyDetection: {proto.TaskCompareBids},
	proto.TaskProposeTargets:        {proto.TaskCompareBids},
	proto.TaskNegotiationPlaybook:   {proto.TaskLeverageExtraction, proto.TaskProposeTargets},

	proto.TaskTermValidation:       {proto.TaskExtractKeyTerms},
	proto.TaskTermAlignmentSummary: {proto.TaskTermValidation},
	proto.TaskHandoffPacket:        {proto.TaskExtractKeyTerms},

	proto.TaskDefineEarlyIndicators: {proto.TaskBuildRolloutChecklist},
}

// DependsOn reports whether name consumes data from failed, directly or
// transitively.
func DependsOn(name, failed proto.TaskName) bool {
	seen := make(map[proto.TaskName]bool)
	var walk func(n proto.TaskName) bool
	walk = func(n proto.TaskName) bool {
		if seen[n] {
			return false
		}
		seen[n] = true
		for _, dep := range taskDeps[n] {
			if dep == failed || walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(name)
}
