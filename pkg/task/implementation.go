package task

import (
	"context"
	"fmt"
	"time"

	"caseflow/pkg/proto"
)

// Savings breakdown shares and the fallback baseline uplift.
const (
	savingsHardShare      = 0.70
	savingsSoftShare      = 0.20
	savingsAvoidanceShare = 0.10
	baselineUpliftFactor  = 1.10
)

// ChecklistItem is one step of the rollout plan.
type ChecklistItem struct {
	Phase   string `json:"phase"`
	Item    string `json:"item"`
	Owner   string `json:"owner"`
	DueDate string `json:"due_date"`
}

// SavingsEstimate is the projected value of the new agreement.
type SavingsEstimate struct {
	OldAnnualUSD      float64 `json:"old_annual_usd"`
	NewAnnualUSD      float64 `json:"new_annual_usd"`
	TotalSavingsUSD   float64 `json:"total_savings_usd"`
	SavingsPct        float64 `json:"savings_pct"`
	HardSavingsUSD    float64 `json:"hard_savings_usd"`
	SoftSavingsUSD    float64 `json:"soft_savings_usd"`
	CostAvoidanceUSD  float64 `json:"cost_avoidance_usd"`
	BaselineEstimated bool    `json:"baseline_estimated"`
}

// EarlyIndicator is one KPI tracked during the first rollout weeks.
type EarlyIndicator struct {
	Name      string `json:"name"`
	Target    string `json:"target"`
	Frequency string `json:"frequency"`
	Owner     string `json:"owner"`
}

type buildRolloutChecklist struct {
	baseTask
	r *Runner
}

func (t *buildRolloutChecklist) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	p := out(nil)
	if t.r.ret == nil {
		return p, nil
	}
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	results, err := t.r.ret.Search(ctx, "supplier transition rollout plan phases", 1, map[string]string{"kind": "guide"})
	if err != nil {
		return p, nil
	}
	for _, res := range results {
		p.refs = append(p.refs, proto.GroundingRef{
			SourceType: proto.GroundDocument,
			SourceID:   res.Document.ID,
			Relevance:  res.Relevance,
			Excerpt:    snippet(res.Document.Content, 160),
		})
	}
	return p, nil
}

func (t *buildRolloutChecklist) Analyze(tc *Context) phaseOut {
	start := time.Now().UTC()
	due := func(days int) string { return start.AddDate(0, 0, days).Format("2006-01-02") }

	checklist := []ChecklistItem{
		{Phase: "Preparation", Item: "Confirm contract execution and internal approvals", Owner: "contract_manager", DueDate: due(7)},
		{Phase: "Preparation", Item: "Complete supplier onboarding and system setup", Owner: "operations", DueDate: due(14)},
		{Phase: "Kick-off", Item: "Hold joint kick-off with supplier and stakeholders", Owner: "category_manager", DueDate: due(21)},
		{Phase: "Kick-off", Item: "Publish ordering and escalation procedures", Owner: "category_manager", DueDate: due(28)},
		{Phase: "Transition", Item: "Migrate open orders from the prior arrangement", Owner: "operations", DueDate: due(60)},
		{Phase: "Steady State", Item: "Run the first quarterly business review", Owner: "category_manager", DueDate: due(90)},
	}

	return out(map[string]any{
		"rollout_checklist": checklist,
		"rollout_days":      90,
	})
}

type computeExpectedSavings struct {
	baseTask
	r *Runner
}

func (t *computeExpectedSavings) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if tc.Case.ContractID == "" {
		return out(nil), nil
	}
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	contract, err := t.r.store.ContractByID(tc.Case.ContractID)
	if err != nil {
		return phaseOut{}, fmt.Errorf("contract lookup: %w", err)
	}

	p := out(map[string]any{"new_annual_usd": contract.ValueUSD})
	p.refs = append(p.refs, proto.GroundingRef{
		SourceType: proto.GroundDataRow,
		SourceID:   contract.ContractID,
		Relevance:  1,
		Excerpt:    fmt.Sprintf("contract value $%.0f", contract.ValueUSD),
	})
	return p, nil
}

func (t *computeExpectedSavings) Analyze(tc *Context) phaseOut {
	newCost, ok := fromData[float64](tc, "new_annual_usd")
	if !ok || newCost <= 0 {
		if targets, tok := fromData[NegotiationTargets](tc, "negotiation_targets"); tok {
			newCost = targets.TargetPriceUSD
		}
	}
	if newCost <= 0 {
		newCost = tc.Case.EstimatedValue
	}
	if newCost <= 0 {
		return out(map[string]any{})
	}

	// Without a recorded prior baseline, assume the old arrangement
	// cost 10% more than the new one.
	oldCost := 0.0
	estimated := true
	if spend := spendFrom(tc); len(spend) > 0 {
		for _, rec := range spend {
			oldCost += rec.AmountUSD
		}
		estimated = false
	}
	if oldCost <= newCost {
		oldCost = newCost * baselineUpliftFactor
		estimated = true
	}

	total := oldCost - newCost
	est := SavingsEstimate{
		OldAnnualUSD:      oldCost,
		NewAnnualUSD:      newCost,
		TotalSavingsUSD:   total,
		SavingsPct:        total / oldCost * 100,
		HardSavingsUSD:    total * savingsHardShare,
		SoftSavingsUSD:    total * savingsSoftShare,
		CostAvoidanceUSD:  total * savingsAvoidanceShare,
		BaselineEstimated: estimated,
	}

	p := out(map[string]any{"savings_estimate": est})
	p.refs = append(p.refs, proto.GroundingRef{
		SourceType: proto.GroundRule,
		SourceID:   "policy-savings-method-001",
		Relevance:  1,
		Excerpt:    "savings split 70% hard, 20% soft, 10% avoidance",
	})
	return p
}

func (t *computeExpectedSavings) Narration(tc *Context) (string, bool) {
	est, ok := fromData[SavingsEstimate](tc, "savings_estimate")
	if !ok {
		return "", false
	}
	prompt := fmt.Sprintf(
		"Explain this savings projection to a finance stakeholder.\n\nOld annual cost: $%.0f\nNew annual cost: $%.0f\nTotal savings: $%.0f (%.1f%%)\nHard: $%.0f, soft: $%.0f, avoidance: $%.0f\nBaseline estimated: %t\n",
		est.OldAnnualUSD, est.NewAnnualUSD, est.TotalSavingsUSD, est.SavingsPct,
		est.HardSavingsUSD, est.SoftSavingsUSD, est.CostAvoidanceUSD, est.BaselineEstimated)
	return prompt, true
}

type defineEarlyIndicators struct {
	baseTask
}

func (t *defineEarlyIndicators) Analyze(tc *Context) phaseOut {
	indicators := []EarlyIndicator{
		{Name: "On-time delivery rate", Target: ">= 95%", Frequency: "weekly", Owner: "operations"},
		{Name: "Invoice price accuracy", Target: "matches contracted rates", Frequency: "weekly", Owner: "finance"},
		{Name: "Order acceptance time", Target: "< 24 hours", Frequency: "weekly", Owner: "operations"},
		{Name: "Quality incident count", Target: "0 critical incidents", Frequency: "weekly", Owner: "category_manager"},
		{Name: "Realized savings vs plan", Target: "within 5% of projection", Frequency: "monthly", Owner: "finance"},
	}
	return out(map[string]any{"early_indicators": indicators})
}

type reportingTemplates struct {
	baseTask
}

func (t *reportingTemplates) Analyze(tc *Context) phaseOut {
	templates := []map[string]any{
		{
			"name":      "weekly_rollout_status",
			"frequency": "weekly",
			"sections":  []string{"checklist progress", "open issues", "indicator readings"},
		},
		{
			"name":      "monthly_value_report",
			"frequency": "monthly",
			"sections":  []string{"realized savings", "spend under contract", "supplier performance"},
		},
	}
	return out(map[string]any{"reporting_templates": templates})
}

func (t *reportingTemplates) Narration(tc *Context) (string, bool) {
	checklist, _ := fromData[[]ChecklistItem](tc, "rollout_checklist")
	indicators, _ := fromData[[]EarlyIndicator](tc, "early_indicators")
	if len(checklist) == 0 && len(indicators) == 0 {
		return "", false
	}
	prompt := fmt.Sprintf(
		"Write a short implementation kick-off note. The rollout has %d checklist items over 90 days and %d early indicators tracked weekly or monthly. Describe how progress will be reported.",
		len(checklist), len(indicators))
	return prompt, true
}
