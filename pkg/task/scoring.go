package task

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"caseflow/pkg/proto"
)

// Eligibility cutoffs from the supplier risk policy.
const (
	eligibilityMinScore = 4.0
	eligibilityMaxRisk  = 0.8
)

// Criterion is one weighted evaluation dimension.
type Criterion struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// SupplierMetrics carries one supplier's metrics normalized to 0-10.
type SupplierMetrics struct {
	SupplierID string  `json:"supplier_id"`
	Name       string  `json:"name"`
	Quality    float64 `json:"quality"`
	Delivery   float64 `json:"delivery"`
	Risk       float64 `json:"risk"` // inverted: higher is safer
	Incumbent  bool    `json:"incumbent"`
	RawRisk    float64 `json:"raw_risk"`
}

// ScoredSupplier is one ranked evaluation row.
type ScoredSupplier struct {
	SupplierID string             `json:"supplier_id"`
	Name       string             `json:"name"`
	TotalScore float64            `json:"total_score"`
	Rank       int                `json:"rank"`
	Breakdown  map[string]float64 `json:"breakdown"`
	Incumbent  bool               `json:"incumbent"`
	Excluded   bool               `json:"excluded"`
	Preferred  bool               `json:"preferred"`
}

// buildEvaluationCriteria defines the scoring weights. Priority
// criteria from the user's constraints shift the weights before any
// data is touched.
type buildEvaluationCriteria struct {
	baseTask
}

func (t *buildEvaluationCriteria) Rules(tc *Context) phaseOut {
	criteria := []Criterion{
		{Name: "Quality", Weight: 0.35},
		{Name: "Delivery", Weight: 0.30},
		{Name: "Risk", Weight: 0.35},
	}

	if tc.Constraints != nil {
		for _, pc := range tc.Constraints.PriorityCriteria {
			for i := range criteria {
				if strings.EqualFold(criteria[i].Name, pc) {
					criteria[i].Weight += 0.15
				}
			}
		}
		rebalance(criteria)
	}

	return out(map[string]any{"criteria": criteria}, proto.GroundingRef{
		SourceType: proto.GroundRule,
		SourceID:   "criteria-template-001",
		Relevance:  1,
		Excerpt:    "default evaluation template",
	})
}

func rebalance(criteria []Criterion) {
	var total float64
	for _, c := range criteria {
		total += c.Weight
	}
	if total == 0 {
		return
	}
	for i := range criteria {
		criteria[i].Weight /= total
	}
}

type pullSupplierPerformance struct {
	baseTask
	r *Runner
}

func (t *pullSupplierPerformance) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	suppliers, err := t.r.store.SuppliersForCategory(tc.Case.CategoryID)
	if err != nil {
		return phaseOut{}, fmt.Errorf("supplier performance query: %w", err)
	}

	p := out(map[string]any{"category_suppliers": suppliers})
	for _, s := range suppliers {
		p.refs = append(p.refs, proto.GroundingRef{
			SourceType: proto.GroundDataRow,
			SourceID:   s.SupplierID,
			Relevance:  1,
			Excerpt:    fmt.Sprintf("%s quality %.1f, on-time %.0f%%", s.Name, s.QualityScore, s.OnTimeRate*100),
		})
	}
	return p, nil
}

type pullRiskIndicators struct {
	baseTask
	r *Runner
}

func (t *pullRiskIndicators) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if t.r.ret == nil {
		return phaseOut{}, nil
	}
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	results, err := t.r.ret.Search(ctx, "supplier risk on-time delivery policy thresholds", 1, map[string]string{"kind": "policy"})
	if err != nil {
		return phaseOut{}, fmt.Errorf("risk policy retrieval: %w", err)
	}

	var p phaseOut
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

func (t *pullRiskIndicators) Analyze(tc *Context) phaseOut {
	var flags []Signal
	for _, s := range suppliersFrom(tc) {
		if s.RiskScore > riskScoreCeil {
			flags = append(flags, Signal{
				Type:       "risk_alert",
				Severity:   "high",
				SupplierID: s.SupplierID,
				Message:    fmt.Sprintf("%s risk score %.1f above policy ceiling %.1f", s.Name, s.RiskScore, riskScoreCeil),
			})
		}
	}
	return out(map[string]any{"risk_flags": flags})
}

type normalizeMetrics struct {
	baseTask
}

func (t *normalizeMetrics) Analyze(tc *Context) phaseOut {
	var normalized []SupplierMetrics
	for _, s := range suppliersFrom(tc) {
		normalized = append(normalized, SupplierMetrics{
			SupplierID: s.SupplierID,
			Name:       s.Name,
			Quality:    clamp10(s.QualityScore),
			Delivery:   clamp10(s.OnTimeRate * 10),
			Risk:       clamp10((1 - s.RiskScore) * 10),
			Incumbent:  s.Incumbent,
			RawRisk:    s.RiskScore,
		})
	}
	return out(map[string]any{"normalized_metrics": normalized})
}

type computeScoresAndRank struct {
	baseTask
}

func (t *computeScoresAndRank) Analyze(tc *Context) phaseOut {
	criteria, _ := fromData[[]Criterion](tc, "criteria")
	normalized, _ := fromData[[]SupplierMetrics](tc, "normalized_metrics")

	var ranked []ScoredSupplier
	for _, m := range normalized {
		row := ScoredSupplier{
			SupplierID: m.SupplierID,
			Name:       m.Name,
			Incumbent:  m.Incumbent,
			Breakdown:  make(map[string]float64, len(criteria)),
		}
		for _, c := range criteria {
			var value float64
			switch c.Name {
			case "Quality":
				value = m.Quality
			case "Delivery":
				value = m.Delivery
			case "Risk":
				value = m.Risk
			}
			row.Breakdown[c.Name] = value
			row.TotalScore += value * c.Weight
		}
		row.TotalScore = float64(int(row.TotalScore*100)) / 100

		if tc.Constraints != nil {
			for _, ex := range tc.Constraints.ExcludedSuppliers {
				if strings.EqualFold(ex, m.Name) || strings.EqualFold(ex, m.SupplierID) {
					row.Excluded = true
				}
			}
			if strings.EqualFold(tc.Constraints.PreferredSupplier, m.Name) ||
				strings.EqualFold(tc.Constraints.PreferredSupplier, m.SupplierID) {
				row.Preferred = true
			}
		}
		ranked = append(ranked, row)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Excluded != ranked[j].Excluded {
			return !ranked[i].Excluded
		}
		return ranked[i].TotalScore > ranked[j].TotalScore
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return out(map[string]any{"ranked_suppliers": ranked})
}

// eligibilityChecks applies the policy cutoffs. It pulls supplier rows
// itself when it runs ahead of the scoring tasks.
type eligibilityChecks struct {
	baseTask
	r *Runner
}

func (t *eligibilityChecks) Rules(tc *Context) phaseOut {
	return out(map[string]any{
		"eligibility_min_score": eligibilityMinScore,
		"eligibility_max_risk":  eligibilityMaxRisk,
	}, proto.GroundingRef{
		SourceType: proto.GroundRule,
		SourceID:   "policy-eligibility-001",
		Relevance:  1,
		Excerpt:    "supplier eligibility policy",
	})
}

func (t *eligibilityChecks) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if len(suppliersFrom(tc)) > 0 {
		return phaseOut{}, nil
	}
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	suppliers, err := t.r.store.SuppliersForCategory(tc.Case.CategoryID)
	if err != nil {
		return phaseOut{}, fmt.Errorf("eligibility supplier query: %w", err)
	}
	return out(map[string]any{"category_suppliers": suppliers}), nil
}

func (t *eligibilityChecks) Analyze(tc *Context) phaseOut {
	var eligible, ineligible []string
	issues := make(map[string][]string)

	for _, s := range suppliersFrom(tc) {
		var problems []string
		if s.QualityScore < eligibilityMinScore {
			problems = append(problems, fmt.Sprintf("quality %.1f below minimum %.1f", s.QualityScore, eligibilityMinScore))
		}
		if s.RiskScore > eligibilityMaxRisk {
			problems = append(problems, fmt.Sprintf("risk %.1f above maximum %.1f", s.RiskScore, eligibilityMaxRisk))
		}
		if len(problems) == 0 {
			eligible = append(eligible, s.SupplierID)
		} else {
			ineligible = append(ineligible, s.SupplierID)
			issues[s.SupplierID] = problems
		}
	}

	return out(map[string]any{
		"eligible_suppliers":   eligible,
		"ineligible_suppliers": ineligible,
		"eligibility_issues":   issues,
	})
}

type generateExplanations struct {
	baseTask
}

func (t *generateExplanations) Narration(tc *Context) (string, bool) {
	ranked, _ := fromData[[]ScoredSupplier](tc, "ranked_suppliers")
	if len(ranked) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("Explain this supplier ranking to the case owner. Scores are 0-10.\n\n")
	for i, s := range ranked {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "%d. %s: total %.2f (", s.Rank, s.Name, s.TotalScore)
		first := true
		for _, name := range []string{"Quality", "Delivery", "Risk"} {
			if v, ok := s.Breakdown[name]; ok {
				if !first {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s %.1f", name, v)
				first = false
			}
		}
		b.WriteString(")")
		if s.Excluded {
			b.WriteString(" [excluded by user constraint]")
		}
		if s.Preferred {
			b.WriteString(" [preferred by user]")
		}
		b.WriteString("\n")
	}
	return b.String(), true
}

func (t *generateExplanations) Analyze(tc *Context) phaseOut {
	ranked, _ := fromData[[]ScoredSupplier](tc, "ranked_suppliers")
	if len(ranked) == 0 {
		return out(map[string]any{"explanation": "No suppliers available to rank."})
	}
	top := ranked[0]
	return out(map[string]any{
		"explanation": fmt.Sprintf("%s ranks first at %.2f/10.", top.Name, top.TotalScore),
	})
}
