package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"caseflow/pkg/proto"
)

// ContractTerm is one extracted term of the contract under review.
type ContractTerm struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// TermIssue flags a contract term that fails a validation rule.
type TermIssue struct {
	Term     string `json:"term"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// HandoffItem is one entry in the implementation handoff packet.
type HandoffItem struct {
	Item  string `json:"item"`
	Owner string `json:"owner"`
	Due   string `json:"due"`
}

type extractKeyTerms struct {
	baseTask
	r *Runner
}

func (t *extractKeyTerms) Rules(tc *Context) phaseOut {
	if tc.Case.ContractID == "" {
		p := out(map[string]any{"skip_reason": "no contract on case"})
		p.skip = true
		return p
	}
	return out(nil)
}

func (t *extractKeyTerms) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	contract, err := t.r.store.ContractByID(tc.Case.ContractID)
	if err != nil {
		return phaseOut{}, fmt.Errorf("contract lookup: %w", err)
	}

	terms := []ContractTerm{
		{Name: "contract_value", Value: fmt.Sprintf("$%.0f", contract.ValueUSD), Source: contract.ContractID},
		{Name: "end_date", Value: contract.EndDate.Format("2006-01-02"), Source: contract.ContractID},
		{Name: "auto_renew", Value: fmt.Sprintf("%t", contract.AutoRenew), Source: contract.ContractID},
		{Name: "supplier", Value: contract.SupplierID, Source: contract.ContractID},
	}

	p := out(map[string]any{
		"contract":  *contract,
		"key_terms": terms,
	})
	p.refs = append(p.refs, proto.GroundingRef{
		SourceType: proto.GroundDataRow,
		SourceID:   contract.ContractID,
		Relevance:  1,
		Excerpt:    fmt.Sprintf("contract with %s, $%.0f, ends %s", contract.SupplierID, contract.ValueUSD, contract.EndDate.Format("2006-01-02")),
	})

	if t.r.ret != nil {
		if err := tc.countTool(); err == nil {
			if results, serr := t.r.ret.Search(ctx, "contract key terms review checklist", 1, map[string]string{"kind": "guide"}); serr == nil {
				for _, res := range results {
					p.refs = append(p.refs, proto.GroundingRef{
						SourceType: proto.GroundDocument,
						SourceID:   res.Document.ID,
						Relevance:  res.Relevance,
						Excerpt:    snippet(res.Document.Content, 160),
					})
				}
			}
		}
	}
	return p, nil
}

type termValidation struct {
	baseTask
}

func (t *termValidation) Rules(tc *Context) phaseOut {
	p := out(map[string]any{
		"validation_rules": []string{
			"auto-renew clauses require an explicit review reminder",
			"contract value must not exceed the approved budget",
			"end date must be in the future at signing",
		},
	})
	p.refs = append(p.refs, proto.GroundingRef{
		SourceType: proto.GroundRule,
		SourceID:   "policy-contract-terms-001",
		Relevance:  1,
		Excerpt:    "standard contract term validation rules",
	})
	return p
}

func (t *termValidation) Analyze(tc *Context) phaseOut {
	var issues []TermIssue

	if contract, ok := contractFrom(tc); ok {
		if contract.AutoRenew {
			issues = append(issues, TermIssue{
				Term:     "auto_renew",
				Rule:     "auto-renew clauses require an explicit review reminder",
				Severity: "medium",
				Detail:   "set a renewal review ahead of the notice window",
			})
		}
		if !contract.EndDate.After(time.Now()) {
			issues = append(issues, TermIssue{
				Term:     "end_date",
				Rule:     "end date must be in the future at signing",
				Severity: "high",
				Detail:   fmt.Sprintf("contract end date %s has already passed", contract.EndDate.Format("2006-01-02")),
			})
		}
		if tc.Constraints != nil && tc.Constraints.MaxBudgetUSD > 0 && contract.ValueUSD > tc.Constraints.MaxBudgetUSD {
			issues = append(issues, TermIssue{
				Term:     "contract_value",
				Rule:     "contract value must not exceed the approved budget",
				Severity: "high",
				Detail:   fmt.Sprintf("value $%.0f exceeds budget $%.0f", contract.ValueUSD, tc.Constraints.MaxBudgetUSD),
			})
		}
	}

	return out(map[string]any{
		"term_issues": issues,
		"terms_valid": len(issues) == 0,
	})
}

type termAlignmentSummary struct {
	baseTask
}

func (t *termAlignmentSummary) Analyze(tc *Context) phaseOut {
	issues, _ := fromData[[]TermIssue](tc, "term_issues")
	status := "aligned"
	if len(issues) > 0 {
		status = "issues found"
	}
	return out(map[string]any{
		"alignment_status": status,
		"summary":          fmt.Sprintf("Term review: %s, %d issue(s) flagged.", status, len(issues)),
	})
}

func (t *termAlignmentSummary) Narration(tc *Context) (string, bool) {
	terms, ok := fromData[[]ContractTerm](tc, "key_terms")
	if !ok {
		return "", false
	}
	issues, _ := fromData[[]TermIssue](tc, "term_issues")

	var b strings.Builder
	b.WriteString("Summarize this contract term review for a procurement lead.\n\nKey terms:\n")
	for _, kt := range terms {
		fmt.Fprintf(&b, "- %s: %s\n", kt.Name, kt.Value)
	}
	if len(issues) == 0 {
		b.WriteString("\nValidation: all rules passed.\n")
	} else {
		b.WriteString("\nIssues:\n")
		for _, is := range issues {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", is.Severity, is.Term, is.Detail)
		}
	}
	return b.String(), true
}

// handoffPacket assembles the implementation handoff from prior task
// output. It is deterministic so the packet survives backend outages.
type handoffPacket struct {
	baseTask
}

func (t *handoffPacket) Analyze(tc *Context) phaseOut {
	items := []HandoffItem{
		{Item: "Signed contract filed in the repository", Owner: "contract_manager", Due: "on signature"},
		{Item: "Supplier onboarding initiated", Owner: "category_manager", Due: "week 1"},
		{Item: "Catalog and pricing loaded", Owner: "operations", Due: "week 2"},
		{Item: "Stakeholders notified of the new agreement", Owner: "category_manager", Due: "week 1"},
	}
	if issues, _ := fromData[[]TermIssue](tc, "term_issues"); len(issues) > 0 {
		items = append(items, HandoffItem{
			Item:  fmt.Sprintf("Resolve %d open term issue(s) before go-live", len(issues)),
			Owner: "contract_manager",
			Due:   "before kick-off",
		})
	}

	packet := map[string]any{
		"case_id":     tc.Case.CaseID,
		"contract_id": tc.Case.ContractID,
		"supplier_id": tc.Case.SupplierID,
		"items":       items,
	}
	return out(map[string]any{"handoff_packet": packet})
}
