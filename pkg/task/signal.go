package task

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"caseflow/pkg/proto"
)

// Contract expiry windows in days.
const (
	expiryUrgentDays  = 30
	expiryWarningDays = 90
)

// Supplier health floors from the category risk policy.
const (
	onTimeFloor   = 0.85
	riskScoreCeil = 0.5
)

// Signal is one detected sourcing opportunity or concern.
type Signal struct {
	Type            string  `json:"signal_type"`
	Severity        string  `json:"severity"`
	Message         string  `json:"message"`
	ContractID      string  `json:"contract_id,omitempty"`
	SupplierID      string  `json:"supplier_id,omitempty"`
	DaysUntilExpiry int     `json:"days_until_expiry,omitempty"`
	AmountUSD       float64 `json:"amount_usd,omitempty"`
	Period          string  `json:"period,omitempty"`
}

// Recommendation is one autoprep follow-up action.
type Recommendation struct {
	Action   string `json:"action"`
	Priority string `json:"priority"`
	Reason   string `json:"reason"`
}

type detectContractExpiry struct {
	baseTask
	r *Runner
}

func (t *detectContractExpiry) Rules(tc *Context) phaseOut {
	return out(map[string]any{
		"expiry_urgent_days":  expiryUrgentDays,
		"expiry_warning_days": expiryWarningDays,
	})
}

func (t *detectContractExpiry) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	cutoff := time.Now().AddDate(0, 0, expiryWarningDays)
	contracts, err := t.r.store.ContractsExpiringWithin(tc.Case.CategoryID, cutoff)
	if err != nil {
		return phaseOut{}, fmt.Errorf("contract expiry query: %w", err)
	}

	p := out(map[string]any{"expiring_contracts": contracts})
	for _, c := range contracts {
		p.refs = append(p.refs, proto.GroundingRef{
			SourceType: proto.GroundDataRow,
			SourceID:   c.ContractID,
			Relevance:  1,
			Excerpt:    fmt.Sprintf("contract %s ends %s", c.ContractID, c.EndDate.Format("2006-01-02")),
		})
	}
	return p, nil
}

func (t *detectContractExpiry) Analyze(tc *Context) phaseOut {
	var signals []Signal
	now := time.Now()
	for _, c := range contractsFrom(tc, "expiring_contracts") {
		days := int(c.EndDate.Sub(now).Hours() / 24)
		severity := "medium"
		if days <= expiryUrgentDays {
			severity = "high"
		}
		signals = append(signals, Signal{
			Type:            "contract_expiry",
			Severity:        severity,
			Message:         fmt.Sprintf("Contract %s expires in %d days ($%.0f annual)", c.ContractID, days, c.ValueUSD),
			ContractID:      c.ContractID,
			SupplierID:      c.SupplierID,
			DaysUntilExpiry: days,
			AmountUSD:       c.ValueUSD,
		})
	}
	return out(map[string]any{"expiry_signals": signals})
}

type detectPerformanceDrop struct {
	baseTask
	r *Runner
}

func (t *detectPerformanceDrop) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	suppliers, err := t.r.store.SuppliersForCategory(tc.Case.CategoryID)
	if err != nil {
		return phaseOut{}, fmt.Errorf("supplier query: %w", err)
	}

	p := out(map[string]any{"category_suppliers": suppliers})
	for _, s := range suppliers {
		p.refs = append(p.refs, proto.GroundingRef{
			SourceType: proto.GroundDataRow,
			SourceID:   s.SupplierID,
			Relevance:  1,
			Excerpt:    fmt.Sprintf("%s on-time %.0f%%, risk %.1f", s.Name, s.OnTimeRate*100, s.RiskScore),
		})
	}
	return p, nil
}

func (t *detectPerformanceDrop) Analyze(tc *Context) phaseOut {
	var signals []Signal
	for _, s := range suppliersFrom(tc) {
		if s.OnTimeRate < onTimeFloor {
			signals = append(signals, Signal{
				Type:       "performance_degradation",
				Severity:   "medium",
				SupplierID: s.SupplierID,
				Message:    fmt.Sprintf("%s on-time delivery at %.0f%%, below the %.0f%% floor", s.Name, s.OnTimeRate*100, onTimeFloor*100),
			})
		}
		if s.RiskScore > riskScoreCeil {
			signals = append(signals, Signal{
				Type:       "risk_alert",
				Severity:   "high",
				SupplierID: s.SupplierID,
				Message:    fmt.Sprintf("%s risk score %.1f exceeds the %.1f policy ceiling", s.Name, s.RiskScore, riskScoreCeil),
			})
		}
	}
	return out(map[string]any{"performance_signals": signals})
}

type detectSpendAnomalies struct {
	baseTask
	r *Runner
}

func (t *detectSpendAnomalies) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	history, err := t.r.store.SpendHistory(tc.Case.CategoryID)
	if err != nil {
		return phaseOut{}, fmt.Errorf("spend history query: %w", err)
	}

	p := out(map[string]any{"spend_history": history})
	for _, rec := range history {
		p.refs = append(p.refs, proto.GroundingRef{
			SourceType: proto.GroundDataRow,
			SourceID:   fmt.Sprintf("spend:%s:%s", rec.CategoryID, rec.Month),
			Relevance:  1,
		})
	}
	return p, nil
}

func (t *detectSpendAnomalies) Analyze(tc *Context) phaseOut {
	history := spendFrom(tc)
	var signals []Signal
	if len(history) >= 2 {
		amounts := make([]float64, len(history))
		for i, rec := range history {
			amounts[i] = rec.AmountUSD
		}
		m, sd := mean(amounts), stddev(amounts)
		if sd > 0 {
			for _, rec := range history {
				if pct := rec.AmountUSD - m; pct > spendSigmaThreshold*sd || -pct > spendSigmaThreshold*sd {
					signals = append(signals, Signal{
						Type:      "spend_anomaly",
						Severity:  "medium",
						Period:    rec.Month,
						AmountUSD: rec.AmountUSD,
						Message:   fmt.Sprintf("Spend anomaly in %s: $%.0f vs the $%.0f monthly mean", rec.Month, rec.AmountUSD, m),
					})
				}
			}
		}
	}
	return out(map[string]any{"spend_signals": signals})
}

// applyRelevanceFilters merges, sorts, and caps the signals from the
// three detectors and derives the urgency score. Pure analytics.
type applyRelevanceFilters struct {
	baseTask
}

func (t *applyRelevanceFilters) Rules(tc *Context) phaseOut {
	return out(map[string]any{
		"category_filter": tc.Case.CategoryID,
		"stage_filter":    string(tc.Case.Stage),
	})
}

func (t *applyRelevanceFilters) Analyze(tc *Context) phaseOut {
	var all []Signal
	for _, key := range []string{"expiry_signals", "performance_signals", "spend_signals"} {
		if s, ok := fromData[[]Signal](tc, key); ok {
			all = append(all, s...)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return severityRank(all[i].Severity) > severityRank(all[j].Severity)
	})
	if len(all) > 10 {
		all = all[:10]
	}

	return out(map[string]any{
		"signals":       all,
		"urgency_score": urgencyScore(all),
		"total_signals": len(all),
	})
}

// groundedSignalSummary narrates the filtered signals, grounding the
// summary in the policy corpus.
type groundedSignalSummary struct {
	baseTask
	r *Runner
}

func (t *groundedSignalSummary) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if t.r.ret == nil {
		return phaseOut{}, nil
	}
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	results, err := t.r.ret.Search(ctx, "sourcing pathway thresholds category signals", 2, map[string]string{"kind": "policy"})
	if err != nil {
		return phaseOut{}, fmt.Errorf("policy retrieval: %w", err)
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

func (t *groundedSignalSummary) Narration(tc *Context) (string, bool) {
	signals, _ := fromData[[]Signal](tc, "signals")
	if len(signals) == 0 {
		return "", false
	}
	urgency := 5
	if u, ok := fromData[int](tc, "urgency_score"); ok {
		urgency = u
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize these sourcing signals for the case owner.\n\nSignals:\n")
	for i, s := range signals {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", s.Message)
	}
	fmt.Fprintf(&b, "\nUrgency score: %d/10\n", urgency)
	return b.String(), true
}

func (t *groundedSignalSummary) Analyze(tc *Context) phaseOut {
	// Deterministic fallback summary; narration replaces it when the
	// backend is available.
	signals, _ := fromData[[]Signal](tc, "signals")
	if len(signals) == 0 {
		return out(map[string]any{"summary": "No significant signals detected at this time."})
	}
	return out(map[string]any{
		"summary": fmt.Sprintf("%d signals detected; most severe: %s", len(signals), signals[0].Message),
	})
}

type autoprepRecommendations struct {
	baseTask
}

func (t *autoprepRecommendations) Analyze(tc *Context) phaseOut {
	signals, _ := fromData[[]Signal](tc, "signals")

	var recs []Recommendation
	var inputs []string

	for _, s := range signals {
		if s.Type == "contract_expiry" {
			recs = append(recs, Recommendation{
				Action:   "Review contract terms",
				Priority: "high",
				Reason:   fmt.Sprintf("Contract %s expiring in %d days", s.ContractID, s.DaysUntilExpiry),
			})
			inputs = appendUnique(inputs, "Current contract document", "Supplier performance history")
			break
		}
	}
	for _, s := range signals {
		if s.Type == "performance_degradation" || s.Type == "risk_alert" {
			recs = append(recs, Recommendation{
				Action:   "Evaluate alternative suppliers",
				Priority: "medium",
				Reason:   "Current supplier showing performance or risk issues",
			})
			inputs = appendUnique(inputs, "Approved supplier list")
			break
		}
	}
	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Action:   "Continue monitoring",
			Priority: "low",
			Reason:   "No immediate action required",
		})
	}

	return out(map[string]any{
		"recommendations": recs,
		"required_inputs": inputs,
	})
}

func appendUnique(xs []string, more ...string) []string {
	for _, m := range more {
		found := false
		for _, x := range xs {
			if x == m {
				found = true
				break
			}
		}
		if !found {
			xs = append(xs, m)
		}
	}
	return xs
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
