package task

import (
	"context"
	"fmt"
	"strings"

	"caseflow/pkg/constraints"
	"caseflow/pkg/proto"
)

// Target multipliers applied to the lowest bid.
const (
	targetMultiplier         = 0.95
	aggressiveMultiplier     = 0.92
	collaborativeMultiplier  = 0.97
	walkawayMultiplier       = 1.10
	leverageSpreadFloorPct   = 10.0
	competitiveBidCountFloor = 3
)

// LeveragePoint is one identified negotiation lever.
type LeveragePoint struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Strength    string `json:"strength"`
	UseWith     string `json:"use_with"`
}

// PriceAnomaly flags a bid priced far from the field.
type PriceAnomaly struct {
	SupplierID   string  `json:"supplier_id"`
	PriceUSD     float64 `json:"price_usd"`
	DeviationPct float64 `json:"deviation_pct"`
	Direction    string  `json:"direction"`
	Concern      string  `json:"concern"`
}

// NegotiationTargets holds target, fallback, and walk-away positions.
type NegotiationTargets struct {
	TargetPriceUSD   float64 `json:"target_price_usd"`
	FallbackPriceUSD float64 `json:"fallback_price_usd"`
	WalkawayPriceUSD float64 `json:"walkaway_price_usd"`
	TermMonths       int     `json:"term_months"`
	Posture          string  `json:"posture"`
}

// GiveGet is one trade option in the negotiation playbook.
type GiveGet struct {
	Give string `json:"give"`
	Get  string `json:"get"`
}

type compareBids struct {
	baseTask
	r *Runner
}

func (t *compareBids) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	bids, err := t.r.store.BidsForCase(tc.Case.CaseID)
	if err != nil {
		return phaseOut{}, fmt.Errorf("bid query: %w", err)
	}

	p := out(map[string]any{"bids": bids})
	for _, b := range bids {
		p.refs = append(p.refs, proto.GroundingRef{
			SourceType: proto.GroundDataRow,
			SourceID:   b.BidID,
			Relevance:  1,
			Excerpt:    fmt.Sprintf("%s bid $%.0f, %d day lead time", b.SupplierID, b.PriceUSD, b.LeadTimeDays),
		})
	}
	return p, nil
}

func (t *compareBids) Analyze(tc *Context) phaseOut {
	bids := bidsFrom(tc)
	if len(bids) < 2 {
		return out(map[string]any{"bid_count": len(bids)})
	}

	prices := make([]float64, len(bids))
	for i, b := range bids {
		prices[i] = b.PriceUSD
	}
	minP, maxP := prices[0], prices[0]
	for _, p := range prices[1:] {
		if p < minP {
			minP = p
		}
		if p > maxP {
			maxP = p
		}
	}
	spread := maxP - minP
	spreadPct := 0.0
	if minP > 0 {
		spreadPct = spread / minP * 100
	}

	return out(map[string]any{
		"bid_count":        len(bids),
		"price_low_usd":    minP,
		"price_high_usd":   maxP,
		"price_spread_usd": spread,
		"price_spread_pct": spreadPct,
	})
}

type benchmarkRetrieval struct {
	baseTask
	r *Runner
}

func (t *benchmarkRetrieval) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	benchmarks, err := t.r.store.PriceBenchmarks(tc.Case.CategoryID)
	if err != nil {
		return phaseOut{}, fmt.Errorf("benchmark query: %w", err)
	}

	p := out(nil)
	var values []float64
	for _, b := range benchmarks {
		values = append(values, b.UnitPriceUSD)
		p.refs = append(p.refs, proto.GroundingRef{
			SourceType: proto.GroundDataRow,
			SourceID:   fmt.Sprintf("benchmark:%s:%s", b.CategoryID, b.Source),
			Relevance:  1,
			Excerpt:    fmt.Sprintf("%s unit price $%.0f", b.Source, b.UnitPriceUSD),
		})
	}

	p.data = map[string]any{
		"benchmark_count":    len(benchmarks),
		"benchmark_mean_usd": mean(values),
	}

	if t.r.ret != nil {
		if err := tc.countTool(); err == nil {
			if results, serr := t.r.ret.Search(ctx, fmt.Sprintf("market price benchmark %s", tc.Case.CategoryID), 1, nil); serr == nil {
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

type priceAnomalyDetection struct {
	baseTask
}

func (t *priceAnomalyDetection) Analyze(tc *Context) phaseOut {
	bids := bidsFrom(tc)
	var anomalies []PriceAnomaly
	if len(bids) >= 2 {
		prices := make([]float64, len(bids))
		for i, b := range bids {
			prices[i] = b.PriceUSD
		}
		m := mean(prices)
		for _, b := range bids {
			deviation := pctFromMean(b.PriceUSD, m)
			if deviation > priceDeviationPctMax {
				direction := "above"
				concern := "price significantly above the field, challenge the premium"
				if b.PriceUSD < m {
					direction = "below"
					concern = "unusually low, verify scope coverage before relying on it"
				}
				anomalies = append(anomalies, PriceAnomaly{
					SupplierID:   b.SupplierID,
					PriceUSD:     b.PriceUSD,
					DeviationPct: deviation,
					Direction:    direction,
					Concern:      concern,
				})
			}
		}
	}
	return out(map[string]any{"price_anomalies": anomalies})
}

type leverageExtraction struct {
	baseTask
}

func (t *leverageExtraction) Analyze(tc *Context) phaseOut {
	bids := bidsFrom(tc)
	spreadPct, _ := fromData[float64](tc, "price_spread_pct")

	var points []LeveragePoint
	if spreadPct > leverageSpreadFloorPct {
		points = append(points, LeveragePoint{
			Type:        "price_competition",
			Description: fmt.Sprintf("Bid spread of %.0f%% creates negotiation room", spreadPct),
			Strength:    "high",
			UseWith:     "higher-priced bidders",
		})
	}
	if len(bids) >= competitiveBidCountFloor {
		points = append(points, LeveragePoint{
			Type:        "competition",
			Description: fmt.Sprintf("%d competitive bids strengthen the buyer position", len(bids)),
			Strength:    "high",
			UseWith:     "all suppliers",
		})
	}
	if anomalies, _ := fromData[[]PriceAnomaly](tc, "price_anomalies"); len(anomalies) > 0 {
		points = append(points, LeveragePoint{
			Type:        "price_anomaly",
			Description: fmt.Sprintf("%d bids priced far from the field invite scrutiny", len(anomalies)),
			Strength:    "medium",
			UseWith:     "outlier bidders",
		})
	}
	return out(map[string]any{"leverage_points": points})
}

// proposeTargets computes target, fallback, and walk-away prices from
// the bid field. The user's posture and budget cap shape the numbers;
// the backend never does.
type proposeTargets struct {
	baseTask
}

func (t *proposeTargets) Analyze(tc *Context) phaseOut {
	low, ok := fromData[float64](tc, "price_low_usd")
	if !ok || low <= 0 {
		return out(map[string]any{})
	}

	multiplier := targetMultiplier
	posture := "standard"
	if tc.Constraints != nil {
		switch tc.Constraints.NegotiationPosture {
		case constraints.PostureAggressive:
			multiplier = aggressiveMultiplier
			posture = "aggressive"
		case constraints.PostureCollaborative:
			multiplier = collaborativeMultiplier
			posture = "collaborative"
		}
	}

	targets := NegotiationTargets{
		TargetPriceUSD:   low * multiplier,
		FallbackPriceUSD: low,
		WalkawayPriceUSD: low * walkawayMultiplier,
		TermMonths:       36,
		Posture:          posture,
	}

	if tc.Constraints != nil && tc.Constraints.MaxBudgetUSD > 0 && targets.WalkawayPriceUSD > tc.Constraints.MaxBudgetUSD {
		targets.WalkawayPriceUSD = tc.Constraints.MaxBudgetUSD
		if targets.TargetPriceUSD > targets.WalkawayPriceUSD {
			targets.TargetPriceUSD = targets.WalkawayPriceUSD
		}
	}

	return out(map[string]any{"negotiation_targets": targets})
}

type negotiationPlaybook struct {
	baseTask
}

func (t *negotiationPlaybook) Analyze(tc *Context) phaseOut {
	return out(map[string]any{
		"give_get_options": []GiveGet{
			{Give: "Longer term commitment", Get: "Lower unit price"},
			{Give: "Faster payment terms", Get: "Price discount"},
			{Give: "Volume commitment", Get: "Service level upgrade"},
		},
	})
}

func (t *negotiationPlaybook) Narration(tc *Context) (string, bool) {
	targets, ok := fromData[NegotiationTargets](tc, "negotiation_targets")
	if !ok {
		return "", false
	}
	points, _ := fromData[[]LeveragePoint](tc, "leverage_points")

	var b strings.Builder
	b.WriteString("Write a brief negotiation playbook from these prepared positions.\n\nLeverage:\n")
	for _, lp := range points {
		fmt.Fprintf(&b, "- %s (%s)\n", lp.Description, lp.Strength)
	}
	fmt.Fprintf(&b, "\nTarget price: $%.0f\nFallback: $%.0f\nWalk-away: $%.0f\nPosture: %s\n",
		targets.TargetPriceUSD, targets.FallbackPriceUSD, targets.WalkawayPriceUSD, targets.Posture)
	return b.String(), true
}
