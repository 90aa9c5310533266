package supervisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"caseflow/pkg/planner"
	"caseflow/pkg/proto"
	"caseflow/pkg/task"
)

// assemblePack turns one cycle's task results into the agent's artifact
// pack. Artifact shapes are fixed per agent family; every artifact
// derives its verification status from its claims and grounding.
func assemblePack(plan *planner.ActionPlan, cs *proto.CaseState, results []proto.TaskResult, data map[string]any, costUSD float64) *proto.ArtifactPack {
	pack := &proto.ArtifactPack{
		PackID:    uuid.New().String(),
		CaseID:    cs.CaseID,
		AgentName: plan.Agent,
		CreatedAt: time.Now().UTC(),
	}

	totalTokens := 0
	for i := range results {
		r := &results[i]
		pack.TasksExecuted = append(pack.TasksExecuted, r.TaskName)
		pack.Metadata.TaskDetail = append(pack.Metadata.TaskDetail, proto.TaskUsage{
			TaskName:   r.TaskName,
			Status:     r.Status,
			TokensUsed: r.TokensUsed,
			DurationMs: r.DurationMs,
		})
		totalTokens += r.TokensUsed
	}
	pack.Metadata.TotalTokens = totalTokens
	pack.Metadata.EstimatedCost = costUSD

	refs := collectRefs(results)
	pack.Artifacts = buildArtifacts(plan.Agent, data, refs)
	for i := range pack.Artifacts {
		pack.Artifacts[i].VerificationStatus = pack.Artifacts[i].DeriveVerification()
	}

	pack.Narrative = joinNarratives(results)
	pack.Risks = deriveRisks(data)
	pack.NextActions = nextActionsFor(cs, plan)
	return pack
}

func collectRefs(results []proto.TaskResult) []proto.GroundingRef {
	var refs []proto.GroundingRef
	seen := make(map[string]bool)
	for i := range results {
		for _, ref := range results[i].GroundedIn {
			key := string(ref.SourceType) + "/" + ref.SourceID
			if seen[key] {
				continue
			}
			seen[key] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

func joinNarratives(results []proto.TaskResult) string {
	var parts []string
	for i := range results {
		if n, ok := results[i].Data["narrative"].(string); ok && n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "\n\n")
}

// refsForSource filters the shared grounding set down to one source ID.
func refsForSource(refs []proto.GroundingRef, sourceID string) []proto.GroundingRef {
	var out []proto.GroundingRef
	for _, r := range refs {
		if r.SourceID == sourceID {
			out = append(out, r)
		}
	}
	return out
}

func buildArtifacts(agent proto.AgentName, data map[string]any, refs []proto.GroundingRef) []proto.Artifact {
	switch agent {
	case proto.AgentSourcingSignal:
		return signalArtifacts(data, refs)
	case proto.AgentSupplierScoring:
		return scoringArtifacts(data, refs)
	case proto.AgentRfxDraft:
		return rfxArtifacts(data, refs)
	case proto.AgentNegotiation:
		return negotiationArtifacts(data, refs)
	case proto.AgentContract:
		return contractArtifacts(data, refs)
	case proto.AgentImplementation:
		return implementationArtifacts(data, refs)
	default:
		return nil
	}
}

func signalArtifacts(data map[string]any, refs []proto.GroundingRef) []proto.Artifact {
	var arts []proto.Artifact

	if signals, ok := data["signals"].([]task.Signal); ok {
		report := proto.Artifact{
			Type:  proto.ArtifactSignalReport,
			Title: "Sourcing signal report",
			Content: map[string]any{
				"signals":       signals,
				"total_signals": len(signals),
				"urgency_score": data["urgency_score"],
			},
			GroundedIn: refs,
		}
		for _, s := range signals {
			sourceID := s.ContractID
			if sourceID == "" {
				sourceID = s.SupplierID
			}
			report.Claims = append(report.Claims, proto.Claim{
				Text:       s.Message,
				GroundedIn: refsForSource(refs, sourceID),
			})
		}
		arts = append(arts, report)
	}

	if summary, ok := data[string(proto.TaskGroundedSignalSummary)+"_narrative"].(string); ok && summary != "" {
		arts = append(arts, proto.Artifact{
			Type:        proto.ArtifactSignalSummary,
			Title:       "Signal summary",
			ContentText: summary,
			GroundedIn:  refs,
		})
	}

	if recs, ok := data["recommendations"].([]task.Recommendation); ok && len(recs) > 0 {
		arts = append(arts, proto.Artifact{
			Type:       proto.ArtifactAutoprepBundle,
			Title:      "Autoprep recommendations",
			Content:    map[string]any{"recommendations": recs},
			GroundedIn: refs,
		})
	}
	return arts
}

func scoringArtifacts(data map[string]any, refs []proto.GroundingRef) []proto.Artifact {
	var arts []proto.Artifact

	ranked, _ := data["ranked_suppliers"].([]task.ScoredSupplier)
	if len(ranked) > 0 {
		card := proto.Artifact{
			Type:  proto.ArtifactEvaluationScorecard,
			Title: "Supplier evaluation scorecard",
			Content: map[string]any{
				"ranked_suppliers": ranked,
				"criteria":         data["criteria"],
			},
			GroundedIn: refs,
		}
		for _, s := range ranked {
			card.Claims = append(card.Claims, proto.Claim{
				Text:       fmt.Sprintf("%s scores %.2f/10 (rank %d)", s.Name, s.TotalScore, s.Rank),
				GroundedIn: refsForSource(refs, s.SupplierID),
			})
		}
		arts = append(arts, card)

		top := ranked
		if len(top) > 3 {
			top = top[:3]
		}
		arts = append(arts, proto.Artifact{
			Type:       proto.ArtifactSupplierShortlist,
			Title:      "Supplier shortlist",
			Content:    map[string]any{"shortlist": top},
			GroundedIn: refs,
		})
	}

	if eligible, ok := data["eligible_suppliers"]; ok {
		arts = append(arts, proto.Artifact{
			Type:  proto.ArtifactEvaluationScorecard,
			Title: "Eligibility check results",
			Content: map[string]any{
				"eligible_suppliers":   eligible,
				"ineligible_suppliers": data["ineligible_suppliers"],
				"eligibility_issues":   data["eligibility_issues"],
			},
			GroundedIn: refs,
		})
	}
	return arts
}

func rfxArtifacts(data map[string]any, refs []proto.GroundingRef) []proto.Artifact {
	var arts []proto.Artifact

	if rfxType, ok := data["rfx_type"].(string); ok && rfxType != "" {
		arts = append(arts, proto.Artifact{
			Type:  proto.ArtifactRfxPath,
			Title: "RFx path selection",
			Content: map[string]any{
				"rfx_type":  rfxType,
				"rationale": data["rfx_rationale"],
			},
			GroundedIn: refs,
		})
	}

	if sections, ok := data["sections"].([]task.RfxSection); ok && len(sections) > 0 {
		arts = append(arts, proto.Artifact{
			Type:  proto.ArtifactRfxDraftPack,
			Title: "RFx draft pack",
			Content: map[string]any{
				"sections":           sections,
				"draft_questions":    data["draft_questions"],
				"is_complete":        data["is_complete"],
				"completeness_score": data["completeness_score"],
				"missing_sections":   data["missing_sections"],
			},
			GroundedIn: refs,
		})
	}

	if tracker, ok := data["qa_tracker"]; ok {
		arts = append(arts, proto.Artifact{
			Type:  proto.ArtifactRfxQATracker,
			Title: "Q&A tracker",
			Content: map[string]any{
				"qa_tracker":      tracker,
				"total_questions": data["total_questions"],
			},
			GroundedIn: refs,
		})
	}
	return arts
}

func negotiationArtifacts(data map[string]any, refs []proto.GroundingRef) []proto.Artifact {
	var arts []proto.Artifact

	if targets, ok := data["negotiation_targets"].(task.NegotiationTargets); ok {
		terms := proto.Artifact{
			Type:       proto.ArtifactTargetTerms,
			Title:      "Target terms",
			Content:    map[string]any{"targets": targets},
			GroundedIn: refs,
		}
		terms.Claims = append(terms.Claims, proto.Claim{
			Text: fmt.Sprintf("Target $%.2f, fallback $%.2f, walkaway $%.2f",
				targets.TargetPriceUSD, targets.FallbackPriceUSD, targets.WalkawayPriceUSD),
			GroundedIn: refs,
		})
		arts = append(arts, terms)
	}

	if points, ok := data["leverage_points"].([]task.LeveragePoint); ok && len(points) > 0 {
		arts = append(arts, proto.Artifact{
			Type:  proto.ArtifactLeverageSummary,
			Title: "Leverage summary",
			Content: map[string]any{
				"leverage_points": points,
				"price_anomalies": data["price_anomalies"],
			},
			GroundedIn: refs,
		})
	}

	plan := map[string]any{
		"bid_count":        data["bid_count"],
		"price_low_usd":    data["price_low_usd"],
		"price_high_usd":   data["price_high_usd"],
		"price_spread_pct": data["price_spread_pct"],
		"give_get_options": data["give_get_options"],
	}
	arts = append(arts, proto.Artifact{
		Type:       proto.ArtifactNegotiationPlan,
		Title:      "Negotiation plan",
		Content:    plan,
		GroundedIn: refs,
	})
	return arts
}

func contractArtifacts(data map[string]any, refs []proto.GroundingRef) []proto.Artifact {
	var arts []proto.Artifact

	if terms, ok := data["key_terms"].([]task.ContractTerm); ok && len(terms) > 0 {
		extract := proto.Artifact{
			Type:       proto.ArtifactKeyTermsExtract,
			Title:      "Key terms extract",
			Content:    map[string]any{"key_terms": terms},
			GroundedIn: refs,
		}
		for _, term := range terms {
			extract.Claims = append(extract.Claims, proto.Claim{
				Text:       fmt.Sprintf("%s: %s", term.Name, term.Value),
				GroundedIn: refsForSource(refs, term.Source),
			})
		}
		arts = append(arts, extract)
	}

	if issues, ok := data["term_issues"].([]task.TermIssue); ok {
		arts = append(arts, proto.Artifact{
			Type:  proto.ArtifactTermValidationReport,
			Title: "Term validation report",
			Content: map[string]any{
				"term_issues": issues,
				"terms_valid": data["terms_valid"],
			},
			GroundedIn: refs,
		})
	}

	if packet, ok := data["handoff_packet"]; ok {
		arts = append(arts, proto.Artifact{
			Type:       proto.ArtifactContractHandoff,
			Title:      "Implementation handoff packet",
			Content:    map[string]any{"handoff_packet": packet},
			GroundedIn: refs,
		})
	}
	return arts
}

func implementationArtifacts(data map[string]any, refs []proto.GroundingRef) []proto.Artifact {
	var arts []proto.Artifact

	if checklist, ok := data["rollout_checklist"].([]task.ChecklistItem); ok && len(checklist) > 0 {
		arts = append(arts, proto.Artifact{
			Type:  proto.ArtifactImplementationChecklist,
			Title: "Rollout checklist",
			Content: map[string]any{
				"rollout_checklist": checklist,
				"rollout_days":      data["rollout_days"],
			},
			GroundedIn: refs,
		})
	}

	if indicators, ok := data["early_indicators"].([]task.EarlyIndicator); ok && len(indicators) > 0 {
		arts = append(arts, proto.Artifact{
			Type:       proto.ArtifactEarlyIndicators,
			Title:      "Early indicators report",
			Content:    map[string]any{"early_indicators": indicators},
			GroundedIn: refs,
		})
	}

	capture := map[string]any{
		"reporting_templates": data["reporting_templates"],
	}
	if est, ok := data["savings_estimate"].(task.SavingsEstimate); ok {
		capture["savings_estimate"] = est
		value := proto.Artifact{
			Type:       proto.ArtifactValueCapture,
			Title:      "Value capture template",
			Content:    capture,
			GroundedIn: refs,
		}
		value.Claims = append(value.Claims, proto.Claim{
			Text: fmt.Sprintf("Expected annual savings $%.0f (%.1f%%)",
				est.TotalSavingsUSD, est.SavingsPct),
			GroundedIn: refs,
		})
		arts = append(arts, value)
	} else if data["reporting_templates"] != nil {
		arts = append(arts, proto.Artifact{
			Type:       proto.ArtifactValueCapture,
			Title:      "Value capture template",
			Content:    capture,
			GroundedIn: refs,
		})
	}
	return arts
}

// deriveRisks surfaces high-severity findings from the task data as
// pack-level risks.
func deriveRisks(data map[string]any) []proto.Risk {
	var risks []proto.Risk

	if signals, ok := data["signals"].([]task.Signal); ok {
		for _, s := range signals {
			if s.Severity == "high" {
				risks = append(risks, proto.Risk{Description: s.Message, Severity: "high"})
			}
		}
	}
	if issues, ok := data["term_issues"].([]task.TermIssue); ok {
		for _, issue := range issues {
			risks = append(risks, proto.Risk{Description: issue.Detail, Severity: issue.Severity})
		}
	}
	if anomalies, ok := data["price_anomalies"].([]task.PriceAnomaly); ok {
		for _, a := range anomalies {
			risks = append(risks, proto.Risk{
				Description: fmt.Sprintf("Bid from %s deviates %.1f%% %s the mean", a.SupplierID, a.DeviationPct, a.Direction),
				Severity:    "medium",
			})
		}
	}
	return risks
}

// nextActionsFor proposes what the case owner can do after this cycle.
func nextActionsFor(cs *proto.CaseState, plan *planner.ActionPlan) []proto.NextAction {
	var actions []proto.NextAction

	if plan.ApprovalRequired {
		actions = append(actions, proto.NextAction{
			Label:       "Review and decide",
			Description: "Approve to advance the case or reject with feedback.",
			Agent:       proto.AgentSupervisor,
		})
	}

	for _, next := range cs.Stage.NextStages() {
		if next == cs.Stage {
			continue
		}
		agents := proto.StageAgents[next]
		if len(agents) == 0 {
			continue
		}
		actions = append(actions, proto.NextAction{
			Label:       "Advance to " + next.Display(),
			Description: fmt.Sprintf("Continue the case into %s.", next.Display()),
			Agent:       agents[0],
		})
	}

	if cs.Stage.Terminal() {
		actions = append(actions, proto.NextAction{
			Label:       "Track value capture",
			Description: "Monitor rollout indicators against the baseline.",
			Agent:       proto.AgentImplementation,
		})
	}
	return actions
}
