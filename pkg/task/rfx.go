package task

import (
	"context"
	"fmt"
	"strings"

	"caseflow/pkg/planner"
	"caseflow/pkg/proto"
)

// RfxSection is one section of an RFx draft.
type RfxSection struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Content string `json:"content"`
}

// RfxQuestion is one drafted supplier question.
type RfxQuestion struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Purpose  string `json:"purpose"`
}

// QAEntry is one row of the Q&A tracker.
type QAEntry struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Status   string `json:"status"`
	Response string `json:"response"`
}

var rfxSectionNames = map[string][]string{
	"RFI": {"Introduction", "Company Background", "Information Requested", "Response Format", "Timeline"},
	"RFP": {"Executive Summary", "Scope of Work", "Technical Requirements", "Pricing Structure", "Evaluation Criteria", "Terms and Conditions", "Submission Instructions"},
	"RFQ": {"Item Specifications", "Quantity Requirements", "Delivery Requirements", "Pricing Format", "Submission Deadline"},
}

var rfxRequiredSections = map[string][]string{
	"RFI": {"Introduction", "Information Requested", "Timeline"},
	"RFP": {"Scope of Work", "Technical Requirements", "Pricing Structure", "Evaluation Criteria"},
	"RFQ": {"Item Specifications", "Quantity Requirements", "Pricing Format"},
}

// determineRfxPath is fully rule-determined: the sourcing pathway and
// case inputs fix the RFx type with no retrieval or generation at all.
type determineRfxPath struct {
	baseTask
}

func (t *determineRfxPath) Rules(tc *Context) phaseOut {
	rfxType := "RFP"
	var rationale string

	switch {
	case tc.Case.CategoryID == "":
		rfxType = "RFI"
		rationale = "requirements not yet defined, gather information first"
	case tc.Pathway == planner.PathwaySimplified:
		rfxType = "RFQ"
		rationale = "simplified pathway, price quote sufficient"
	default:
		rationale = "full proposal evaluation needed for this value band"
	}

	p := out(map[string]any{
		"rfx_type":      rfxType,
		"rfx_rationale": rationale,
	}, proto.GroundingRef{
		SourceType: proto.GroundRule,
		SourceID:   "policy-rfx-selection-001",
		Relevance:  1,
		Excerpt:    "RFx selection guidelines",
	})
	p.done = true
	return p
}

type retrieveTemplates struct {
	baseTask
	r *Runner
}

func (t *retrieveTemplates) Retrieve(ctx context.Context, tc *Context) (phaseOut, error) {
	if t.r.ret == nil {
		return phaseOut{}, nil
	}
	if err := tc.countTool(); err != nil {
		return phaseOut{}, err
	}
	rfxType, _ := fromData[string](tc, "rfx_type")
	if rfxType == "" {
		rfxType = "RFP"
	}

	results, err := t.r.ret.Search(ctx, fmt.Sprintf("%s template %s structure sections", rfxType, tc.Case.CategoryID), 3, map[string]string{"kind": "template"})
	if err != nil {
		return phaseOut{}, fmt.Errorf("template retrieval: %w", err)
	}

	var templates []string
	var p phaseOut
	for _, res := range results {
		templates = append(templates, res.Document.Content)
		p.refs = append(p.refs, proto.GroundingRef{
			SourceType: proto.GroundDocument,
			SourceID:   res.Document.ID,
			Relevance:  res.Relevance,
			Excerpt:    snippet(res.Document.Content, 160),
		})
	}
	p.data = map[string]any{"templates": templates}
	return p, nil
}

type assembleRfxSections struct {
	baseTask
}

func (t *assembleRfxSections) Analyze(tc *Context) phaseOut {
	rfxType, _ := fromData[string](tc, "rfx_type")
	names, ok := rfxSectionNames[rfxType]
	if !ok {
		rfxType = "RFP"
		names = rfxSectionNames[rfxType]
	}

	sections := make([]RfxSection, 0, len(names))
	for _, name := range names {
		sections = append(sections, RfxSection{
			Name:    name,
			Status:  "draft",
			Content: fmt.Sprintf("Draft %s for %s.", name, tc.Case.CategoryID),
		})
	}
	return out(map[string]any{"sections": sections})
}

type completenessChecks struct {
	baseTask
}

func (t *completenessChecks) Rules(tc *Context) phaseOut {
	rfxType, _ := fromData[string](tc, "rfx_type")
	required, ok := rfxRequiredSections[rfxType]
	if !ok {
		required = rfxRequiredSections["RFP"]
	}
	return out(map[string]any{"required_sections": required})
}

func (t *completenessChecks) Analyze(tc *Context) phaseOut {
	sections, _ := fromData[[]RfxSection](tc, "sections")
	required, _ := fromData[[]string](tc, "required_sections")

	present := make(map[string]bool, len(sections))
	for _, s := range sections {
		present[s.Name] = true
	}

	var missing []string
	for _, req := range required {
		if !present[req] {
			missing = append(missing, req)
		}
	}

	score := 100 - len(missing)*15
	if score < 0 {
		score = 0
	}
	return out(map[string]any{
		"is_complete":        len(missing) == 0,
		"completeness_score": score,
		"missing_sections":   missing,
	})
}

// draftRequirements produces deterministic baseline questions and asks
// the narrator to contextualize them. The question set itself never
// comes from the backend.
type draftRequirements struct {
	baseTask
}

var rfxBaseQuestions = map[string][]string{
	"RFI": {
		"Describe your company's experience in this category.",
		"What is your standard delivery model and geographic coverage?",
		"Provide references from comparable engagements.",
	},
	"RFP": {
		"Describe your proposed solution and delivery approach.",
		"Provide detailed pricing including volume tiers.",
		"What service levels do you commit to, and what are the remedies for misses?",
		"Describe your implementation and transition plan.",
		"What differentiates your offer from competitors?",
	},
	"RFQ": {
		"Confirm unit pricing for the specified quantities.",
		"Confirm delivery lead time from order placement.",
		"State your quote's validity period.",
	},
}

func (t *draftRequirements) Analyze(tc *Context) phaseOut {
	rfxType, _ := fromData[string](tc, "rfx_type")
	base, ok := rfxBaseQuestions[rfxType]
	if !ok {
		base = rfxBaseQuestions["RFP"]
	}

	questions := make([]RfxQuestion, 0, len(base))
	for i, q := range base {
		questions = append(questions, RfxQuestion{
			ID:       fmt.Sprintf("Q-%03d", i+1),
			Question: q,
			Purpose:  "standard evaluation input",
		})
	}
	return out(map[string]any{"draft_questions": questions})
}

func (t *draftRequirements) Narration(tc *Context) (string, bool) {
	questions, _ := fromData[[]RfxQuestion](tc, "draft_questions")
	if len(questions) == 0 {
		return "", false
	}
	rfxType, _ := fromData[string](tc, "rfx_type")

	var b strings.Builder
	fmt.Fprintf(&b, "Explain why these %s questions matter for category %s:\n", rfxType, tc.Case.CategoryID)
	for _, q := range questions {
		fmt.Fprintf(&b, "- %s\n", q.Question)
	}
	return b.String(), true
}

// createQATracker turns the drafted questions into a tracking table.
// With no questions in context the task does not apply.
type createQATracker struct {
	baseTask
}

func (t *createQATracker) Rules(tc *Context) phaseOut {
	if questions, _ := fromData[[]RfxQuestion](tc, "draft_questions"); len(questions) == 0 {
		return phaseOut{skip: true}
	}
	return phaseOut{}
}

func (t *createQATracker) Analyze(tc *Context) phaseOut {
	questions, _ := fromData[[]RfxQuestion](tc, "draft_questions")

	tracker := make([]QAEntry, 0, len(questions))
	for _, q := range questions {
		tracker = append(tracker, QAEntry{
			ID:       q.ID,
			Question: q.Question,
			Status:   "pending",
		})
	}
	return out(map[string]any{
		"qa_tracker":      tracker,
		"total_questions": len(tracker),
	})
}
