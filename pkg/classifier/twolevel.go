package classifier

import (
	"strings"

	"caseflow/pkg/proto"
)

// specialPhrase maps a fixed phrase straight to a (goal, work type)
// pair. These cover the stock formulations users actually type for
// each agent family and win over the generic tables.
type specialPhrase struct {
	phrase string
	goal   proto.Goal
	work   proto.WorkType
}

var specialPhrases = []specialPhrase{
	{"scan signals", proto.GoalCreate, proto.WorkData},
	{"scan for signals", proto.GoalCreate, proto.WorkData},
	{"signal scan", proto.GoalCreate, proto.WorkData},
	{"score suppliers", proto.GoalCreate, proto.WorkData},
	{"rank suppliers", proto.GoalCreate, proto.WorkData},
	{"evaluate suppliers", proto.GoalCreate, proto.WorkData},
	{"shortlist suppliers", proto.GoalCreate, proto.WorkData},
	{"draft rfp", proto.GoalCreate, proto.WorkArtifact},
	{"draft rfq", proto.GoalCreate, proto.WorkArtifact},
	{"create rfp", proto.GoalCreate, proto.WorkArtifact},
	{"create rfq", proto.GoalCreate, proto.WorkArtifact},
	{"negotiation strategy", proto.GoalCreate, proto.WorkArtifact},
	{"prepare negotiation", proto.GoalCreate, proto.WorkArtifact},
	{"analyze bids", proto.GoalCreate, proto.WorkData},
	{"review contract", proto.GoalCheck, proto.WorkCompliance},
	{"extract terms", proto.GoalCreate, proto.WorkData},
	{"contract terms", proto.GoalCreate, proto.WorkData},
	{"implementation plan", proto.GoalCreate, proto.WorkArtifact},
	{"rollout plan", proto.GoalCreate, proto.WorkArtifact},
	{"transition checklist", proto.GoalCreate, proto.WorkArtifact},
	{"track savings", proto.GoalCreate, proto.WorkValue},
	{"realized savings", proto.GoalCreate, proto.WorkValue},
	{"savings report", proto.GoalCreate, proto.WorkValue},
	{"award the contract", proto.GoalDecide, proto.WorkApproval},
	{"check compliance", proto.GoalCheck, proto.WorkCompliance},
}

var actionVerbs = map[string]proto.Goal{
	"create": proto.GoalCreate, "draft": proto.GoalCreate, "generate": proto.GoalCreate,
	"build": proto.GoalCreate, "make": proto.GoalCreate, "prepare": proto.GoalCreate,
	"run": proto.GoalCreate, "analyze": proto.GoalCreate, "analyse": proto.GoalCreate,
	"scan": proto.GoalCreate, "score": proto.GoalCreate, "rank": proto.GoalCreate,
	"evaluate": proto.GoalCreate, "recommend": proto.GoalCreate, "negotiate": proto.GoalCreate,
	"check": proto.GoalCheck, "validate": proto.GoalCheck, "verify": proto.GoalCheck,
	"review": proto.GoalCheck,
	"decide": proto.GoalDecide, "approve": proto.GoalDecide, "select": proto.GoalDecide,
	"choose": proto.GoalDecide, "finalize": proto.GoalDecide, "finalise": proto.GoalDecide,
	"award": proto.GoalDecide,
}

// goalPatterns is the generic keyword dictionary, consulted after the
// special phrases and action verbs. First match wins in table order.
var goalPatterns = []struct {
	keywords []string
	goal     proto.Goal
}{
	{[]string{"status", "progress", "where are we", "update me", "current"}, proto.GoalTrack},
	{[]string{"create", "draft", "generate", "build", "make", "prepare"}, proto.GoalCreate},
	{[]string{"check", "validate", "verify", "compliant", "review"}, proto.GoalCheck},
	{[]string{"decide", "approve", "select", "choose", "finalize", "award"}, proto.GoalDecide},
	{[]string{"explain", "why", "how", "what", "understand", "tell me"}, proto.GoalUnderstand},
	{[]string{"scan", "signal", "monitor", "detect"}, proto.GoalCreate},
	{[]string{"score", "evaluate", "rank", "compare supplier"}, proto.GoalCreate},
	{[]string{"negotiat", "bid", "leverage"}, proto.GoalCreate},
	{[]string{"contract", "terms", "extract"}, proto.GoalCreate},
	{[]string{"implement", "rollout", "checklist", "savings"}, proto.GoalCreate},
}

var workPatterns = []struct {
	keywords []string
	work     proto.WorkType
}{
	{[]string{"draft", "document", "template", "report", "plan", "rfp", "rfq", "strategy"}, proto.WorkArtifact},
	{[]string{"approve", "decide", "select", "award"}, proto.WorkApproval},
	{[]string{"compliant", "policy", "rule", "valid"}, proto.WorkCompliance},
	{[]string{"saving", "value", "cost", "roi"}, proto.WorkValue},
}

// twoLevel fills in the (goal, work type) pair for DECIDE-class or
// ambiguous intents. Special phrases and generic action verbs classify
// at 0.95, the pattern dictionary at 0.85. A question about existing
// output defaults to UNDERSTAND.
func twoLevel(message string, cc Context, in proto.Intent) proto.Intent {
	lower := strings.ToLower(message)

	for _, sp := range specialPhrases {
		if strings.Contains(lower, sp.phrase) {
			in.Goal, in.WorkType = sp.goal, sp.work
			in.Confidence = confForced
			return in
		}
	}

	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,!?;:")
		if g, ok := actionVerbs[w]; ok {
			in.Goal = g
			in.WorkType = lookupWorkType(lower)
			in.Confidence = confForced
			return in
		}
	}

	for _, gp := range goalPatterns {
		if containsAny(lower, gp.keywords) {
			in.Goal = gp.goal
			in.WorkType = lookupWorkType(lower)
			if in.Confidence < confExplore {
				in.Confidence = confExplore
			}
			return in
		}
	}

	if strings.Contains(lower, "?") && cc.HasOutput {
		in.Goal = proto.GoalUnderstand
		in.WorkType = proto.WorkData
	}
	return in
}

func lookupWorkType(lower string) proto.WorkType {
	for _, wp := range workPatterns {
		if containsAny(lower, wp.keywords) {
			return wp.work
		}
	}
	return proto.WorkData
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
