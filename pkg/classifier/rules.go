package classifier

import (
	"regexp"
	"strings"

	"caseflow/pkg/limiter"
	"caseflow/pkg/proto"
)

// Context carries the case facts the classifier may consult. It is a
// read-only snapshot; the classifier never touches CaseState directly.
type Context struct {
	CaseID    string
	Stage     proto.Stage
	Status    proto.CaseStatus
	HasOutput bool
	// Budget gates the backend fallback against the case token budget.
	// Nil disables the gate; rule classification is always free.
	Budget *limiter.CaseLimiter
}

// Confidence tiers for rule matches. Unambiguous status and action
// phrasing sit at the top; weak fallbacks sit below the LLM-only
// threshold so the backend gets consulted.
const (
	confForced   = 0.95
	confStrong   = 0.90
	confExplore  = 0.85
	confExplain  = 0.80
	confQuestion = 0.75
	confShort    = 0.72
	confWeak     = 0.50
)

var (
	greetingRe = regexp.MustCompile(`^\s*(hi|hello|hey|good\s+(morning|afternoon|evening)|greetings)\b`)

	statusRe = regexp.MustCompile(`\b(status|progress|update)\b|where are we|current state|what'?s happening|how far|\btimeline\b|next step|what stage|\bsummary\b|\boverview\b|catch me up|brief me|update me|tell me about (this|the) case`)

	explainRe = regexp.MustCompile(`what is|\bexplain\b|\bdescribe\b|tell me about|how does|\bwhy\b|what does|\bmeaning\b|\bdefinition\b|\bclarify\b|help me understand|\breason\b|\brationale\b|\bbasis\b|\bjustify\b|\bgrounds\b|\bconfidence\b|\bevidence\b|how did you|what led to`)

	exploreRe = regexp.MustCompile(`what if|\balternatives?\b|\boptions\b|could we|\bexplore\b|\bconsider\b|\bcompare\b|\bscenario\b|\bhypothetical\b|\bsuppose\b|\bimagine\b|pros and cons|trade-?offs?`)

	decideRe = regexp.MustCompile(`\b(run|analyze|analyse|evaluate|recommend|execute|start|begin|launch|initiate|finalize|finalise|select|choose|draft|create|generate|build|prepare|scan|score|rank|negotiate|award)\b|give me a (strategy|recommendation|plan)|what should we do|suggest a|\b(need|want) (a|an|the) (strategy|recommendation|analysis|plan)`)
)

// ruleClassify is the deterministic single-level pass. Priority order:
// greetings and very short messages read as status checks, then
// STATUS > DECIDE action verbs > EXPLORE > EXPLAIN, then question and
// length fallbacks. First match wins with a fixed per-tier confidence.
func ruleClassify(message string, cc Context) proto.Intent {
	lower := strings.ToLower(strings.TrimSpace(message))
	words := strings.Fields(lower)
	isQuestion := strings.Contains(lower, "?")

	if greetingRe.MatchString(lower) && len(words) <= 5 {
		return proto.Intent{Category: proto.IntentStatus, Confidence: confStrong, Source: proto.SourceRule, Rationale: "greeting"}
	}

	switch {
	case statusRe.MatchString(lower):
		return proto.Intent{Category: proto.IntentStatus, Confidence: confStrong, Source: proto.SourceRule, Rationale: "status pattern"}

	case decideRe.MatchString(lower):
		in := proto.Intent{Category: proto.IntentDecide, Confidence: confStrong, Source: proto.SourceRule, Rationale: "action verb"}
		// Context adjustment: an action verb with nothing produced yet is
		// an unambiguous request for work; a question about existing
		// output is a request for explanation even when phrased actively.
		if !cc.HasOutput {
			in.Confidence = confForced
			in.Rationale = "action verb, no existing output"
		} else if isQuestion {
			return proto.Intent{Category: proto.IntentExplain, Confidence: confExplain, Source: proto.SourceRule, Rationale: "question about existing output"}
		}
		return in

	case exploreRe.MatchString(lower):
		return proto.Intent{Category: proto.IntentExplore, Confidence: confExplore, Source: proto.SourceRule, Rationale: "exploration pattern"}

	case explainRe.MatchString(lower):
		return proto.Intent{Category: proto.IntentExplain, Confidence: confExplain, Source: proto.SourceRule, Rationale: "explanation pattern"}
	}

	if isQuestion {
		return proto.Intent{Category: proto.IntentExplain, Confidence: confQuestion, Source: proto.SourceRule, Rationale: "unmatched question"}
	}
	if len(words) <= 3 {
		return proto.Intent{Category: proto.IntentStatus, Confidence: confShort, Source: proto.SourceRule, Rationale: "short message"}
	}
	return proto.Intent{Category: proto.IntentGeneral, Confidence: confWeak, Source: proto.SourceRule, Rationale: "no pattern matched"}
}
