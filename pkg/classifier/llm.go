package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"caseflow/pkg/gen"
	"caseflow/pkg/metrics"
	"caseflow/pkg/proto"
)

const classifySystem = `You classify procurement case messages. Reply with a single JSON object and nothing else:
{"category":"STATUS|EXPLAIN|EXPLORE|DECIDE|GENERAL","goal":"TRACK|UNDERSTAND|CREATE|CHECK|DECIDE","work_type":"ARTIFACT|DATA|APPROVAL|COMPLIANCE|VALUE","confidence":0.0,"rationale":"one sentence"}
Set goal and work_type only for DECIDE messages, otherwise use empty strings.`

type llmResult struct {
	Category   string  `json:"category"`
	Goal       string  `json:"goal"`
	WorkType   string  `json:"work_type"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

const classifyMaxReply = 200

// llmClassify asks the generation backend for a structured intent. The
// prompt carries only the message and the case facts needed to
// disambiguate. The call is reserved against the case token budget
// first; a case at its cap never reaches the backend. Any parse or
// transport failure is returned to the caller, which falls back to the
// rule result.
func (c *Classifier) llmClassify(ctx context.Context, message string, cc Context) (proto.Intent, error) {
	prompt := fmt.Sprintf("Message: %q\nStage: %s\nCase status: %s\nHas prior output: %t",
		message, cc.Stage, cc.Status, cc.HasOutput)

	if cc.Budget != nil {
		want := c.counter.CountTokens(classifySystem+prompt) + classifyMaxReply
		if err := cc.Budget.Reserve(want); err != nil {
			return proto.Intent{}, err
		}
	}

	resp, err := c.backend.Complete(ctx, gen.Request{
		System:    classifySystem,
		Prompt:    prompt,
		MaxTokens: classifyMaxReply,
	})
	if err != nil {
		return proto.Intent{}, err
	}

	cost := gen.CostUSD(c.model, resp)
	metrics.RecordGeneration(cc.CaseID, "classifier", c.model.Model, resp.TokensIn, resp.TokensOut, cost)
	if cc.Budget != nil {
		cc.Budget.Commit(resp.Tokens(), cost)
	}

	var out llmResult
	if err := json.Unmarshal([]byte(stripFences(resp.Text)), &out); err != nil {
		return proto.Intent{}, fmt.Errorf("classifier: unparseable backend reply: %w", err)
	}

	in := proto.Intent{
		Category:   proto.IntentCategory(strings.ToUpper(out.Category)),
		Confidence: clamp01(out.Confidence),
		Source:     proto.SourceLLM,
		Rationale:  out.Rationale,
	}
	switch in.Category {
	case proto.IntentStatus, proto.IntentExplain, proto.IntentExplore, proto.IntentDecide, proto.IntentGeneral:
	default:
		return proto.Intent{}, fmt.Errorf("classifier: backend returned unknown category %q", out.Category)
	}
	if out.Goal != "" {
		in.Goal = proto.Goal(strings.ToUpper(out.Goal))
	}
	if out.WorkType != "" {
		in.WorkType = proto.WorkType(strings.ToUpper(out.WorkType))
	}
	return in, nil
}

// stripFences removes a markdown code fence if the backend wrapped the
// JSON in one despite the instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
