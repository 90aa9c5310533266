package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// AgentUsage is the recorded generation usage of one agent on a case.
type AgentUsage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// TotalTokens returns prompt plus completion tokens.
func (u AgentUsage) TotalTokens() int64 { return u.PromptTokens + u.CompletionTokens }

// CaseUsage is the usage picture for a whole case, keyed by agent. The
// classifier's backend calls appear under the "classifier" key.
type CaseUsage struct {
	CaseID string                `json:"case_id"`
	Agents map[string]AgentUsage `json:"agents"`
}

// Totals folds the per-agent breakdown into case-wide sums.
func (cu *CaseUsage) Totals() (tokens int64, costUSD float64) {
	for _, u := range cu.Agents {
		tokens += u.TotalTokens()
		costUSD += u.CostUSD
	}
	return tokens, costUSD
}

// QueryService reads recorded usage back from a Prometheus server that
// scrapes the /metrics endpoint.
type QueryService struct {
	api v1.API
}

// NewQueryService connects to a Prometheus server by base URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}
	return &QueryService{api: v1.NewAPI(client)}, nil
}

// CaseUsage fetches the per-agent token and cost breakdown for a case.
// Two grouped instant queries cover everything; the totals fall out of
// the same pass.
func (q *QueryService) CaseUsage(ctx context.Context, caseID string) (*CaseUsage, error) {
	usage := &CaseUsage{CaseID: caseID, Agents: make(map[string]AgentUsage)}

	tokens, err := q.vector(ctx,
		fmt.Sprintf(`sum by (agent, type) (llm_tokens_total{case_id=%q})`, caseID))
	if err != nil {
		return nil, err
	}
	usage.foldTokens(tokens)

	costs, err := q.vector(ctx,
		fmt.Sprintf(`sum by (agent) (llm_costs_total{case_id=%q})`, caseID))
	if err != nil {
		return nil, err
	}
	usage.foldCosts(costs)

	return usage, nil
}

func (cu *CaseUsage) foldTokens(vec model.Vector) {
	for _, s := range vec {
		agent := string(s.Metric["agent"])
		u := cu.Agents[agent]
		switch s.Metric["type"] {
		case "prompt":
			u.PromptTokens += int64(s.Value)
		case "completion":
			u.CompletionTokens += int64(s.Value)
		}
		cu.Agents[agent] = u
	}
}

func (cu *CaseUsage) foldCosts(vec model.Vector) {
	for _, s := range vec {
		agent := string(s.Metric["agent"])
		u := cu.Agents[agent]
		u.CostUSD += float64(s.Value)
		cu.Agents[agent] = u
	}
}

// vector runs one instant query and asserts a vector result.
func (q *QueryService) vector(ctx context.Context, query string) (model.Vector, error) {
	res, _, err := q.api.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	vec, ok := res.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("query %q: unexpected result type %s", query, res.Type())
	}
	return vec, nil
}
