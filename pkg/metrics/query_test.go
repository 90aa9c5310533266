package metrics

import (
	"testing"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
)

func sample(labels map[string]string, v float64) *model.Sample {
	m := model.Metric{}
	for k, val := range labels {
		m[model.LabelName(k)] = model.LabelValue(val)
	}
	return &model.Sample{Metric: m, Value: model.SampleValue(v)}
}

func TestCaseUsageFold(t *testing.T) {
	cu := &CaseUsage{CaseID: "CASE-1", Agents: map[string]AgentUsage{}}

	cu.foldTokens(model.Vector{
		sample(map[string]string{"agent": "narrator", "type": "prompt"}, 1200),
		sample(map[string]string{"agent": "narrator", "type": "completion"}, 300),
		sample(map[string]string{"agent": "classifier", "type": "prompt"}, 80),
		sample(map[string]string{"agent": "classifier", "type": "completion"}, 20),
	})
	cu.foldCosts(model.Vector{
		sample(map[string]string{"agent": "narrator"}, 0.45),
		sample(map[string]string{"agent": "classifier"}, 0.02),
	})

	narr := cu.Agents["narrator"]
	assert.Equal(t, int64(1200), narr.PromptTokens)
	assert.Equal(t, int64(300), narr.CompletionTokens)
	assert.Equal(t, int64(1500), narr.TotalTokens())
	assert.InDelta(t, 0.45, narr.CostUSD, 1e-9)

	tokens, cost := cu.Totals()
	assert.Equal(t, int64(1600), tokens)
	assert.InDelta(t, 0.47, cost, 1e-9)
}

func TestCaseUsageFoldIgnoresUnknownType(t *testing.T) {
	cu := &CaseUsage{CaseID: "CASE-2", Agents: map[string]AgentUsage{}}
	cu.foldTokens(model.Vector{
		sample(map[string]string{"agent": "narrator", "type": "cached"}, 999),
	})
	assert.Equal(t, int64(0), cu.Agents["narrator"].TotalTokens())
}
