package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndStddev(t *testing.T) {
	assert.Zero(t, mean(nil))
	assert.Zero(t, stddev([]float64{42}))
	assert.InDelta(t, 5.0, mean([]float64{4, 5, 6}), 0.001)
	assert.InDelta(t, 2.0, stddev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 0.001)
}

func TestClamp10(t *testing.T) {
	assert.Equal(t, 0.0, clamp10(-3))
	assert.Equal(t, 10.0, clamp10(14.2))
	assert.Equal(t, 7.5, clamp10(7.5))
}

func TestPctFromMean(t *testing.T) {
	assert.Zero(t, pctFromMean(100, 0))
	assert.InDelta(t, 20.0, pctFromMean(120, 100), 0.001)
	assert.InDelta(t, 20.0, pctFromMean(80, 100), 0.001)
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, severityRank("critical"), severityRank("high"))
	assert.Greater(t, severityRank("high"), severityRank("medium"))
	assert.Greater(t, severityRank("medium"), severityRank("low"))
	assert.Greater(t, severityRank("low"), severityRank("unknown"))
}

func TestUrgencyScore(t *testing.T) {
	tests := []struct {
		name    string
		signals []Signal
		want    int
	}{
		{"no signals", nil, 5},
		{"two high", []Signal{{Severity: "high"}, {Severity: "critical"}}, 9},
		{"one high", []Signal{{Severity: "high"}, {Severity: "low"}}, 7},
		{"leading medium", []Signal{{Severity: "medium"}, {Severity: "low"}}, 5},
		{"low only", []Signal{{Severity: "low"}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, urgencyScore(tt.signals))
		})
	}
}
