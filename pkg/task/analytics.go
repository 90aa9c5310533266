package task

import "math"

// Anomaly thresholds. Spend anomalies flag months beyond two standard
// deviations from the mean; price anomalies flag bids more than 20%
// from the mean bid.
const (
	spendSigmaThreshold  = 2.0
	priceDeviationPctMax = 20.0
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)))
}

// clamp10 normalizes a value onto the common 0-10 scale.
func clamp10(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// pctFromMean returns the absolute percentage deviation of v from m.
func pctFromMean(v, m float64) float64 {
	if m == 0 {
		return 0
	}
	return math.Abs(v-m) / m * 100
}

// severityRank orders signal severities for sorting.
func severityRank(severity string) int {
	switch severity {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	}
	return 0
}

// urgencyScore maps a sorted signal list to the 1-10 urgency scale:
// two or more high-severity signals score 9, one scores 7, a leading
// medium scores 5, anything else 3. No signals at all is a neutral 5.
func urgencyScore(signals []Signal) int {
	if len(signals) == 0 {
		return 5
	}
	high := 0
	for _, s := range signals {
		if s.Severity == "high" || s.Severity == "critical" {
			high++
		}
	}
	switch {
	case high >= 2:
		return 9
	case high == 1:
		return 7
	case signals[0].Severity == "medium":
		return 5
	default:
		return 3
	}
}
