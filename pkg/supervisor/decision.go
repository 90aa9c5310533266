package supervisor

import "regexp"

// Decision keyword patterns for cases parked at an approval gate. A
// message counts as an approval only when it matches the approval set
// and none of the rejection set, so "yes, but wait" never advances a
// stage by accident.
var (
	approvalPattern = regexp.MustCompile(
		`(?i)\b(yes|approve|approved|proceed|go ahead|ok|okay|confirm|accept|agree|let'?s do it|sounds good)\b`)
	rejectionPattern = regexp.MustCompile(
		`(?i)\b(no|reject|rejected|cancel|stop|don'?t|decline|refuse|wait|hold|not yet)\b`)
)

// decisionKind is how a message reads at an approval gate.
type decisionKind int

const (
	decisionNone decisionKind = iota
	decisionApprove
	decisionReject
)

func classifyDecision(message string) decisionKind {
	approves := approvalPattern.MatchString(message)
	rejects := rejectionPattern.MatchString(message)
	switch {
	case rejects:
		return decisionReject
	case approves:
		return decisionApprove
	default:
		return decisionNone
	}
}
