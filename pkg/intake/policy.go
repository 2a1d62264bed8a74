package intake

// Default confidence thresholds. AutoApprove is the single authoritative
// cutoff for skipping human review; the other two are presentation bands and
// never affect status transitions.
const (
	DefaultAutoApproveThreshold = 0.85
	HighConfidenceThreshold     = 0.70
	LowConfidenceThreshold      = 0.40
)

// Policy maps an AI confidence score to the initial status of an intake
// record. Decide is total, deterministic and side-effect-free.
type Policy struct {
	// AutoApproveThreshold is the minimum confidence for skipping review.
	AutoApproveThreshold float64
}

// DefaultPolicy returns a Policy with the documented 0.85 cutoff.
func DefaultPolicy() Policy {
	return Policy{AutoApproveThreshold: DefaultAutoApproveThreshold}
}

// Decide returns auto_approved when confidence clears the threshold
// (inclusive), pending_review otherwise.
func (p Policy) Decide(confidence float64) Status {
	if confidence >= p.AutoApproveThreshold {
		return StatusAutoApproved
	}
	return StatusPendingReview
}

// RequiresReview reports whether a score falls below the auto-approve cutoff.
func (p Policy) RequiresReview(confidence float64) bool {
	return p.Decide(confidence) == StatusPendingReview
}

// ConfidenceBand classifies a score into a reporting band: "high" at or above
// HighConfidenceThreshold, "low" below LowConfidenceThreshold, "medium"
// between. Reporting only; the band never drives a transition.
func ConfidenceBand(confidence float64) string {
	switch {
	case confidence >= HighConfidenceThreshold:
		return "high"
	case confidence < LowConfidenceThreshold:
		return "low"
	default:
		return "medium"
	}
}
