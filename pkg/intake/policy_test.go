package intake

import "testing"

func TestPolicyDecide(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		confidence float64
		want       Status
	}{
		{0.0, StatusPendingReview},
		{0.39, StatusPendingReview},
		{0.40, StatusPendingReview},
		{0.60, StatusPendingReview},
		{0.70, StatusPendingReview},
		{0.84, StatusPendingReview},
		{0.8499999, StatusPendingReview},
		{0.85, StatusAutoApproved}, // boundary is inclusive
		{0.86, StatusAutoApproved},
		{0.90, StatusAutoApproved},
		{1.0, StatusAutoApproved},
	}

	for _, tt := range tests {
		if got := policy.Decide(tt.confidence); got != tt.want {
			t.Errorf("Decide(%v) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
}

func TestPolicyDecideIsDeterministic(t *testing.T) {
	policy := DefaultPolicy()
	for i := 0; i < 100; i++ {
		if policy.Decide(0.85) != StatusAutoApproved {
			t.Fatal("Decide(0.85) must always auto-approve")
		}
	}
}

func TestPolicyCustomThreshold(t *testing.T) {
	policy := Policy{AutoApproveThreshold: 0.95}

	if got := policy.Decide(0.90); got != StatusPendingReview {
		t.Errorf("Decide(0.90) with 0.95 cutoff = %v, want pending_review", got)
	}
	if got := policy.Decide(0.95); got != StatusAutoApproved {
		t.Errorf("Decide(0.95) with 0.95 cutoff = %v, want auto_approved", got)
	}
}

func TestRequiresReview(t *testing.T) {
	policy := DefaultPolicy()
	if policy.RequiresReview(0.85) {
		t.Error("0.85 should not require review")
	}
	if !policy.RequiresReview(0.84) {
		t.Error("0.84 should require review")
	}
}

func TestConfidenceBand(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{0.95, "high"},
		{0.70, "high"},
		{0.69, "medium"},
		{0.40, "medium"},
		{0.399, "low"},
		{0.0, "low"},
	}

	for _, tt := range tests {
		if got := ConfidenceBand(tt.confidence); got != tt.want {
			t.Errorf("ConfidenceBand(%v) = %q, want %q", tt.confidence, got, tt.want)
		}
	}
}
