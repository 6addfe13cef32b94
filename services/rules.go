package services

import (
	"fmt"
	"strconv"

	"proposal-review-api/models"
)

// Fixed business constants of the six-step pipeline. These are rules of the
// approval process, not configuration.
const (
	// PlagiarismThreshold is the highest similarity percentage that still
	// passes the plagiarism check (boundary inclusive).
	PlagiarismThreshold = 20.0

	// EvaluationPassMark is the lowest average mark that passes external
	// evaluation (boundary inclusive).
	EvaluationPassMark = 65.0

	// EvaluationQuorum is how many completed evaluations are required before
	// the evaluation step can be closed.
	EvaluationQuorum = 2

	// CommitteeQuorum is how many completed committee reviews are required
	// before the committee step can be closed.
	CommitteeQuorum = 1

	// MarksMin and MarksMax bound an evaluator's marks, inclusive.
	MarksMin = 0.0
	MarksMax = 100.0
)

// formatNumber renders a float without trailing zeros, so a rejection reason
// reads "35" rather than "35.0000".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// PlagiarismPasses applies the step-2 rule: percentage <= 20 passes.
func PlagiarismPasses(percentage float64) bool {
	return percentage <= PlagiarismThreshold
}

// PlagiarismDetail renders the timeline/rejection detail for a plagiarism
// result, always citing the measured percentage.
func PlagiarismDetail(percentage float64) string {
	if PlagiarismPasses(percentage) {
		return fmt.Sprintf("Plagiarism %s%% <= %s%%", formatNumber(percentage), formatNumber(PlagiarismThreshold))
	}
	return fmt.Sprintf("Plagiarism %s%% > %s%%", formatNumber(percentage), formatNumber(PlagiarismThreshold))
}

// EvaluationAverage computes the arithmetic mean of the marks of completed
// evaluator invitations. Pending or expired invitations never count.
func EvaluationAverage(invitations []models.ReviewInvitation) (float64, int) {
	var sum float64
	var n int
	for _, inv := range invitations {
		if inv.Status != models.InvitationStatusCompleted || inv.Marks == nil {
			continue
		}
		sum += *inv.Marks
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// EvaluationPasses applies the step-3 rule: mean >= 65 passes.
func EvaluationPasses(average float64) bool {
	return average >= EvaluationPassMark
}

// EvaluationDetail renders the timeline/rejection detail for an evaluation
// result, citing the computed average.
func EvaluationDetail(average float64) string {
	if EvaluationPasses(average) {
		return fmt.Sprintf("Average marks %s >= %s", formatNumber(average), formatNumber(EvaluationPassMark))
	}
	return fmt.Sprintf("Average marks %s < %s", formatNumber(average), formatNumber(EvaluationPassMark))
}

// SeminarOutcome applies the step-4 rule: the proposal passes only if the
// participant attended and the faculty accepted. The returned reason is empty
// on pass, otherwise the rejection reason.
func SeminarOutcome(attended, accepted bool, reason string) (bool, string) {
	if attended && accepted {
		return true, ""
	}
	if !attended {
		return false, "Not attended"
	}
	if reason != "" {
		return false, reason
	}
	return false, "Faculty rejected"
}

// CommitteeOutcome aggregates completed committee reviews: any REJECTED
// decision rejects the proposal. On approval the allocated budget is the
// explicit override when given, else the first approved review that carries
// one. The returned budget may be nil when nobody stated an amount.
func CommitteeOutcome(reviews []models.ReviewInvitation, override *float64) (approved bool, budget *float64) {
	for _, r := range reviews {
		if r.Status != models.InvitationStatusCompleted || r.Decision == nil {
			continue
		}
		if *r.Decision == models.DecisionRejected {
			return false, nil
		}
	}

	if override != nil {
		return true, override
	}
	for _, r := range reviews {
		if r.Status != models.InvitationStatusCompleted || r.Decision == nil {
			continue
		}
		if *r.Decision == models.DecisionApproved && r.AllocatedBudget != nil {
			return true, r.AllocatedBudget
		}
	}
	return true, nil
}

// ValidateMarks checks an evaluator's marks payload.
func ValidateMarks(marks *float64) error {
	if marks == nil {
		return fmt.Errorf("%w: marks are required", ErrValidation)
	}
	if *marks < MarksMin || *marks > MarksMax {
		return fmt.Errorf("%w: marks must be between 0 and 100", ErrValidation)
	}
	return nil
}

// ValidateDecision checks a committee or rector decision payload.
func ValidateDecision(decision *string) error {
	if decision == nil || *decision == "" {
		return fmt.Errorf("%w: decision is required", ErrValidation)
	}
	if *decision != models.DecisionApproved && *decision != models.DecisionRejected {
		return fmt.Errorf("%w: decision must be APPROVED or REJECTED", ErrValidation)
	}
	return nil
}
