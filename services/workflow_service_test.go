package services

import (
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"

	"proposal-review-api/models"
)

// fakeDispatcher records workflow notifications instead of sending them.
type fakeDispatcher struct {
	invites       []string
	notifications []string
	rejections    []string
	acceptances   int
}

func (d *fakeDispatcher) SendInvite(kind string, invitation *models.ReviewInvitation, proposal *models.Proposal) bool {
	d.invites = append(d.invites, kind+":"+invitation.Email)
	return true
}

func (d *fakeDispatcher) SendStepNotification(proposal *models.Proposal, stepName string, passed bool) bool {
	d.notifications = append(d.notifications, stepName)
	return true
}

func (d *fakeDispatcher) SendRejection(proposal *models.Proposal, stepName, reason string) bool {
	d.rejections = append(d.rejections, stepName+": "+reason)
	return true
}

func (d *fakeDispatcher) SendAcceptance(proposal *models.Proposal) bool {
	d.acceptances++
	return true
}

var (
	selectProposalPattern    = regexp.MustCompile("SELECT \\* FROM `proposals` WHERE proposal_id = .+FOR UPDATE")
	updateProposalPattern    = regexp.MustCompile("UPDATE `proposals` SET")
	insertTimelinePattern    = regexp.MustCompile("INSERT INTO `proposal_timeline`")
	selectInvitationsPattern = regexp.MustCompile("SELECT \\* FROM `review_invitations` WHERE proposal_id")
	countInvitationsPattern  = regexp.MustCompile("SELECT count\\(\\*\\) FROM `review_invitations`")
	insertInvitationPattern  = regexp.MustCompile("INSERT INTO `review_invitations`")
)

var proposalColumns = []string{"proposal_id", "participant_id", "title", "status", "current_step"}

func proposalStep(id, participantID, currentStep int64, status string) *queryStep {
	return &queryStep{
		kind:    kindQuery,
		pattern: selectProposalPattern,
		columns: proposalColumns,
		rows:    [][]driver.Value{{id, participantID, "Deep Learning for Rice Disease Detection", status, currentStep}},
	}
}

func updateStep(pattern *regexp.Regexp) *queryStep {
	return &queryStep{kind: kindExec, pattern: pattern, result: scriptedResult{rowsAffected: 1}}
}

func insertStep(pattern *regexp.Regexp, lastID int64) *queryStep {
	return &queryStep{kind: kindExec, pattern: pattern, result: scriptedResult{lastInsertID: lastID, rowsAffected: 1}}
}

var invitationColumns = []string{"invitation_id", "proposal_id", "kind", "status", "marks", "decision", "allocated_budget"}

func invitationRows(rows ...[]driver.Value) *queryStep {
	return &queryStep{
		kind:    kindQuery,
		pattern: selectInvitationsPattern,
		columns: invitationColumns,
		rows:    rows,
	}
}

func TestFormatCheckAcceptAdvances(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepFormatCheck), models.StatusPending),
		updateStep(updateProposalPattern),
		insertStep(insertTimelinePattern, 1),
	})
	defer cleanup()

	dispatcher := &fakeDispatcher{}
	svc := NewWorkflowService(db, dispatcher)

	p, err := svc.FormatCheck(1, 10, true, "")
	if err != nil {
		t.Fatalf("FormatCheck: %v", err)
	}
	if p.CurrentStep != models.StepPlagiarismCheck {
		t.Errorf("current step = %d, want %d", p.CurrentStep, models.StepPlagiarismCheck)
	}
	if len(dispatcher.notifications) != 1 {
		t.Errorf("notifications = %v, want one", dispatcher.notifications)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestFormatCheckRejectDefaultsReason(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepFormatCheck), models.StatusPending),
		updateStep(updateProposalPattern),
		insertStep(insertTimelinePattern, 1),
	})
	defer cleanup()

	dispatcher := &fakeDispatcher{}
	svc := NewWorkflowService(db, dispatcher)

	p, err := svc.FormatCheck(1, 10, false, "  ")
	if err != nil {
		t.Fatalf("FormatCheck: %v", err)
	}
	if p.Status != models.StatusRejected {
		t.Errorf("status = %s, want REJECTED", p.Status)
	}
	if p.RejectionReason == nil || *p.RejectionReason != "Format check failed" {
		t.Errorf("rejection reason = %v, want default", p.RejectionReason)
	}
	if len(dispatcher.rejections) != 1 {
		t.Errorf("rejections = %v, want one", dispatcher.rejections)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestFormatCheckWrongStepLeavesNoTrace(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepEvaluation), models.StatusPending),
	})
	defer cleanup()

	dispatcher := &fakeDispatcher{}
	svc := NewWorkflowService(db, dispatcher)

	if _, err := svc.FormatCheck(1, 10, true, ""); !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("err = %v, want ErrInvalidStep", err)
	}
	if len(dispatcher.notifications)+len(dispatcher.rejections) != 0 {
		t.Error("dispatcher was called on a failed precondition")
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestStepOperationOnTerminalProposal(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepPlagiarismCheck), models.StatusRejected),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	if _, err := svc.PlagiarismCheck(1, 10, 12); !errors.Is(err, ErrProposalClosed) {
		t.Fatalf("err = %v, want ErrProposalClosed", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestFormatCheckNotFound(t *testing.T) {
	db, _, cleanup := newScriptedGormDB(t, []*queryStep{
		{kind: kindQuery, pattern: selectProposalPattern, columns: proposalColumns},
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	if _, err := svc.FormatCheck(404, 10, true, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPlagiarismCheckRejectRecordsPercentage(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepPlagiarismCheck), models.StatusPending),
		updateStep(updateProposalPattern), // record the percentage
		updateStep(updateProposalPattern), // reject
		insertStep(insertTimelinePattern, 1),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	p, err := svc.PlagiarismCheck(1, 10, 35)
	if err != nil {
		t.Fatalf("PlagiarismCheck: %v", err)
	}
	if p.Status != models.StatusRejected {
		t.Errorf("status = %s, want REJECTED", p.Status)
	}
	if p.PlagiarismPercentage == nil || *p.PlagiarismPercentage != 35 {
		t.Errorf("percentage = %v, want 35 recorded even on rejection", p.PlagiarismPercentage)
	}
	if p.RejectionReason == nil || *p.RejectionReason != "Plagiarism 35% > 20%" {
		t.Errorf("rejection reason = %v", p.RejectionReason)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestPlagiarismCheckValidatesRange(t *testing.T) {
	db, _, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	if _, err := svc.PlagiarismCheck(1, 10, 120); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if _, err := svc.PlagiarismCheck(1, 10, -1); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCompleteEvaluationRequiresQuorum(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepEvaluation), models.StatusPending),
		invitationRows([]driver.Value{int64(1), int64(1), models.InvitationKindEvaluator, models.InvitationStatusCompleted, float64(80), nil, nil}),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	_, err := svc.CompleteEvaluation(1, 10)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "only 1 completed") {
		t.Errorf("err = %v, want the completed count in the message", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestCompleteEvaluationAdvancesOnBoundaryAverage(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepEvaluation), models.StatusPending),
		invitationRows(
			[]driver.Value{int64(1), int64(1), models.InvitationKindEvaluator, models.InvitationStatusCompleted, float64(70), nil, nil},
			[]driver.Value{int64(2), int64(1), models.InvitationKindEvaluator, models.InvitationStatusCompleted, float64(60), nil, nil},
		),
		updateStep(updateProposalPattern),
		insertStep(insertTimelinePattern, 1),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	p, err := svc.CompleteEvaluation(1, 10)
	if err != nil {
		t.Fatalf("CompleteEvaluation: %v", err)
	}
	if p.CurrentStep != models.StepSeminar {
		t.Errorf("current step = %d, want %d", p.CurrentStep, models.StepSeminar)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestInviteEvaluatorCreatesInvitation(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepEvaluation), models.StatusPending),
		{kind: kindQuery, pattern: countInvitationsPattern, columns: []string{"count(*)"}, rows: [][]driver.Value{{int64(0)}}},
		insertStep(insertInvitationPattern, 42),
		insertStep(insertTimelinePattern, 1),
	})
	defer cleanup()

	dispatcher := &fakeDispatcher{}
	svc := NewWorkflowService(db, dispatcher)

	invitation, err := svc.InviteEvaluator(1, 10, " Reviewer@Example.COM ", "Dr. Somchai")
	if err != nil {
		t.Fatalf("InviteEvaluator: %v", err)
	}
	if invitation.Email != "reviewer@example.com" {
		t.Errorf("email = %q, want normalized", invitation.Email)
	}
	if invitation.Token == "" {
		t.Error("token was not generated")
	}
	if invitation.Kind != models.InvitationKindEvaluator {
		t.Errorf("kind = %q", invitation.Kind)
	}
	if len(dispatcher.invites) != 1 || dispatcher.invites[0] != "evaluator:reviewer@example.com" {
		t.Errorf("invites = %v", dispatcher.invites)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestInviteEvaluatorRejectsDuplicate(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepEvaluation), models.StatusPending),
		{kind: kindQuery, pattern: countInvitationsPattern, columns: []string{"count(*)"}, rows: [][]driver.Value{{int64(1)}}},
	})
	defer cleanup()

	dispatcher := &fakeDispatcher{}
	svc := NewWorkflowService(db, dispatcher)

	if _, err := svc.InviteEvaluator(1, 10, "reviewer@example.com", "Dr. Somchai"); !errors.Is(err, ErrDuplicateInvitation) {
		t.Fatalf("err = %v, want ErrDuplicateInvitation", err)
	}
	if len(dispatcher.invites) != 0 {
		t.Error("invite email sent for a duplicate")
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestInviteValidatesEmailBeforeTouchingDB(t *testing.T) {
	db, _, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	if _, err := svc.InviteEvaluator(1, 10, "not-an-email", "Dr. Somchai"); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if _, err := svc.InviteCommittee(1, 10, "reviewer@example.com", "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSeminarDecisionNotAttendedRejects(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepSeminar), models.StatusPending),
		updateStep(updateProposalPattern),
		insertStep(insertTimelinePattern, 1),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	p, err := svc.SeminarDecision(1, 10, false, true, "")
	if err != nil {
		t.Fatalf("SeminarDecision: %v", err)
	}
	if p.Status != models.StatusRejected {
		t.Errorf("status = %s, want REJECTED", p.Status)
	}
	if p.RejectionReason == nil || *p.RejectionReason != "Not attended" {
		t.Errorf("rejection reason = %v, want Not attended", p.RejectionReason)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestSeminarDecisionAdvances(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepSeminar), models.StatusPending),
		updateStep(updateProposalPattern),
		insertStep(insertTimelinePattern, 1),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	p, err := svc.SeminarDecision(1, 10, true, true, "")
	if err != nil {
		t.Fatalf("SeminarDecision: %v", err)
	}
	if p.CurrentStep != models.StepCommittee {
		t.Errorf("current step = %d, want %d", p.CurrentStep, models.StepCommittee)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestAttachBudgetFilesOwnerOnly(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepCommittee), models.StatusPending),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	budget := "uploads/budget.pdf"
	if _, err := svc.AttachBudgetFiles(1, 9, &budget, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestAttachBudgetFilesRequiresAFile(t *testing.T) {
	db, _, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	if _, err := svc.AttachBudgetFiles(1, 7, nil, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCompleteCommitteeReviewAnyRejectionRejects(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepCommittee), models.StatusPending),
		invitationRows(
			[]driver.Value{int64(1), int64(1), models.InvitationKindCommittee, models.InvitationStatusCompleted, nil, models.DecisionApproved, float64(50000)},
			[]driver.Value{int64(2), int64(1), models.InvitationKindCommittee, models.InvitationStatusCompleted, nil, models.DecisionRejected, nil},
		),
		updateStep(updateProposalPattern),
		insertStep(insertTimelinePattern, 1),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	p, err := svc.CompleteCommitteeReview(1, 10, nil)
	if err != nil {
		t.Fatalf("CompleteCommitteeReview: %v", err)
	}
	if p.Status != models.StatusRejected {
		t.Errorf("status = %s, want REJECTED", p.Status)
	}
	if p.RejectionReason == nil || *p.RejectionReason != "Research committee rejected the proposal" {
		t.Errorf("rejection reason = %v", p.RejectionReason)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestCompleteCommitteeReviewApprovesWithFallbackBudget(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepCommittee), models.StatusPending),
		invitationRows(
			[]driver.Value{int64(1), int64(1), models.InvitationKindCommittee, models.InvitationStatusCompleted, nil, models.DecisionApproved, float64(40000)},
		),
		updateStep(updateProposalPattern), // advance to rector approval
		updateStep(updateProposalPattern), // record allocated budget
		insertStep(insertTimelinePattern, 1),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	p, err := svc.CompleteCommitteeReview(1, 10, nil)
	if err != nil {
		t.Fatalf("CompleteCommitteeReview: %v", err)
	}
	if p.CurrentStep != models.StepRector {
		t.Errorf("current step = %d, want %d", p.CurrentStep, models.StepRector)
	}
	if p.AllocatedBudget == nil || *p.AllocatedBudget != 40000 {
		t.Errorf("allocated budget = %v, want 40000 from the approving review", p.AllocatedBudget)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}

func TestCompleteCommitteeReviewRequiresAReview(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, []*queryStep{
		proposalStep(1, 7, int64(models.StepCommittee), models.StatusPending),
		invitationRows(),
	})
	defer cleanup()

	svc := NewWorkflowService(db, &fakeDispatcher{})
	if _, err := svc.CompleteCommitteeReview(1, 10, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Error(err)
	}
}
