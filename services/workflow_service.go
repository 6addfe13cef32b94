package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"proposal-review-api/models"
	"proposal-review-api/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkflowService is the step transition engine. Each operation is a
// guard-then-mutate pair executed in one transaction: the proposal row is
// locked for the duration, preconditions are checked, and only a successful
// decision mutates state and appends a timeline entry. A failed precondition
// leaves no trace. Operations on different proposals proceed in parallel;
// the row lock serializes operations on the same proposal.
type WorkflowService struct {
	db         *gorm.DB
	dispatcher Dispatcher
}

func NewWorkflowService(db *gorm.DB, dispatcher Dispatcher) *WorkflowService {
	return &WorkflowService{db: db, dispatcher: dispatcher}
}

// lockProposal loads the proposal under a row lock and checks the shared step
// preconditions. Terminal proposals are frozen for every step operation.
func lockProposal(tx *gorm.DB, proposalID, requiredStep int) (*models.Proposal, error) {
	var p models.Proposal
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("proposal_id = ?", proposalID).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: proposal %d", ErrNotFound, proposalID)
		}
		return nil, fmt.Errorf("failed to load proposal %d: %w", proposalID, err)
	}
	if p.IsTerminal() {
		return nil, fmt.Errorf("%w: proposal %d is %s", ErrProposalClosed, proposalID, p.Status)
	}
	if p.CurrentStep != requiredStep {
		return nil, fmt.Errorf("%w: proposal is on step %d, operation requires step %d",
			ErrInvalidStep, p.CurrentStep, requiredStep)
	}
	return &p, nil
}

// advance moves a pending proposal to the next step.
func advance(tx *gorm.DB, p *models.Proposal, nextStep int) error {
	p.CurrentStep = nextStep
	p.UpdatedAt = time.Now()
	return tx.Model(&models.Proposal{}).
		Where("proposal_id = ?", p.ProposalID).
		Updates(map[string]interface{}{
			"current_step": p.CurrentStep,
			"updated_at":   p.UpdatedAt,
		}).Error
}

// reject finalizes a proposal with a rejection reason. The current step is
// left untouched so the history shows where the pipeline stopped.
func reject(tx *gorm.DB, p *models.Proposal, reason string) error {
	p.Status = models.StatusRejected
	p.RejectionReason = &reason
	p.UpdatedAt = time.Now()
	return tx.Model(&models.Proposal{}).
		Where("proposal_id = ?", p.ProposalID).
		Updates(map[string]interface{}{
			"status":           p.Status,
			"rejection_reason": reason,
			"updated_at":       p.UpdatedAt,
		}).Error
}

// FormatCheck handles step 1: an admin accepts or rejects the submission
// format. Acceptance moves the proposal to the plagiarism check.
func (s *WorkflowService) FormatCheck(proposalID, actorID int, accepted bool, reason string) (*models.Proposal, error) {
	var p *models.Proposal

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockProposal(tx, proposalID, models.StepFormatCheck)
		if err != nil {
			return err
		}

		if accepted {
			if err := advance(tx, p, models.StepPlagiarismCheck); err != nil {
				return err
			}
			return appendTimeline(tx, p.ProposalID, models.StepName(models.StepFormatCheck),
				"Accepted", &actorID, nil, "Format check passed")
		}

		if strings.TrimSpace(reason) == "" {
			reason = "Format check failed"
		}
		if err := reject(tx, p, reason); err != nil {
			return err
		}
		return appendTimeline(tx, p.ProposalID, models.StepName(models.StepFormatCheck),
			"Rejected", &actorID, nil, reason)
	})
	if err != nil {
		return nil, err
	}

	if accepted {
		s.dispatcher.SendStepNotification(p, models.StepName(models.StepFormatCheck), true)
	} else {
		s.dispatcher.SendRejection(p, models.StepName(models.StepFormatCheck), *p.RejectionReason)
	}
	return p, nil
}

// PlagiarismCheck handles step 2: the measured similarity percentage is
// recorded either way; at most 20% passes the proposal to evaluation.
func (s *WorkflowService) PlagiarismCheck(proposalID, actorID int, percentage float64) (*models.Proposal, error) {
	if percentage < 0 || percentage > 100 {
		return nil, fmt.Errorf("%w: percentage must be between 0 and 100", ErrValidation)
	}

	var p *models.Proposal
	passed := PlagiarismPasses(percentage)
	detail := PlagiarismDetail(percentage)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockProposal(tx, proposalID, models.StepPlagiarismCheck)
		if err != nil {
			return err
		}

		p.PlagiarismPercentage = &percentage
		if err := tx.Model(&models.Proposal{}).
			Where("proposal_id = ?", p.ProposalID).
			Updates(map[string]interface{}{
				"plagiarism_percentage": percentage,
				"updated_at":            time.Now(),
			}).Error; err != nil {
			return err
		}

		if passed {
			if err := advance(tx, p, models.StepEvaluation); err != nil {
				return err
			}
			return appendTimeline(tx, p.ProposalID, models.StepName(models.StepPlagiarismCheck),
				"Accepted", &actorID, nil, detail)
		}

		if err := reject(tx, p, detail); err != nil {
			return err
		}
		return appendTimeline(tx, p.ProposalID, models.StepName(models.StepPlagiarismCheck),
			"Rejected", &actorID, nil, detail)
	})
	if err != nil {
		return nil, err
	}

	if passed {
		s.dispatcher.SendStepNotification(p, models.StepName(models.StepPlagiarismCheck), true)
	} else {
		s.dispatcher.SendRejection(p, models.StepName(models.StepPlagiarismCheck), detail)
	}
	return p, nil
}

// InviteEvaluator handles the step-3 invite: creates an evaluator invitation
// with a fresh token and emails the review link. Inviting the same email twice
// for one proposal fails and leaves the first invitation untouched.
func (s *WorkflowService) InviteEvaluator(proposalID, actorID int, email, name string) (*models.ReviewInvitation, error) {
	return s.invite(proposalID, actorID, models.StepEvaluation, models.InvitationKindEvaluator, "Evaluator Invited", email, name)
}

// InviteCommittee handles the step-5 invite for research committee members.
func (s *WorkflowService) InviteCommittee(proposalID, actorID int, email, name string) (*models.ReviewInvitation, error) {
	return s.invite(proposalID, actorID, models.StepCommittee, models.InvitationKindCommittee, "Committee Invited", email, name)
}

// InviteRector handles the step-6 invite. A proposal has at most one rector
// invitation, regardless of its completion state.
func (s *WorkflowService) InviteRector(proposalID, actorID int, email, name string) (*models.ReviewInvitation, error) {
	return s.invite(proposalID, actorID, models.StepRector, models.InvitationKindRector, "Rector Invited", email, name)
}

func (s *WorkflowService) invite(proposalID, actorID, requiredStep int, kind, action, email, name string) (*models.ReviewInvitation, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	if !utils.ValidateEmail(email) {
		return nil, fmt.Errorf("%w: a valid reviewer email is required", ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: reviewer name is required", ErrValidation)
	}

	var p *models.Proposal
	var invitation models.ReviewInvitation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockProposal(tx, proposalID, requiredStep)
		if err != nil {
			return err
		}

		// The rector assignment is 1:1 with the proposal; evaluator and
		// committee invitations are unique per (proposal, email).
		dup := tx.Model(&models.ReviewInvitation{}).
			Where("proposal_id = ? AND kind = ?", proposalID, kind)
		if kind != models.InvitationKindRector {
			dup = dup.Where("email = ?", email)
		}
		var count int64
		if err := dup.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			if kind == models.InvitationKindRector {
				return fmt.Errorf("%w: a rector invitation already exists for this proposal", ErrDuplicateInvitation)
			}
			return fmt.Errorf("%w: %s was already invited to this proposal", ErrDuplicateInvitation, email)
		}

		invitation = NewInvitation(proposalID, kind, email, name, time.Now())
		if err := tx.Create(&invitation).Error; err != nil {
			return err
		}

		detail := fmt.Sprintf("Invitation sent to %s <%s>", name, email)
		return appendTimeline(tx, proposalID, models.StepName(requiredStep), action, &actorID, nil, detail)
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.SendInvite(kind, &invitation, p)
	return &invitation, nil
}

// CompleteEvaluation closes step 3 once at least two evaluators submitted.
// The arithmetic mean of the completed marks decides: 65 or above advances the
// proposal to the seminar, anything lower rejects it.
func (s *WorkflowService) CompleteEvaluation(proposalID, actorID int) (*models.Proposal, error) {
	var p *models.Proposal
	var passed bool
	var detail string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockProposal(tx, proposalID, models.StepEvaluation)
		if err != nil {
			return err
		}

		var invitations []models.ReviewInvitation
		if err := tx.Where("proposal_id = ? AND kind = ? AND status = ?",
			proposalID, models.InvitationKindEvaluator, models.InvitationStatusCompleted).
			Find(&invitations).Error; err != nil {
			return err
		}

		average, completed := EvaluationAverage(invitations)
		if completed < EvaluationQuorum {
			return fmt.Errorf("%w: only %d completed evaluation(s), at least %d required",
				ErrValidation, completed, EvaluationQuorum)
		}

		passed = EvaluationPasses(average)
		detail = EvaluationDetail(average)

		if passed {
			if err := advance(tx, p, models.StepSeminar); err != nil {
				return err
			}
			return appendTimeline(tx, p.ProposalID, models.StepName(models.StepEvaluation),
				"Accepted", &actorID, nil, detail)
		}

		if err := reject(tx, p, detail); err != nil {
			return err
		}
		return appendTimeline(tx, p.ProposalID, models.StepName(models.StepEvaluation),
			"Rejected", &actorID, nil, detail)
	})
	if err != nil {
		return nil, err
	}

	if passed {
		s.dispatcher.SendStepNotification(p, models.StepName(models.StepEvaluation), true)
	} else {
		s.dispatcher.SendRejection(p, models.StepName(models.StepEvaluation), detail)
	}
	return p, nil
}

// SeminarDecision handles step 4: the proposal passes only when the
// participant attended the seminar and the faculty accepted it.
func (s *WorkflowService) SeminarDecision(proposalID, actorID int, attended, accepted bool, reason string) (*models.Proposal, error) {
	passed, rejectionReason := SeminarOutcome(attended, accepted, strings.TrimSpace(reason))

	var p *models.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockProposal(tx, proposalID, models.StepSeminar)
		if err != nil {
			return err
		}

		if passed {
			if err := advance(tx, p, models.StepCommittee); err != nil {
				return err
			}
			return appendTimeline(tx, p.ProposalID, models.StepName(models.StepSeminar),
				"Accepted", &actorID, nil, "Seminar successful")
		}

		if err := reject(tx, p, rejectionReason); err != nil {
			return err
		}
		return appendTimeline(tx, p.ProposalID, models.StepName(models.StepSeminar),
			"Rejected", &actorID, nil, rejectionReason)
	})
	if err != nil {
		return nil, err
	}

	if passed {
		s.dispatcher.SendStepNotification(p, models.StepName(models.StepSeminar), true)
	} else {
		s.dispatcher.SendRejection(p, models.StepName(models.StepSeminar), rejectionReason)
	}
	return p, nil
}

// AttachBudgetFiles handles the step-5 participant upload of the budget and
// revised proposal files. Only the owning participant may upload.
func (s *WorkflowService) AttachBudgetFiles(proposalID, actorID int, budgetFile, revisedFile *string) (*models.Proposal, error) {
	if budgetFile == nil && revisedFile == nil {
		return nil, fmt.Errorf("%w: no files provided", ErrValidation)
	}

	var p *models.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockProposal(tx, proposalID, models.StepCommittee)
		if err != nil {
			return err
		}

		if p.ParticipantID != actorID {
			return fmt.Errorf("%w: only the proposal owner may upload files", ErrForbidden)
		}

		updates := map[string]interface{}{"updated_at": time.Now()}
		uploaded := make([]string, 0, 2)
		if budgetFile != nil {
			p.BudgetFile = budgetFile
			updates["budget_file"] = *budgetFile
			uploaded = append(uploaded, "budget file")
		}
		if revisedFile != nil {
			p.RevisedFile = revisedFile
			updates["revised_file"] = *revisedFile
			uploaded = append(uploaded, "revised proposal")
		}

		if err := tx.Model(&models.Proposal{}).
			Where("proposal_id = ?", p.ProposalID).
			Updates(updates).Error; err != nil {
			return err
		}

		detail := fmt.Sprintf("Uploaded %s", strings.Join(uploaded, " and "))
		return appendTimeline(tx, p.ProposalID, models.StepName(models.StepCommittee),
			"Files Uploaded", &actorID, nil, detail)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CompleteCommitteeReview closes step 5 once at least one committee member
// submitted. Any rejecting decision rejects the proposal; otherwise it moves
// to rector approval, recording the allocated budget when one is known.
func (s *WorkflowService) CompleteCommitteeReview(proposalID, actorID int, allocatedBudget *float64) (*models.Proposal, error) {
	var p *models.Proposal
	var approved bool

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockProposal(tx, proposalID, models.StepCommittee)
		if err != nil {
			return err
		}

		var reviews []models.ReviewInvitation
		if err := tx.Where("proposal_id = ? AND kind = ? AND status = ?",
			proposalID, models.InvitationKindCommittee, models.InvitationStatusCompleted).
			Find(&reviews).Error; err != nil {
			return err
		}
		if len(reviews) < CommitteeQuorum {
			return fmt.Errorf("%w: %d completed committee review(s), at least %d required",
				ErrValidation, len(reviews), CommitteeQuorum)
		}

		var budget *float64
		approved, budget = CommitteeOutcome(reviews, allocatedBudget)

		if !approved {
			reason := "Research committee rejected the proposal"
			if err := reject(tx, p, reason); err != nil {
				return err
			}
			return appendTimeline(tx, p.ProposalID, models.StepName(models.StepCommittee),
				"Rejected", &actorID, nil, reason)
		}

		if err := advance(tx, p, models.StepRector); err != nil {
			return err
		}

		detail := "Committee approved the proposal"
		if budget != nil {
			p.AllocatedBudget = budget
			if err := tx.Model(&models.Proposal{}).
				Where("proposal_id = ?", p.ProposalID).
				Updates(map[string]interface{}{
					"allocated_budget": *budget,
					"updated_at":       time.Now(),
				}).Error; err != nil {
				return err
			}
			detail = fmt.Sprintf("Committee approved with allocated budget %s", formatNumber(*budget))
		}

		return appendTimeline(tx, p.ProposalID, models.StepName(models.StepCommittee),
			"Accepted", &actorID, nil, detail)
	})
	if err != nil {
		return nil, err
	}

	if approved {
		s.dispatcher.SendStepNotification(p, models.StepName(models.StepCommittee), true)
	} else {
		s.dispatcher.SendRejection(p, models.StepName(models.StepCommittee), *p.RejectionReason)
	}
	return p, nil
}
