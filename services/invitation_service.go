package services

import (
	"errors"
	"fmt"
	"time"

	"proposal-review-api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewInvitation builds a pending invitation with a fresh random token and the
// standard 7-day expiry. The token is a v4 UUID: unguessable and globally
// unique, immutable after creation.
func NewInvitation(proposalID int, kind, email, name string, now time.Time) models.ReviewInvitation {
	return models.ReviewInvitation{
		ProposalID: proposalID,
		Kind:       kind,
		Email:      email,
		Name:       name,
		Token:      uuid.NewString(),
		Status:     models.InvitationStatusPending,
		InvitedAt:  now,
		ExpiresAt:  now.Add(models.InvitationTTL),
	}
}

// SubmitReviewInput carries an external reviewer's decision payload. Which
// fields apply depends on the invitation kind: evaluators submit marks,
// committee members and the rector submit a decision.
type SubmitReviewInput struct {
	Marks           *float64
	Decision        *string
	Comments        string
	AllocatedBudget *float64
}

// InvitationService owns the token lifecycle of external review invitations:
// resolving tokens for the review form and accepting single-shot submissions.
type InvitationService struct {
	db         *gorm.DB
	dispatcher Dispatcher
}

func NewInvitationService(db *gorm.DB, dispatcher Dispatcher) *InvitationService {
	return &InvitationService{db: db, dispatcher: dispatcher}
}

// Resolve looks an invitation up by token, with its proposal attached for the
// review form context.
func (s *InvitationService) Resolve(token string) (*models.ReviewInvitation, error) {
	var invitation models.ReviewInvitation
	if err := s.db.Preload("Proposal").
		Where("token = ?", token).
		First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invitation token", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to resolve invitation token: %w", err)
	}
	return &invitation, nil
}

// Submit records an external reviewer's decision. The first successful
// submission flips the invitation to COMPLETED; any later attempt fails with
// ErrAlreadyCompleted and never overwrites the stored payload. Expired pending
// tokens fail with ErrExpired. A rector submission also finalizes the
// proposal inside the same transaction.
func (s *InvitationService) Submit(token string, input SubmitReviewInput) (*models.ReviewInvitation, error) {
	var invitation models.ReviewInvitation
	var proposal *models.Proposal
	var rectorApproved bool

	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token = ?", token).
			First(&invitation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: invitation token", ErrNotFound)
			}
			return fmt.Errorf("failed to load invitation: %w", err)
		}

		if invitation.IsCompleted() {
			return ErrAlreadyCompleted
		}
		if invitation.IsExpired(now) {
			return ErrExpired
		}

		updates := map[string]interface{}{
			"status":       models.InvitationStatusCompleted,
			"completed_at": now,
		}

		switch invitation.Kind {
		case models.InvitationKindEvaluator:
			if err := ValidateMarks(input.Marks); err != nil {
				return err
			}
			invitation.Marks = input.Marks
			updates["marks"] = *input.Marks
		case models.InvitationKindCommittee:
			if err := ValidateDecision(input.Decision); err != nil {
				return err
			}
			invitation.Decision = input.Decision
			updates["decision"] = *input.Decision
			if input.AllocatedBudget != nil {
				invitation.AllocatedBudget = input.AllocatedBudget
				updates["allocated_budget"] = *input.AllocatedBudget
			}
		case models.InvitationKindRector:
			if err := ValidateDecision(input.Decision); err != nil {
				return err
			}
			invitation.Decision = input.Decision
			updates["decision"] = *input.Decision
		default:
			return fmt.Errorf("%w: unknown invitation kind %q", ErrValidation, invitation.Kind)
		}

		if input.Comments != "" {
			invitation.Comments = &input.Comments
			updates["comments"] = input.Comments
		}

		if err := tx.Model(&models.ReviewInvitation{}).
			Where("invitation_id = ?", invitation.InvitationID).
			Updates(updates).Error; err != nil {
			return err
		}
		invitation.Status = models.InvitationStatusCompleted
		invitation.CompletedAt = &now

		switch invitation.Kind {
		case models.InvitationKindEvaluator:
			detail := fmt.Sprintf("Marks: %s/100", formatNumber(*invitation.Marks))
			return appendTimeline(tx, invitation.ProposalID, models.StepName(models.StepEvaluation),
				"Evaluation Submitted", nil, &invitation.Name, detail)
		case models.InvitationKindCommittee:
			detail := fmt.Sprintf("Decision: %s", *invitation.Decision)
			return appendTimeline(tx, invitation.ProposalID, models.StepName(models.StepCommittee),
				"Committee Review Submitted", nil, &invitation.Name, detail)
		}

		// Rector decisions finalize the proposal under the same row lock the
		// admin step operations take.
		var err error
		proposal, err = lockProposal(tx, invitation.ProposalID, models.StepRector)
		if err != nil {
			return err
		}

		if *invitation.Decision == models.DecisionApproved {
			rectorApproved = true
			proposal.Status = models.StatusAccepted
			proposal.UpdatedAt = now
			if err := tx.Model(&models.Proposal{}).
				Where("proposal_id = ?", proposal.ProposalID).
				Updates(map[string]interface{}{
					"status":     models.StatusAccepted,
					"updated_at": now,
				}).Error; err != nil {
				return err
			}
			return appendTimeline(tx, proposal.ProposalID, models.StepName(models.StepRector),
				"Accepted", nil, &invitation.Name, "Final approval granted")
		}

		reason := "Rejected by rector"
		if invitation.Comments != nil && *invitation.Comments != "" {
			reason = *invitation.Comments
		}
		if err := reject(tx, proposal, reason); err != nil {
			return err
		}
		return appendTimeline(tx, proposal.ProposalID, models.StepName(models.StepRector),
			"Rejected", nil, &invitation.Name, reason)
	})
	if err != nil {
		return nil, err
	}

	if proposal != nil {
		if rectorApproved {
			s.dispatcher.SendAcceptance(proposal)
		} else {
			s.dispatcher.SendRejection(proposal, models.StepName(models.StepRector), *proposal.RejectionReason)
		}
	}
	return &invitation, nil
}
