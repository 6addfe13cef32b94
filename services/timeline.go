package services

import (
	"fmt"
	"time"

	"proposal-review-api/models"

	"gorm.io/gorm"
)

// appendTimeline writes one audit entry inside the caller's transaction.
// Exactly one of actorID / actorName must be set.
func appendTimeline(tx *gorm.DB, proposalID int, stepName, action string, actorID *int, actorName *string, details string) error {
	if (actorID == nil) == (actorName == nil) {
		return fmt.Errorf("%w: timeline entry requires exactly one of actor or actor name", ErrValidation)
	}

	entry := models.TimelineEntry{
		ProposalID: proposalID,
		StepName:   stepName,
		Action:     action,
		ActorID:    actorID,
		ActorName:  actorName,
		CreatedAt:  time.Now(),
	}
	if details != "" {
		entry.Details = &details
	}
	return tx.Create(&entry).Error
}

// TimelineForProposal returns the full audit history of a proposal in
// chronological order.
func TimelineForProposal(db *gorm.DB, proposalID int) ([]models.TimelineEntry, error) {
	var entries []models.TimelineEntry
	if err := db.Where("proposal_id = ?", proposalID).
		Order("created_at ASC, entry_id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load proposal timeline: %w", err)
	}
	return entries, nil
}
