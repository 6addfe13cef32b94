package controllers

import (
	"net/http"
	"time"

	"proposal-review-api/config"
	"proposal-review-api/models"
	"proposal-review-api/services"

	"github.com/gin-gonic/gin"
)

func invitationService() *services.InvitationService {
	return services.NewInvitationService(config.DB, services.NewEmailDispatcher(config.DB))
}

// reviewContext is the excerpt shown on the external review form.
type reviewContext struct {
	Kind          string  `json:"kind"`
	ReviewerName  string  `json:"reviewer_name"`
	ProposalTitle string  `json:"proposal_title"`
	Description   string  `json:"description"`
	CurrentStep   string  `json:"current_step"`
	ExpiresAt     string  `json:"expires_at"`
	Decision      *string `json:"decision,omitempty"`
	Marks         *float64 `json:"marks,omitempty"`
}

func buildReviewContext(inv *models.ReviewInvitation) reviewContext {
	ctx := reviewContext{
		Kind:         inv.Kind,
		ReviewerName: inv.Name,
		ExpiresAt:    inv.ExpiresAt.Format(time.RFC3339),
		Decision:     inv.Decision,
		Marks:        inv.Marks,
	}
	if inv.Proposal != nil {
		ctx.ProposalTitle = inv.Proposal.Title
		description := inv.Proposal.Description
		if len(description) > 200 {
			description = description[:200] + "..."
		}
		ctx.Description = description
		ctx.CurrentStep = inv.Proposal.CurrentStepName()
	}
	return ctx
}

// GetReviewForm returns the context for an external review form, or its error
// state when the token expired or the review was already submitted.
func GetReviewForm(c *gin.Context) {
	invitation, err := invitationService().Resolve(c.Param("token"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	if invitation.IsCompleted() {
		c.JSON(http.StatusOK, gin.H{
			"state":  "already_submitted",
			"review": buildReviewContext(invitation),
		})
		return
	}
	if invitation.IsExpired(time.Now()) {
		c.JSON(http.StatusGone, gin.H{
			"state": "expired",
			"error": "This review link has expired",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":  "pending",
		"review": buildReviewContext(invitation),
	})
}

// SubmitReview records an external reviewer's decision via their token.
func SubmitReview(c *gin.Context) {
	var req struct {
		Marks           *float64 `json:"marks"`
		Decision        *string  `json:"decision"`
		Comments        string   `json:"comments"`
		AllocatedBudget *float64 `json:"allocated_budget"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	invitation, err := invitationService().Submit(c.Param("token"), services.SubmitReviewInput{
		Marks:           req.Marks,
		Decision:        req.Decision,
		Comments:        req.Comments,
		AllocatedBudget: req.AllocatedBudget,
	})
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "submitted",
		"kind":   invitation.Kind,
	})
}
