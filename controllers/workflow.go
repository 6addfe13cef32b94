package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"proposal-review-api/config"
	"proposal-review-api/services"

	"github.com/gin-gonic/gin"
)

func workflowService() *services.WorkflowService {
	return services.NewWorkflowService(config.DB, services.NewEmailDispatcher(config.DB))
}

// respondWorkflowError maps the service error taxonomy to HTTP status codes.
func respondWorkflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidStep),
		errors.Is(err, services.ErrProposalClosed),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrDuplicateInvitation),
		errors.Is(err, services.ErrAlreadyCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"})
	}
}

func proposalIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid proposal ID"})
		return 0, false
	}
	return id, true
}

// FormatCheck handles step 1. Admin only.
func FormatCheck(c *gin.Context) {
	id, ok := proposalIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	userID, _ := c.Get("userID")
	proposal, err := workflowService().FormatCheck(id, userID.(int), req.Accepted, req.Reason)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	if req.Accepted {
		c.JSON(http.StatusOK, gin.H{"status": "moved to step 2", "proposal": proposal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected", "proposal": proposal})
}

// PlagiarismCheck handles step 2. Admin only.
func PlagiarismCheck(c *gin.Context) {
	id, ok := proposalIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Percentage *float64 `json:"percentage" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Plagiarism percentage is required"})
		return
	}

	userID, _ := c.Get("userID")
	proposal, err := workflowService().PlagiarismCheck(id, userID.(int), *req.Percentage)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	if proposal.Status == "REJECTED" {
		c.JSON(http.StatusOK, gin.H{"status": "rejected", "proposal": proposal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "moved to step 3", "proposal": proposal})
}

type inviteRequest struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name" binding:"required"`
}

// InviteEvaluator handles the step-3 invite. Admin only.
func InviteEvaluator(c *gin.Context) {
	id, ok := proposalIDParam(c)
	if !ok {
		return
	}

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and name are required"})
		return
	}

	userID, _ := c.Get("userID")
	invitation, err := workflowService().InviteEvaluator(id, userID.(int), req.Email, req.Name)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "invited", "invitation": invitation})
}

// CompleteEvaluation closes step 3. Admin only.
func CompleteEvaluation(c *gin.Context) {
	id, ok := proposalIDParam(c)
	if !ok {
		return
	}

	userID, _ := c.Get("userID")
	proposal, err := workflowService().CompleteEvaluation(id, userID.(int))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	if proposal.Status == "REJECTED" {
		c.JSON(http.StatusOK, gin.H{"status": "rejected", "proposal": proposal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "moved to step 4", "proposal": proposal})
}

// SeminarDecision handles step 4. Admin only.
func SeminarDecision(c *gin.Context) {
	id, ok := proposalIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Attended bool   `json:"attended"`
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	userID, _ := c.Get("userID")
	proposal, err := workflowService().SeminarDecision(id, userID.(int), req.Attended, req.Accepted, req.Reason)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	if proposal.Status == "REJECTED" {
		c.JSON(http.StatusOK, gin.H{"status": "rejected", "proposal": proposal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "moved to step 5", "proposal": proposal})
}

// UploadBudget handles the step-5 participant upload of budget and revised
// proposal files.
func UploadBudget(c *gin.Context) {
	id, ok := proposalIDParam(c)
	if !ok {
		return
	}

	var budgetFile, revisedFile *string
	if path, err := saveUploadedProposalFile(c, "budget_file"); err == nil {
		budgetFile = &path
	}
	if path, err := saveUploadedProposalFile(c, "revised_file"); err == nil {
		revisedFile = &path
	}

	userID, _ := c.Get("userID")
	proposal, err := workflowService().AttachBudgetFiles(id, userID.(int), budgetFile, revisedFile)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "files uploaded", "proposal": proposal})
}

// InviteCommittee handles the step-5 invite. Admin only.
func InviteCommittee(c *gin.Context) {
	id, ok := proposalIDParam(c)
	if !ok {
		return
	}

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and name are required"})
		return
	}

	userID, _ := c.Get("userID")
	invitation, err := workflowService().InviteCommittee(id, userID.(int), req.Email, req.Name)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "invited", "invitation": invitation})
}

// CompleteCommitteeReview closes step 5. Admin only.
func CompleteCommitteeReview(c *gin.Context) {
	id, ok := proposalIDParam(c)
	if !ok {
		return
	}

	var req struct {
		AllocatedBudget *float64 `json:"allocated_budget"`
	}
	// Body is optional for this action.
	_ = c.ShouldBindJSON(&req)

	userID, _ := c.Get("userID")
	proposal, err := workflowService().CompleteCommitteeReview(id, userID.(int), req.AllocatedBudget)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	if proposal.Status == "REJECTED" {
		c.JSON(http.StatusOK, gin.H{"status": "rejected", "proposal": proposal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "moved to step 6", "proposal": proposal})
}

// InviteRector handles the step-6 invite. Admin only.
func InviteRector(c *gin.Context) {
	id, ok := proposalIDParam(c)
	if !ok {
		return
	}

	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and name are required"})
		return
	}

	userID, _ := c.Get("userID")
	invitation, err := workflowService().InviteRector(id, userID.(int), req.Email, req.Name)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "invited", "invitation": invitation})
}
