package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"proposal-review-api/config"
	"proposal-review-api/models"
	"proposal-review-api/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var allowedProposalExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
}

const maxProposalFileSize = int64(10 * 1024 * 1024) // 10MB

// saveUploadedProposalFile validates and stores one multipart file under the
// upload directory, returning the stored path.
func saveUploadedProposalFile(c *gin.Context, field string) (string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return "", err
	}

	if file.Size > maxProposalFileSize {
		return "", fmt.Errorf("file size exceeds 10MB limit")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedProposalExtensions[ext] {
		return "", fmt.Errorf("file type not allowed")
	}

	uploadPath := os.Getenv("UPLOAD_PATH")
	if uploadPath == "" {
		uploadPath = "./uploads"
	}
	if err := os.MkdirAll(uploadPath, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	storedName := fmt.Sprintf("%s%s", uuid.NewString(), ext)
	fullPath := filepath.Join(uploadPath, storedName)
	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return fullPath, nil
}

// CreateProposal submits a new proposal against an open notice. Participant
// only; the proposal starts at step 1 with status PENDING.
func CreateProposal(c *gin.Context) {
	userID, _ := c.Get("userID")

	title := strings.TrimSpace(c.PostForm("title"))
	description := strings.TrimSpace(c.PostForm("description"))
	if title == "" || description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and description are required"})
		return
	}

	var noticeID *int
	if raw := strings.TrimSpace(c.PostForm("notice_id")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notice ID"})
			return
		}

		var notice models.Notice
		if err := config.DB.First(&notice, id).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Notice not found"})
			return
		}
		if !notice.IsOpen(time.Now()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Notice is closed for submissions"})
			return
		}
		noticeID = &id
	}

	proposalFile, err := saveUploadedProposalFile(c, "proposal_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid proposal file is required: " + err.Error()})
		return
	}

	now := time.Now()
	proposal := models.Proposal{
		NoticeID:      noticeID,
		ParticipantID: userID.(int),
		Title:         title,
		Description:   description,
		ProposalFile:  proposalFile,
		Status:        models.StatusPending,
		CurrentStep:   models.StepFormatCheck,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&proposal).Error; err != nil {
			return err
		}
		actorID := userID.(int)
		details := "Initial submission"
		entry := models.TimelineEntry{
			ProposalID: proposal.ProposalID,
			StepName:   "Submission",
			Action:     "Proposal Submitted",
			ActorID:    &actorID,
			Details:    &details,
			CreatedAt:  now,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create proposal"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":   "created",
		"proposal": proposal,
	})
}

// GetProposals lists proposals. Admins see everything; participants only
// their own submissions.
func GetProposals(c *gin.Context) {
	userID, _ := c.Get("userID")
	role, _ := c.Get("role")

	query := config.DB.Preload("Participant").Preload("Notice").Order("created_at DESC")
	if role != models.RoleAdmin {
		query = query.Where("participant_id = ?", userID)
	}

	var proposals []models.Proposal
	if err := query.Find(&proposals).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch proposals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"proposals": proposals,
		"total":     len(proposals),
	})
}

// loadProposalScoped loads a proposal and enforces that participants only
// see their own.
func loadProposalScoped(c *gin.Context) (*models.Proposal, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid proposal ID"})
		return nil, false
	}

	var proposal models.Proposal
	if err := config.DB.Preload("Participant").Preload("Notice").
		First(&proposal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Proposal not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch proposal"})
		return nil, false
	}

	role, _ := c.Get("role")
	userID, _ := c.Get("userID")
	if role != models.RoleAdmin && proposal.ParticipantID != userID.(int) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return nil, false
	}
	return &proposal, true
}

// GetProposal returns one proposal with its audit timeline.
func GetProposal(c *gin.Context) {
	proposal, ok := loadProposalScoped(c)
	if !ok {
		return
	}

	timeline, err := services.TimelineForProposal(config.DB, proposal.ProposalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch timeline"})
		return
	}
	proposal.Timeline = timeline

	c.JSON(http.StatusOK, gin.H{"proposal": proposal})
}

// GetProposalTimeline returns the audit history in chronological order.
func GetProposalTimeline(c *gin.Context) {
	proposal, ok := loadProposalScoped(c)
	if !ok {
		return
	}

	timeline, err := services.TimelineForProposal(config.DB, proposal.ProposalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch timeline"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"timeline": timeline,
		"total":    len(timeline),
	})
}
