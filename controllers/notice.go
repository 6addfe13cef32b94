package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"proposal-review-api/config"
	"proposal-review-api/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type NoticeRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description" binding:"required"`
	Deadline    time.Time `json:"deadline" binding:"required"`
}

// CreateNotice opens a new call for proposals. Admin only.
func CreateNotice(c *gin.Context) {
	var req NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := c.Get("userID")
	now := time.Now()
	notice := models.Notice{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
		Status:      models.NoticeStatusActive,
		CreatedBy:   userID.(int),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := config.DB.Create(&notice).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notice"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "created",
		"notice": notice,
	})
}

// GetNotices lists notices. Admins see everything; participants only calls
// that are still open.
func GetNotices(c *gin.Context) {
	role, _ := c.Get("role")

	query := config.DB.Preload("Creator").Order("deadline ASC")
	if role != models.RoleAdmin {
		query = query.Where("status = ? AND deadline > ?", models.NoticeStatusActive, time.Now())
	}

	var notices []models.Notice
	if err := query.Find(&notices).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notices"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notices": notices,
		"total":   len(notices),
	})
}

// GetNotice returns a single notice.
func GetNotice(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notice ID"})
		return
	}

	var notice models.Notice
	if err := config.DB.Preload("Creator").First(&notice, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notice not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notice": notice})
}

// UpdateNotice edits an open call. Admin only.
func UpdateNotice(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notice ID"})
		return
	}

	var req NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var notice models.Notice
	if err := config.DB.First(&notice, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notice not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notice"})
		return
	}

	if err := config.DB.Model(&notice).Updates(map[string]interface{}{
		"title":       req.Title,
		"description": req.Description,
		"deadline":    req.Deadline,
		"updated_at":  time.Now(),
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated", "notice": notice})
}

// CloseNotice marks a call as closed for new submissions. Admin only.
func CloseNotice(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notice ID"})
		return
	}

	result := config.DB.Model(&models.Notice{}).
		Where("notice_id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.NoticeStatusClosed,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to close notice"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notice not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}
