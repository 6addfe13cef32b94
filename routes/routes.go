package routes

import (
	"proposal-review-api/controllers"
	"proposal-review-api/middleware"
	"proposal-review-api/models"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// External review forms (no auth required - token based)
	external := router.Group("/external")
	{
		external.GET("/review/:token", controllers.GetReviewForm)
		external.POST("/review/:token", controllers.SubmitReview)
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			public.POST("/login", controllers.Login)

			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Proposal Review API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/profile", controllers.GetProfile)

			// In-app notifications
			notifications := protected.Group("/notifications")
			{
				notifications.GET("", controllers.GetNotifications)
				notifications.GET("/counter", controllers.GetNotificationCounter)
				notifications.POST("/:id/read", controllers.MarkNotificationRead)
				notifications.POST("/read-all", controllers.MarkAllNotificationsRead)
			}

			// Notices (open calls)
			notices := protected.Group("/notices")
			{
				notices.GET("", controllers.GetNotices)
				notices.GET("/:id", controllers.GetNotice)

				notices.POST("", middleware.RequireRole(models.RoleAdmin), controllers.CreateNotice)
				notices.PUT("/:id", middleware.RequireRole(models.RoleAdmin), controllers.UpdateNotice)
				notices.POST("/:id/close", middleware.RequireRole(models.RoleAdmin), controllers.CloseNotice)
			}

			// Proposals and the six-step workflow
			proposals := protected.Group("/proposals")
			{
				proposals.GET("", controllers.GetProposals)
				proposals.GET("/:id", controllers.GetProposal)
				proposals.GET("/:id/timeline", controllers.GetProposalTimeline)

				// Only participants submit proposals and upload budget files
				proposals.POST("", middleware.RequireRole(models.RoleParticipant), controllers.CreateProposal)
				proposals.POST("/:id/upload-budget", middleware.RequireRole(models.RoleParticipant), controllers.UploadBudget)

				// Admin-driven step actions
				admin := proposals.Group("", middleware.RequireRole(models.RoleAdmin))
				{
					admin.POST("/:id/format-check", controllers.FormatCheck)
					admin.POST("/:id/plagiarism-check", controllers.PlagiarismCheck)
					admin.POST("/:id/invite-evaluator", controllers.InviteEvaluator)
					admin.POST("/:id/complete-evaluation", controllers.CompleteEvaluation)
					admin.POST("/:id/seminar-decision", controllers.SeminarDecision)
					admin.POST("/:id/invite-committee", controllers.InviteCommittee)
					admin.POST("/:id/complete-committee-review", controllers.CompleteCommitteeReview)
					admin.POST("/:id/invite-rector", controllers.InviteRector)
				}
			}
		}
	}
}
