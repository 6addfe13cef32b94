package services

import (
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"proposal-review-api/config"
	"proposal-review-api/models"

	"gorm.io/gorm"
)

// Dispatcher produces notifications for workflow events. Delivery is
// best-effort: the engine never rolls back a committed transition because a
// notification failed, so implementations must swallow transport errors after
// logging them.
type Dispatcher interface {
	SendInvite(kind string, invitation *models.ReviewInvitation, proposal *models.Proposal) bool
	SendStepNotification(proposal *models.Proposal, stepName string, passed bool) bool
	SendRejection(proposal *models.Proposal, stepName, reason string) bool
	SendAcceptance(proposal *models.Proposal) bool
}

// EmailDispatcher renders HTML email and in-app notification rows for
// workflow events. SMTP delivery happens on a background goroutine.
type EmailDispatcher struct {
	db *gorm.DB
}

func NewEmailDispatcher(db *gorm.DB) *EmailDispatcher {
	return &EmailDispatcher{db: db}
}

var inviteSubjects = map[string]string{
	models.InvitationKindEvaluator: "Research Proposal Evaluation Request",
	models.InvitationKindCommittee: "Research Committee Review Required",
	models.InvitationKindRector:    "Final Approval Required",
}

// SendInvite emails the external reviewer their tokenized review link.
func (d *EmailDispatcher) SendInvite(kind string, invitation *models.ReviewInvitation, proposal *models.Proposal) bool {
	subject, ok := inviteSubjects[kind]
	if !ok {
		log.Printf("dispatcher: unknown invitation kind %q", kind)
		return false
	}
	subject = fmt.Sprintf("%s: %s", subject, proposal.Title)

	link := fmt.Sprintf("%s/external/review/%s", config.SiteURL(), invitation.Token)
	body := fmt.Sprintf(
		"You have been invited to review the research proposal \"%s\".\n\n"+
			"Please open the link below to submit your review:\n%s\n\n"+
			"Note: this link expires on %s.",
		proposal.Title, link, invitation.ExpiresAt.Format("January 2, 2006 at 3:04 PM"),
	)

	html := buildFormalEmailHTML(subject, invitation.Name, body)
	go sendMailSafe([]string{invitation.Email}, subject, html)
	return true
}

// SendStepNotification tells the participant their proposal moved past a step.
func (d *EmailDispatcher) SendStepNotification(proposal *models.Proposal, stepName string, passed bool) bool {
	participant, ok := d.participantFor(proposal)
	if !ok {
		return false
	}

	statusText := "passed"
	notifType := "success"
	if !passed {
		statusText = "requires attention at"
		notifType = "warning"
	}

	subject := fmt.Sprintf("Proposal Progress: %s - %s", stepName, proposal.Title)
	body := fmt.Sprintf(
		"Your research proposal \"%s\" has %s the %s stage.\nCurrent step: %s.",
		proposal.Title, statusText, stepName, proposal.CurrentStepName(),
	)

	d.createNotification(participant.UserID, subject, body, notifType, proposal.ProposalID)
	go sendMailSafe([]string{participant.Email}, subject, buildFormalEmailHTML(subject, participant.DisplayName(), body))
	return true
}

// SendRejection tells the participant their proposal was rejected and why.
func (d *EmailDispatcher) SendRejection(proposal *models.Proposal, stepName, reason string) bool {
	participant, ok := d.participantFor(proposal)
	if !ok {
		return false
	}

	subject := fmt.Sprintf("Proposal Update: %s", proposal.Title)
	body := fmt.Sprintf(
		"We regret to inform you that your research proposal was not approved at the %s stage.\nReason: %s",
		stepName, reason,
	)

	d.createNotification(participant.UserID, subject, body, "error", proposal.ProposalID)
	go sendMailSafe([]string{participant.Email}, subject, buildFormalEmailHTML(subject, participant.DisplayName(), body))
	return true
}

// SendAcceptance congratulates the participant on final approval.
func (d *EmailDispatcher) SendAcceptance(proposal *models.Proposal) bool {
	participant, ok := d.participantFor(proposal)
	if !ok {
		return false
	}

	subject := fmt.Sprintf("Congratulations! Your Proposal Has Been Approved: %s", proposal.Title)
	body := fmt.Sprintf(
		"Your research proposal \"%s\" has been approved at all stages and received final approval from the Rector.\n"+
			"Please contact the research administration office for next steps.",
		proposal.Title,
	)

	d.createNotification(participant.UserID, subject, body, "success", proposal.ProposalID)
	go sendMailSafe([]string{participant.Email}, subject, buildFormalEmailHTML(subject, participant.DisplayName(), body))
	return true
}

func (d *EmailDispatcher) participantFor(proposal *models.Proposal) (*models.User, bool) {
	if proposal.Participant != nil {
		return proposal.Participant, true
	}
	var user models.User
	if err := d.db.Where("user_id = ? AND deleted_at IS NULL", proposal.ParticipantID).First(&user).Error; err != nil {
		log.Printf("dispatcher: participant %d not found for proposal %d: %v", proposal.ParticipantID, proposal.ProposalID, err)
		return nil, false
	}
	return &user, true
}

func (d *EmailDispatcher) createNotification(userID int, title, message, notifType string, proposalID int) {
	n := models.Notification{
		UserID:            userID,
		Title:             title,
		Message:           message,
		Type:              notifType,
		RelatedProposalID: &proposalID,
		IsRead:            false,
		CreatedAt:         time.Now(),
	}
	if err := d.db.Create(&n).Error; err != nil {
		log.Printf("dispatcher: failed to store notification for user %d: %v", userID, err)
	}
}

func buildFormalEmailHTML(subject, recipientName, message string) string {
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = "Reviewer"
	}

	escapedSubject := template.HTMLEscapeString(subject)
	escapedGreeting := template.HTMLEscapeString(fmt.Sprintf("Dear %s,", name))
	escapedMessage := template.HTMLEscapeString(strings.TrimSpace(message))
	escapedMessage = strings.ReplaceAll(strings.ReplaceAll(escapedMessage, "\r\n", "\n"), "\r", "\n")
	escapedMessage = strings.ReplaceAll(escapedMessage, "\n", "<br />")

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body style="margin:0;padding:0;background-color:#f9fafb;font-family:'Segoe UI',Tahoma,Arial,sans-serif;">
<div style="max-width:640px;margin:0 auto;padding:24px 20px;">
  <div style="background-color:#ffffff;border:1px solid #e5e7eb;border-radius:12px;padding:24px 24px 28px 24px;">
    <p style="margin:0 0 16px 0;font-size:16px;line-height:1.7;color:#111827;">%s</p>
    <p style="margin:0 0 0 0;font-size:16px;line-height:1.7;color:#111827;word-break:break-word;">%s</p>
  </div>
</div>
</body>
</html>`, escapedSubject, escapedGreeting, escapedMessage)
}

func sendMailSafe(to []string, subject, html string) {
	if err := config.SendMail(to, subject, html); err != nil {
		log.Printf("notification email send failed (subject=%q to=%v): %v", subject, to, err)
	}
}
