package models

import "time"

// Invitation kinds. One table backs all three external reviewer roles; the
// kind discriminant selects which decision payload columns apply.
const (
	InvitationKindEvaluator = "evaluator"
	InvitationKindCommittee = "committee"
	InvitationKindRector    = "rector"
)

// Invitation statuses. Expiry is derived, never stored.
const (
	InvitationStatusPending   = "PENDING"
	InvitationStatusCompleted = "COMPLETED"
)

// Review decisions for committee and rector invitations.
const (
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// InvitationTTL is how long a reviewer link stays valid after it is issued.
const InvitationTTL = 7 * 24 * time.Hour

// ReviewInvitation is one external reviewer's assignment to one proposal,
// addressed by an unguessable token. Evaluator and committee invitations are
// unique per (proposal, kind, email); the rector invitation is 1:1 with the
// proposal. The token is immutable after creation.
type ReviewInvitation struct {
	InvitationID int    `gorm:"primaryKey;column:invitation_id" json:"invitation_id"`
	ProposalID   int    `gorm:"column:proposal_id" json:"proposal_id"`
	Kind         string `gorm:"column:kind" json:"kind"` // evaluator | committee | rector
	Email        string `gorm:"column:email" json:"email"`
	Name         string `gorm:"column:name" json:"name"`
	Token        string `gorm:"column:token;unique" json:"-"`
	Status       string `gorm:"column:status;default:PENDING" json:"status"` // PENDING | COMPLETED

	// Decision payload. Marks is the evaluator variant; Decision and
	// AllocatedBudget belong to committee/rector reviews.
	Marks           *float64 `gorm:"column:marks" json:"marks,omitempty"`
	Decision        *string  `gorm:"column:decision" json:"decision,omitempty"` // APPROVED | REJECTED
	Comments        *string  `gorm:"column:comments" json:"comments,omitempty"`
	AllocatedBudget *float64 `gorm:"column:allocated_budget" json:"allocated_budget,omitempty"`

	InvitedAt   time.Time  `gorm:"column:invited_at" json:"invited_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `gorm:"column:expires_at" json:"expires_at"`

	Proposal *Proposal `gorm:"foreignKey:ProposalID" json:"proposal,omitempty"`
}

func (ReviewInvitation) TableName() string {
	return "review_invitations"
}

// IsExpired reports whether the invitation lapsed without a submission.
// Completed invitations never read as expired regardless of elapsed time.
func (inv *ReviewInvitation) IsExpired(now time.Time) bool {
	return inv.Status == InvitationStatusPending && now.After(inv.ExpiresAt)
}

// IsCompleted reports whether the reviewer already submitted.
func (inv *ReviewInvitation) IsCompleted() bool {
	return inv.Status == InvitationStatusCompleted
}
