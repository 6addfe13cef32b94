package models

import "time"

// Proposal statuses.
const (
	StatusPending  = "PENDING"
	StatusAccepted = "ACCEPTED"
	StatusRejected = "REJECTED"
)

// Workflow steps in pipeline order.
const (
	StepFormatCheck     = 1
	StepPlagiarismCheck = 2
	StepEvaluation      = 3
	StepSeminar         = 4
	StepCommittee       = 5
	StepRector          = 6
)

var stepNames = map[int]string{
	StepFormatCheck:     "Format Checking",
	StepPlagiarismCheck: "Plagiarism Checking",
	StepEvaluation:      "Evaluation",
	StepSeminar:         "Seminar",
	StepCommittee:       "Research Committee",
	StepRector:          "Rector Approval",
}

// StepName returns the display name for a workflow step.
func StepName(step int) string {
	if name, ok := stepNames[step]; ok {
		return name
	}
	return "Unknown"
}

// Proposal is the central entity tracked through the six-step pipeline.
type Proposal struct {
	ProposalID    int     `gorm:"primaryKey;column:proposal_id" json:"proposal_id"`
	NoticeID      *int    `gorm:"column:notice_id" json:"notice_id,omitempty"`
	ParticipantID int     `gorm:"column:participant_id" json:"participant_id"`
	Title         string  `gorm:"column:title" json:"title"`
	Description   string  `gorm:"column:description" json:"description"`
	ProposalFile  string  `gorm:"column:proposal_file" json:"proposal_file"`
	RevisedFile   *string `gorm:"column:revised_file" json:"revised_file,omitempty"`
	BudgetFile    *string `gorm:"column:budget_file" json:"budget_file,omitempty"`

	Status          string  `gorm:"column:status;default:PENDING" json:"status"` // PENDING | ACCEPTED | REJECTED
	CurrentStep     int     `gorm:"column:current_step;default:1" json:"current_step"`
	RejectionReason *string `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`

	PlagiarismPercentage *float64 `gorm:"column:plagiarism_percentage" json:"plagiarism_percentage,omitempty"`
	AllocatedBudget      *float64 `gorm:"column:allocated_budget" json:"allocated_budget,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	Participant *User           `gorm:"foreignKey:ParticipantID" json:"participant,omitempty"`
	Notice      *Notice         `gorm:"foreignKey:NoticeID" json:"notice,omitempty"`
	Timeline    []TimelineEntry `gorm:"foreignKey:ProposalID" json:"timeline,omitempty"`
}

func (Proposal) TableName() string {
	return "proposals"
}

// IsTerminal reports whether the proposal reached a final status. A terminal
// proposal freezes current_step; no step operation may mutate it again.
func (p *Proposal) IsTerminal() bool {
	return p.Status != StatusPending
}

// CurrentStepName returns the display name of the step the proposal sits on.
func (p *Proposal) CurrentStepName() string {
	return StepName(p.CurrentStep)
}
