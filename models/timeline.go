package models

import "time"

// TimelineEntry is an append-only audit record of a state-changing action on a
// proposal. Exactly one of ActorID / ActorName is set: internal users are
// referenced by id, external reviewers by their display name. Entries are
// never updated or deleted.
type TimelineEntry struct {
	EntryID    int       `gorm:"primaryKey;column:entry_id" json:"entry_id"`
	ProposalID int       `gorm:"column:proposal_id" json:"proposal_id"`
	StepName   string    `gorm:"column:step_name" json:"step_name"`
	Action     string    `gorm:"column:action" json:"action"` // e.g. "Submitted", "Accepted", "Rejected"
	ActorID    *int      `gorm:"column:actor_id" json:"actor_id,omitempty"`
	ActorName  *string   `gorm:"column:actor_name" json:"actor_name,omitempty"`
	Details    *string   `gorm:"column:details" json:"details,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`

	Actor *User `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
}

func (TimelineEntry) TableName() string {
	return "proposal_timeline"
}
