package models

import "time"

// Notice statuses.
const (
	NoticeStatusActive = "ACTIVE"
	NoticeStatusClosed = "CLOSED"
)

// Notice represents an open call that proposals are submitted against.
type Notice struct {
	NoticeID    int       `gorm:"primaryKey;column:notice_id" json:"notice_id"`
	Title       string    `gorm:"column:title" json:"title"`
	Description string    `gorm:"column:description" json:"description"`
	Deadline    time.Time `gorm:"column:deadline" json:"deadline"`
	Status      string    `gorm:"column:status;default:ACTIVE" json:"status"` // ACTIVE | CLOSED
	CreatedBy   int       `gorm:"column:created_by" json:"created_by"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`

	Creator *User `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
}

func (Notice) TableName() string {
	return "notices"
}

// IsOpen reports whether the notice still accepts submissions.
func (n *Notice) IsOpen(now time.Time) bool {
	return n.Status == NoticeStatusActive && now.Before(n.Deadline)
}
