package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Badge is an achievement attached to a profile, either earned automatically
// or awarded by a teacher.
type Badge struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username       string  `gorm:"not null;size:50;index" json:"username"`
	BadgeType      string  `gorm:"not null;size:32" json:"badge_type"`
	QuestionID     string  `gorm:"size:64" json:"question_id,omitempty"`
	AwardedBy      string  `gorm:"size:50" json:"awarded_by,omitempty"`
	ClassSectionID *string `gorm:"type:uuid;index" json:"class_section_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (b *Badge) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// TableName keeps the row-store contract's table naming.
func (Badge) TableName() string { return "badges" }
