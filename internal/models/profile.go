package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile is an anonymous identity claimed by a display name. No password is
// stored; possession of the issued token is the only credential.
type Profile struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username       string  `gorm:"uniqueIndex;not null;size:50" json:"username"`
	IsTeacher      bool    `gorm:"default:false" json:"is_teacher"`
	ClassSectionID *string `gorm:"type:uuid;index" json:"class_section_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// TableName keeps the row-store contract's table naming.
func (Profile) TableName() string { return "profiles" }
