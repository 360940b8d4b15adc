package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClassSection groups profiles under one teacher for roster and peer views.
type ClassSection struct {
	ID              string `gorm:"primaryKey;type:uuid" json:"id"`
	Name            string `gorm:"not null;size:100" json:"name"`
	TeacherUsername string `gorm:"not null;size:50;index" json:"teacher_username"`
	JoinCode        string `gorm:"uniqueIndex;size:16" json:"join_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (c *ClassSection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// TableName keeps the row-store contract's table naming.
func (ClassSection) TableName() string { return "class_sections" }
