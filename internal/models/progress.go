package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Progress tracks lesson completion per profile; one row per (username, lesson_id).
type Progress struct {
	ID                 string `gorm:"primaryKey;type:uuid" json:"id"`
	Username           string `gorm:"not null;size:50;uniqueIndex:idx_progress_lesson,priority:1" json:"username"`
	LessonID           string `gorm:"not null;size:64;uniqueIndex:idx_progress_lesson,priority:2" json:"lesson_id"`
	CompletedQuestions int    `gorm:"default:0" json:"completed_questions"`
	TotalQuestions     int    `gorm:"default:0" json:"total_questions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (p *Progress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// TableName keeps the row-store contract's table naming.
func (Progress) TableName() string { return "progress" }
