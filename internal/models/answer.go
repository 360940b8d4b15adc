package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Answer records a student's response to a curriculum question. Re-submitting
// the same (username, question_id, attempt_number) overwrites the earlier row.
type Answer struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username       string  `gorm:"not null;size:50;uniqueIndex:idx_answer_attempt,priority:1" json:"username"`
	QuestionID     string  `gorm:"not null;size:64;index;uniqueIndex:idx_answer_attempt,priority:2" json:"question_id"`
	AttemptNumber  int     `gorm:"not null;default:1;uniqueIndex:idx_answer_attempt,priority:3" json:"attempt_number"`
	Value          string  `gorm:"not null;size:16" json:"value"`
	Reasoning      string  `gorm:"type:text" json:"reasoning,omitempty"`
	ClassSectionID *string `gorm:"type:uuid;index" json:"class_section_id,omitempty"`

	// TeacherNote is only projected into teacher views.
	TeacherNote string `gorm:"type:text" json:"teacher_note,omitempty"`

	Votes []Vote `gorm:"foreignKey:AnswerID" json:"votes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// TableName keeps the row-store contract's table naming.
func (Answer) TableName() string { return "answers" }
