package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vote is a peer endorsement on another student's answer. A voter may change
// their vote; one row exists per (voter_username, answer_id).
type Vote struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	AnswerID      string `gorm:"type:uuid;not null;index;uniqueIndex:idx_vote_once,priority:2" json:"answer_id"`
	VoterUsername string `gorm:"not null;size:50;uniqueIndex:idx_vote_once,priority:1" json:"voter_username"`
	VoteType      string `gorm:"not null;size:16;default:helpful" json:"vote_type"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// TableName keeps the row-store contract's table naming.
func (Vote) TableName() string { return "votes" }
