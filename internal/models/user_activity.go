package models

import "time"

// UserActivity records the latest heartbeat per profile.
type UserActivity struct {
	Username  string    `gorm:"primaryKey;size:50" json:"username"`
	LastSeen  time.Time `gorm:"index" json:"last_seen"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the row-store contract's table naming.
func (UserActivity) TableName() string { return "user_activity" }
