package users

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// User is an authentication record. Its ID selects the user's journal store.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Username     string    `gorm:"column:username;size:190;not null;uniqueIndex:idx_users_username"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null"`
	DisplayName  string    `gorm:"column:display_name;size:320"`
	LastSeenAt   time.Time `gorm:"column:last_seen_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing authentication records.
func (User) TableName() string {
	return "users"
}

// NormalizeUsername trims and case-folds a username so lookups are case-insensitive.
func NormalizeUsername(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}
