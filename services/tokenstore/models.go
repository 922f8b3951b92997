package tokenstore

import (
	"time"
)

type RefreshToken struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	SubjectID  string    `json:"subject_id" gorm:"size:64;not null;index"`
	TokenHash  string    `json:"-" gorm:"uniqueIndex;size:255;not null"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at"`
	DeviceInfo string    `json:"device_info" gorm:"size:500"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// SessionInfo describes the client a refresh token was issued to. Purely
// informational; it never participates in token validation.
type SessionInfo struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo map[string]any
}
