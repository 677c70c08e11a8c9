package domain

import "time"

// Session is append-only: deactivation flips IsActive and stamps
// InvalidatedAt, rows are never deleted.
type Session struct {
	ID            SessionID         `gorm:"type:uuid;primaryKey" db:"id"`
	UserID        UserID            `gorm:"type:uuid;index" db:"user_id"`
	SessionToken  string            `gorm:"type:text;uniqueIndex:ux_sessions_token" db:"session_token"`
	IPAddress     string            `gorm:"type:inet" db:"ip_address"`
	UserAgent     string            `gorm:"type:text" db:"user_agent"`
	DeviceInfo    DeviceInfo        `gorm:"type:jsonb;serializer:json" db:"device_info"`
	SessionData   map[string]string `gorm:"type:jsonb;serializer:json" db:"session_data"`
	CreatedAt     time.Time         `gorm:"not null" db:"created_at"`
	LastActivity  time.Time         `gorm:"not null" db:"last_activity"`
	ExpiresAt     time.Time         `gorm:"not null;index:ix_sessions_active_exp" db:"expires_at"`
	IsActive      bool              `gorm:"not null;default:true;index:ix_sessions_active_exp" db:"is_active"`
	InvalidatedAt *time.Time        `db:"invalidated_at"`
}

func (Session) TableName() string { return "sessions" }
