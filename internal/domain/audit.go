package domain

import "time"

type AuditLog struct {
	ID        [16]byte  `gorm:"type:uuid;primaryKey" db:"id"` // uuid bytes
	UserID    *UserID   `gorm:"type:uuid" db:"user_id"`
	Category  string    `gorm:"type:text;not null" db:"category"`
	Action    string    `gorm:"type:text;not null" db:"action"`
	Reason    string    `gorm:"type:text" db:"reason"`
	Severity  string    `gorm:"type:text" db:"severity"`
	Target    string    `gorm:"type:text" db:"target"`
	Metadata  []byte    `gorm:"type:jsonb" db:"metadata"`
	IP        string    `gorm:"type:text" db:"ip"`
	UserAgent string    `gorm:"type:text" db:"user_agent"`
	CreatedAt time.Time `gorm:"not null" db:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
