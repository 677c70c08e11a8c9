package domain

import "time"

type User struct {
	ID          UserID          `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Username    string          `gorm:"type:citext;uniqueIndex:ux_users_username" db:"username" json:"username"`
	FirstName   string          `gorm:"type:text" db:"first_name" json:"firstName"`
	LastName    string          `gorm:"type:text" db:"last_name" json:"lastName"`
	Role        string          `gorm:"type:text;not null" db:"role" json:"role"`
	Territories []string        `gorm:"type:jsonb;serializer:json" db:"territories" json:"territories"`
	Permissions map[string]bool `gorm:"type:jsonb;serializer:json" db:"permissions" json:"permissions"`
	IsActive    bool            `gorm:"not null;default:true" db:"is_active" json:"isActive"`
	CreatedAt   time.Time       `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }
