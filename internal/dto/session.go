package dto

import (
	"time"

	"secgate/internal/domain"
)

type SessionView struct {
	UserID       domain.UserID     `json:"userId"`
	Username     string            `json:"username"`
	FirstName    string            `json:"firstName"`
	LastName     string            `json:"lastName"`
	Role         string            `json:"role"`
	Territories  []string          `json:"territories"`
	Permissions  map[string]bool   `json:"permissions"`
	SessionToken string            `json:"-"`
	Payload      map[string]string `json:"payload,omitempty"`
	DeviceInfo   domain.DeviceInfo `json:"deviceInfo"`
	IPAddress    string            `json:"ipAddress"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
	ExpiresAt    time.Time         `json:"expiresAt"`
}

type SessionSummary struct {
	ID           string            `json:"id"`
	IPAddress    string            `json:"ipAddress"`
	DeviceInfo   domain.DeviceInfo `json:"deviceInfo"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
	Current      bool              `json:"current"`
}

// Finding is an advisory result from suspicious-session detection; it never
// blocks a request by itself.
type Finding struct {
	Severity string `json:"severity"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}
