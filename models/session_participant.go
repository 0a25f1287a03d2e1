package models

import "time"

// Participant roles
const (
	ParticipantRoleHost   = "host"
	ParticipantRoleMember = "member"
)

// Participant statuses
const (
	ParticipantStatusPending  = "pending"
	ParticipantStatusActive   = "active"
	ParticipantStatusRejected = "rejected"
	ParticipantStatusLeft     = "left"
)

type SessionParticipant struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	SessionID    uint          `gorm:"not null;index" json:"session_id"`
	Session      CollabSession `gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	DisplayName  string        `gorm:"type:varchar(100);not null" json:"display_name"`
	Role         string        `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	Status       string        `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	GuestPhone   *string       `gorm:"type:varchar(50)" json:"guest_phone,omitempty"`
	GuestName    *string       `gorm:"type:varchar(100)" json:"guest_name,omitempty"`
	Notes        string        `gorm:"type:text" json:"notes,omitempty"`
	JoinedAt     time.Time     `gorm:"not null" json:"joined_at"`
	LastActivity time.Time     `gorm:"not null" json:"last_activity"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updated_at"`
}

func (p *SessionParticipant) IsActiveHost() bool {
	return p.Role == ParticipantRoleHost && p.Status == ParticipantStatusActive
}
