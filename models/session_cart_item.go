package models

import "time"

// SessionCartItem -> satu baris cart milik satu participant.
// Customizations disimpan sebagai JSON kanonik (key terurut) supaya baris
// identik bisa di-merge dengan perbandingan string.
type SessionCartItem struct {
	ID                  uint               `gorm:"primaryKey" json:"id"`
	SessionID           uint               `gorm:"not null;index" json:"session_id"`
	ParticipantID       uint               `gorm:"not null;index" json:"participant_id"`
	Participant         SessionParticipant `gorm:"foreignKey:ParticipantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	MenuID              uint               `gorm:"not null" json:"menu_id"`
	Menu                Menu               `gorm:"foreignKey:MenuID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"menu"`
	Quantity            int                `gorm:"not null" json:"quantity"`
	SpecialInstructions string             `gorm:"type:text" json:"special_instructions,omitempty"`
	Customizations      string             `gorm:"type:text" json:"customizations,omitempty"`
	AddedAt             time.Time          `gorm:"not null" json:"added_at"`
	UpdatedAt           time.Time          `gorm:"not null" json:"updated_at"`
}
