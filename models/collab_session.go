package models

import (
	"time"

	"gorm.io/gorm"
)

// Session types
const (
	SessionTypeCollaborative = "collaborative"
	SessionTypeIndividual    = "individual"
)

// Session lifecycle statuses
const (
	SessionStatusActive    = "active"
	SessionStatusLocked    = "locked"
	SessionStatusPayment   = "payment"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

const (
	MinParticipants        = 2
	MaxParticipantsCeiling = 20
	DefaultMaxParticipants = 6
)

// CollabSession -> satu sesi makan bersama di satu meja
type CollabSession struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RestaurantID uint       `gorm:"not null;index:idx_sessions_restaurant_table" json:"restaurant_id"`
	TableID      *uint      `gorm:"index" json:"table_id,omitempty"`
	Table        *Table     `gorm:"foreignKey:TableID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"table,omitempty"`
	// TableNumber denormalized: tetap tersimpan walau meja dihapus
	TableNumber         string     `gorm:"type:varchar(50);not null;index:idx_sessions_restaurant_table" json:"table_number"`
	ShareCode           string     `gorm:"type:varchar(12);not null;index" json:"share_code"`
	SessionType         string     `gorm:"type:varchar(20);not null;default:'collaborative'" json:"session_type"`
	Status              string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	HostName            string     `gorm:"type:varchar(100);not null" json:"host_name"`
	MaxParticipants     int        `gorm:"not null;default:6" json:"max_participants"`
	RequireApproval     bool       `gorm:"not null;default:false" json:"require_approval"`
	SplitPaymentEnabled bool       `gorm:"not null;default:false" json:"split_payment_enabled"`
	IsArchived          bool       `gorm:"not null;default:false;index" json:"is_archived"`
	CreatedAt           time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"not null" json:"updated_at"`
	LockedAt            *time.Time `json:"locked_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	ArchivedAt          *time.Time `json:"archived_at,omitempty"`

	Participants []SessionParticipant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`
}

// LiveStatuses -> status yang menghitung ke invariant "one table, one live session"
var LiveStatuses = []string{SessionStatusActive, SessionStatusLocked, SessionStatusPayment}

// sessionTransitions -> state machine: active -> locked -> payment -> completed,
// cancelled dari active/locked. completed dan cancelled terminal.
var sessionTransitions = map[string][]string{
	SessionStatusActive:  {SessionStatusLocked, SessionStatusPayment, SessionStatusCompleted, SessionStatusCancelled},
	SessionStatusLocked:  {SessionStatusActive, SessionStatusPayment, SessionStatusCompleted, SessionStatusCancelled},
	SessionStatusPayment: {SessionStatusCompleted},
}

// CanTransitionTo reports whether status may move to target
func (s *CollabSession) CanTransitionTo(target string) bool {
	for _, t := range sessionTransitions[s.Status] {
		if t == target {
			return true
		}
	}
	return false
}

func (s *CollabSession) IsTerminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusCancelled
}

// IsLive -> sesi masih menempati meja
func (s *CollabSession) IsLive() bool {
	if s.IsArchived {
		return false
	}
	for _, st := range LiveStatuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// CartOpen -> cart hanya bisa diubah selama active/locked
func (s *CollabSession) CartOpen() bool {
	return s.Status == SessionStatusActive || s.Status == SessionStatusLocked
}

// LiveSessions -> query scope yang menyembunyikan sesi terarsip.
// Archived adalah filter, bukan delete: gunakan db tanpa scope untuk "all".
func LiveSessions(db *gorm.DB) *gorm.DB {
	return db.Where("is_archived = ?", false)
}
