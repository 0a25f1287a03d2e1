package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Split types
const (
	SplitTypeEqual  = "equal"
	SplitTypeCustom = "custom"
)

// Split session statuses
const (
	SplitStatusPending   = "pending"
	SplitStatusCompleted = "completed"
)

// Portion statuses
const (
	PortionStatusPending    = "pending"
	PortionStatusProcessing = "processing"
	PortionStatusPaid       = "paid"
)

// SplitPaymentSession -> satu pembagian pembayaran untuk satu order
type SplitPaymentSession struct {
	ID          uuid.UUID             `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID     uint                  `gorm:"not null;uniqueIndex" json:"order_id"`
	Order       Order                 `gorm:"foreignKey:OrderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	SplitType   string                `gorm:"type:varchar(20);not null" json:"split_type"`
	TotalAmount float64               `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	TipAmount   float64               `gorm:"type:decimal(10,2);not null;default:0.00" json:"tip_amount"`
	Status      string                `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Portions    []SplitPaymentPortion `gorm:"foreignKey:SplitSessionID" json:"portions,omitempty"`
	CreatedAt   time.Time             `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time             `gorm:"not null" json:"updated_at"`
}

func (s *SplitPaymentSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SplitPaymentPortion -> satu porsi yang bisa dibayar independen
type SplitPaymentPortion struct {
	ID              uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	SplitSessionID  uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"split_session_id"`
	Name            string     `gorm:"type:varchar(100);not null" json:"name"`
	Amount          float64    `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status          string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	IsPaid          bool       `gorm:"not null;default:false" json:"is_paid"`
	PaymentIntentID *string    `gorm:"type:varchar(255)" json:"payment_intent_id,omitempty"`
	PaymentMethod   *string    `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (p *SplitPaymentPortion) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
