package models

import "time"

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusInProgress = "in_progress"
	OrderStatusReady      = "ready"
	OrderStatusServed     = "served"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// Order payment statuses
const (
	PaymentStatusUnpaid      = "unpaid"
	PaymentStatusPartialPaid = "partial_paid"
	PaymentStatusPaid        = "paid"
)

type Order struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	RestaurantID uint `gorm:"not null;index" json:"restaurant_id"`
	// Weak back-reference: order tetap hidup walau sesi diarsip/dihapus
	CollabSessionID *uint               `gorm:"index" json:"collab_session_id,omitempty"`
	ParticipantID   *uint               `gorm:"index" json:"participant_id,omitempty"`
	Participant     *SessionParticipant `gorm:"foreignKey:ParticipantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"participant,omitempty"`
	OrderNumber     string              `gorm:"type:varchar(50);not null;uniqueIndex" json:"order_number"`
	TableNumber     string              `gorm:"type:varchar(50)" json:"table_number"`
	Status          string              `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	PaymentStatus   string              `gorm:"type:varchar(20);not null;default:'unpaid'" json:"payment_status"`
	TotalAmount     float64             `gorm:"type:decimal(10,2);not null;default:0.00" json:"total_amount"`
	CreatedAt       time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"not null" json:"updated_at"`
	OrderItems      []OrderItem         `gorm:"foreignKey:OrderID" json:"order_items"`
}

// Settled -> order tidak menghalangi penyelesaian sesi
func (o *Order) Settled() bool {
	if o.PaymentStatus == PaymentStatusPaid {
		return true
	}
	return o.Status == OrderStatusServed || o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}
