package realtime

import "fmt"

// Event types yang disiarkan ke group
const (
	EventSessionCreated        = "session_created"
	EventSessionLocked         = "session_locked"
	EventSessionUnlocked       = "session_unlocked"
	EventSessionPaymentStarted = "session_payment_started"
	EventSessionCompleted      = "session_completed"
	EventSessionCancelled      = "session_cancelled"
	EventSessionArchived       = "session_archived"
	EventSessionDeleted        = "session_deleted"
	EventParticipantJoined     = "participant_joined"
	EventParticipantApproved   = "participant_approved"
	EventParticipantRejected   = "participant_rejected"
	EventParticipantLeft       = "participant_left"
	EventParticipantRemoved    = "participant_removed"
	EventHostChanged           = "host_changed"
	EventCartUpdated           = "cart_updated"
	EventOrderSubmitted        = "order_submitted"
	EventOrderUpdate           = "order_update"
	EventSplitCreated          = "split_created"
	EventSplitPortionPaid      = "split_portion_paid"
	EventSplitCompleted        = "split_completed"
)

// Event -> bentuk minimum pesan fan-out: {type, data}
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Publisher -> abstraksi pub/sub yang bisa ditukar broker terdistribusi.
// Publish best-effort: gagal kirim tidak pernah menggagalkan mutasi state.
type Publisher interface {
	Publish(key string, event Event)
}

// SessionKey -> group key untuk satu sesi
func SessionKey(sessionID uint) string {
	return fmt.Sprintf("session_%d", sessionID)
}

// OrderKey -> group key untuk satu order
func OrderKey(orderID uint) string {
	return fmt.Sprintf("order_%d", orderID)
}
