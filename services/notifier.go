package services

import (
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/utils"
)

// PushSender -> kolaborator provider push eksternal (FCM, APNs, dsb).
// Implementasi nyata disuntik dari main; nil berarti tanpa push.
type PushSender interface {
	Send(userID uint, title, message string) error
}

// Notifier mencatat notifikasi staff dan meneruskannya ke provider.
// Kegagalan provider adalah ProviderError: dicatat, tidak pernah membatalkan
// transisi state yang memicunya.
type Notifier struct {
	DB     *gorm.DB
	Sender PushSender
}

func NewNotifier(db *gorm.DB, sender PushSender) *Notifier {
	return &Notifier{DB: db, Sender: sender}
}

// NotifyStaff -> simpan notifikasi lalu push best-effort
func (n *Notifier) NotifyStaff(userID *uint, title, message string) error {
	notif := models.Notification{
		UserID:  userID,
		Message: message,
	}
	if title != "" {
		notif.Title = &title
	}
	if err := n.DB.Create(&notif).Error; err != nil {
		return err
	}

	if n.Sender != nil && userID != nil {
		if err := n.Sender.Send(*userID, title, message); err != nil {
			providerErr := utils.NewProviderError("push notification failed", err)
			if utils.ErrorLogger != nil {
				utils.ErrorLogger.Printf("notifier: %v", providerErr)
			}
		}
	}
	return nil
}
