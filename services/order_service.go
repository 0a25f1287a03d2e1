package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/realtime"
	"github.com/Fingerliing/payquick-sub001/utils"
)

// orderStatusFlow -> pending -> in_progress -> ready -> served -> completed;
// cancelled dari status non-terminal
var orderStatusFlow = map[string][]string{
	models.OrderStatusPending:    {models.OrderStatusInProgress, models.OrderStatusCancelled},
	models.OrderStatusInProgress: {models.OrderStatusReady, models.OrderStatusCancelled},
	models.OrderStatusReady:      {models.OrderStatusServed, models.OrderStatusCancelled},
	models.OrderStatusServed:     {models.OrderStatusCompleted},
}

// OrderService -> status dapur/penyajian order; perubahan ke status terminal
// ikut memicu penyelesaian sesi kalau semua order sudah beres
type OrderService struct {
	DB  *gorm.DB
	Hub realtime.Publisher
}

func NewOrderService(db *gorm.DB, hub realtime.Publisher) *OrderService {
	return &OrderService{DB: db, Hub: hub}
}

func (s *OrderService) List(restaurantID uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.DB.Preload("OrderItems").
		Where("restaurant_id = ?", restaurantID).
		Order("created_at desc").
		Find(&orders).Error
	return orders, err
}

func (s *OrderService) ListBySession(sessionID uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.DB.Preload("OrderItems").
		Where("collab_session_id = ?", sessionID).
		Order("created_at asc").
		Find(&orders).Error
	return orders, err
}

func (s *OrderService) Get(orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.DB.Preload("OrderItems").Preload("OrderItems.Menu").First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("order %d not found", orderID)
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus -> transisi status order oleh staff
func (s *OrderService) UpdateStatus(orderID uint, target string) (*models.Order, error) {
	var (
		order       models.Order
		sessionDone *models.CollabSession
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := utils.WithRowLock(tx).First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("order %d not found", orderID)
			}
			return err
		}

		allowed := false
		for _, t := range orderStatusFlow[order.Status] {
			if t == target {
				allowed = true
				break
			}
		}
		if !allowed {
			return utils.NewConflictError("invalid order transition: current status is %s, requested %s",
				order.Status, target)
		}

		order.Status = target
		order.UpdatedAt = time.Now()
		if err := tx.Save(&order).Error; err != nil {
			return err
		}

		if order.Settled() {
			done, err := completeSessionIfSettled(tx, &order)
			if err != nil {
				return err
			}
			sessionDone = done
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(s.Hub, realtime.OrderKey(order.ID), realtime.Event{Type: realtime.EventOrderUpdate, Data: order})
	if order.CollabSessionID != nil {
		publish(s.Hub, realtime.SessionKey(*order.CollabSessionID), realtime.Event{
			Type: realtime.EventOrderUpdate,
			Data: order,
		})
	}
	if sessionDone != nil {
		publish(s.Hub, realtime.SessionKey(sessionDone.ID), realtime.Event{
			Type: realtime.EventSessionCompleted,
			Data: sessionDone,
		})
	}
	return &order, nil
}
