package services

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/realtime"
	"github.com/Fingerliing/payquick-sub001/utils"
)

// amountTolerance -> toleransi pembulatan +/- 0.01 unit mata uang
const amountTolerance = 0.01

// SplitPaymentService membagi total order jadi porsi-porsi dan melacak
// settlement-nya. Eksekusi charge milik payment provider; di sini hanya
// bookkeeping payment_intent_id/method/paid_at.
type SplitPaymentService struct {
	DB  *gorm.DB
	Hub realtime.Publisher
}

func NewSplitPaymentService(db *gorm.DB, hub realtime.Publisher) *SplitPaymentService {
	return &SplitPaymentService{DB: db, Hub: hub}
}

type PortionInput struct {
	Name   string
	Amount float64
}

// CreateSplit -> buat pembagian untuk satu order. Equal split dibagi rata ke
// sen dengan sisa pembulatan ke porsi pertama; custom divalidasi +/- 0.01
// terhadap total+tip. Ditolak kalau order sudah punya pembayaran berjalan.
func (s *SplitPaymentService) CreateSplit(orderID uint, splitType string, tipAmount float64, portions []PortionInput) (*models.SplitPaymentSession, error) {
	splitType = strings.ToLower(strings.TrimSpace(splitType))
	if splitType != models.SplitTypeEqual && splitType != models.SplitTypeCustom {
		return nil, utils.NewValidationError("split_type must be equal or custom, got %q", splitType)
	}
	if tipAmount < 0 {
		return nil, utils.NewValidationError("tip_amount cannot be negative")
	}
	if len(portions) == 0 {
		return nil, utils.NewValidationError("at least one portion is required")
	}
	if len(portions) > models.MaxParticipantsCeiling {
		return nil, utils.NewValidationError("at most %d portions are allowed, got %d",
			models.MaxParticipantsCeiling, len(portions))
	}
	for i, p := range portions {
		if strings.TrimSpace(p.Name) == "" {
			return nil, utils.NewValidationError("portion %d has no name", i+1)
		}
	}

	var split models.SplitPaymentSession
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := utils.WithRowLock(tx).First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("order %d not found", orderID)
			}
			return err
		}
		if order.PaymentStatus != models.PaymentStatusUnpaid {
			return utils.NewConflictError("order %s is already %s, cannot create a split",
				order.OrderNumber, order.PaymentStatus)
		}

		var existing int64
		if err := tx.Model(&models.SplitPaymentSession{}).
			Where("order_id = ?", orderID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return utils.NewConflictError("order %s already has a split payment session", order.OrderNumber)
		}

		total := order.TotalAmount + tipAmount
		amounts, err := portionAmounts(splitType, total, portions)
		if err != nil {
			return err
		}

		now := time.Now()
		split = models.SplitPaymentSession{
			OrderID:     orderID,
			SplitType:   splitType,
			TotalAmount: order.TotalAmount,
			TipAmount:   tipAmount,
			Status:      models.SplitStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&split).Error; err != nil {
			return err
		}

		for i, p := range portions {
			portion := models.SplitPaymentPortion{
				SplitSessionID: split.ID,
				Name:           strings.TrimSpace(p.Name),
				Amount:         amounts[i],
				Status:         models.PortionStatusPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.Create(&portion).Error; err != nil {
				return err
			}
			split.Portions = append(split.Portions, portion)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishSplitEvent(realtime.EventSplitCreated, &split)
	return &split, nil
}

// portionAmounts -> hitung nominal per porsi dalam sen supaya jumlahnya
// persis total; porsi pertama menyerap sisa pembulatan
func portionAmounts(splitType string, total float64, portions []PortionInput) ([]float64, error) {
	n := len(portions)
	amounts := make([]float64, n)

	if splitType == models.SplitTypeEqual {
		totalCents := int64(math.Round(total * 100))
		// Setiap porsi minimal satu sen
		if totalCents < int64(n) {
			return nil, utils.NewValidationError("order total %.2f is too small to split across %d portions", total, n)
		}
		base := totalCents / int64(n)
		remainder := totalCents % int64(n)
		for i := range amounts {
			cents := base
			if i == 0 {
				cents += remainder
			}
			amounts[i] = float64(cents) / 100
		}
		return amounts, nil
	}

	var sum float64
	for i, p := range portions {
		if p.Amount <= 0 {
			return nil, utils.NewValidationError("portion %q must have a positive amount", p.Name)
		}
		if p.Amount > total+amountTolerance {
			return nil, utils.NewValidationError("portion %q (%.2f) exceeds the order total %.2f", p.Name, p.Amount, total)
		}
		amounts[i] = math.Round(p.Amount*100) / 100
		sum += amounts[i]
	}
	if math.Abs(sum-total) > amountTolerance {
		return nil, utils.NewValidationError("portion amounts sum to %.2f, expected %.2f (order total + tip)", sum, total)
	}
	return amounts, nil
}

// PayPortion -> tandai porsi in-flight menunggu konfirmasi provider.
// Bukan state terminal; konflik kalau porsi sudah dibayar.
func (s *SplitPaymentService) PayPortion(portionID uuid.UUID, method string) (*models.SplitPaymentPortion, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, utils.NewValidationError("payment_method is required")
	}

	var portion models.SplitPaymentPortion
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.lockPortion(tx, portionID, &portion); err != nil {
			return err
		}
		if portion.IsPaid {
			return utils.NewConflictError("portion %q is already paid", portion.Name)
		}

		portion.Status = models.PortionStatusProcessing
		portion.PaymentMethod = &method
		portion.UpdatedAt = time.Now()
		return tx.Save(&portion).Error
	})
	if err != nil {
		return nil, err
	}
	return &portion, nil
}

// ConfirmPortionPayment -> terminal. Konfirmasi ulang dengan intent id yang
// sama adalah no-op sukses (provider kirim webhook at-least-once); intent id
// berbeda pada porsi terbayar tetap konflik.
func (s *SplitPaymentService) ConfirmPortionPayment(portionID uuid.UUID, paymentIntentID, method string) (*models.SplitPaymentPortion, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, utils.NewValidationError("payment_intent_id is required")
	}

	var (
		portion        models.SplitPaymentPortion
		split          models.SplitPaymentSession
		splitCompleted bool
		orderPaid      *models.Order
		sessionDone    *models.CollabSession
		alreadyPaid    bool
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.lockPortion(tx, portionID, &portion); err != nil {
			return err
		}

		if portion.IsPaid {
			if portion.PaymentIntentID != nil && *portion.PaymentIntentID == paymentIntentID {
				// Duplicate provider confirmation: no-op success
				alreadyPaid = true
				return nil
			}
			return utils.NewConflictError("portion %q is already paid with a different payment intent", portion.Name)
		}

		now := time.Now()
		portion.IsPaid = true
		portion.Status = models.PortionStatusPaid
		portion.PaymentIntentID = &paymentIntentID
		if method = strings.TrimSpace(method); method != "" {
			portion.PaymentMethod = &method
		}
		portion.PaidAt = &now
		portion.UpdatedAt = now
		if err := tx.Save(&portion).Error; err != nil {
			return err
		}

		if err := tx.First(&split, "id = ?", portion.SplitSessionID).Error; err != nil {
			return err
		}

		var unpaid int64
		if err := tx.Model(&models.SplitPaymentPortion{}).
			Where("split_session_id = ? AND is_paid = ?", split.ID, false).
			Count(&unpaid).Error; err != nil {
			return err
		}

		var order models.Order
		if err := utils.WithRowLock(tx).First(&order, split.OrderID).Error; err != nil {
			return err
		}

		if unpaid == 0 {
			split.Status = models.SplitStatusCompleted
			split.UpdatedAt = now
			if err := tx.Save(&split).Error; err != nil {
				return err
			}
			splitCompleted = true

			order.PaymentStatus = models.PaymentStatusPaid
			order.UpdatedAt = now
			if err := tx.Save(&order).Error; err != nil {
				return err
			}
			orderPaid = &order

			done, err := completeSessionIfSettled(tx, &order)
			if err != nil {
				return err
			}
			sessionDone = done
		} else if order.PaymentStatus == models.PaymentStatusUnpaid {
			order.PaymentStatus = models.PaymentStatusPartialPaid
			order.UpdatedAt = now
			if err := tx.Save(&order).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alreadyPaid {
		return &portion, nil
	}

	orderKey := realtime.OrderKey(split.OrderID)
	publish(s.Hub, orderKey, realtime.Event{Type: realtime.EventSplitPortionPaid, Data: portion})
	if splitCompleted {
		publish(s.Hub, orderKey, realtime.Event{Type: realtime.EventSplitCompleted, Data: split})
	}
	if orderPaid != nil {
		publish(s.Hub, orderKey, realtime.Event{Type: realtime.EventOrderUpdate, Data: orderPaid})
		if orderPaid.CollabSessionID != nil {
			publish(s.Hub, realtime.SessionKey(*orderPaid.CollabSessionID), realtime.Event{
				Type: realtime.EventSplitCompleted,
				Data: split,
			})
		}
	}
	if sessionDone != nil {
		publish(s.Hub, realtime.SessionKey(sessionDone.ID), realtime.Event{
			Type: realtime.EventSessionCompleted,
			Data: sessionDone,
		})
	}

	return &portion, nil
}

// SplitStatus -> progress dihitung live dari portion set, tidak pernah di-cache
type SplitStatus struct {
	SplitSessionID     uuid.UUID `json:"split_session_id"`
	OrderID            uint      `json:"order_id"`
	IsCompleted        bool      `json:"is_completed"`
	TotalAmount        float64   `json:"total_amount"`
	TipAmount          float64   `json:"tip_amount"`
	TotalPaid          float64   `json:"total_paid"`
	RemainingAmount    float64   `json:"remaining_amount"`
	RemainingPortions  int       `json:"remaining_portions"`
	ProgressPercentage float64   `json:"progress_percentage"`
}

// Status -> ringkasan settlement untuk satu order
func (s *SplitPaymentService) Status(orderID uint) (*SplitStatus, error) {
	var split models.SplitPaymentSession
	err := s.DB.Preload("Portions").Where("order_id = ?", orderID).First(&split).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("order %d has no split payment session", orderID)
		}
		return nil, err
	}

	status := &SplitStatus{
		SplitSessionID: split.ID,
		OrderID:        split.OrderID,
		TotalAmount:    split.TotalAmount,
		TipAmount:      split.TipAmount,
	}

	var grand float64
	for _, p := range split.Portions {
		grand += p.Amount
		if p.IsPaid {
			status.TotalPaid += p.Amount
		} else {
			status.RemainingPortions++
		}
	}
	status.RemainingAmount = math.Round((grand-status.TotalPaid)*100) / 100
	status.TotalPaid = math.Round(status.TotalPaid*100) / 100
	status.IsCompleted = status.RemainingPortions == 0
	if grand > 0 {
		status.ProgressPercentage = math.Round(status.TotalPaid/grand*10000) / 100
	}
	return status, nil
}

// GetByOrder -> split session beserta porsinya
func (s *SplitPaymentService) GetByOrder(orderID uint) (*models.SplitPaymentSession, error) {
	var split models.SplitPaymentSession
	err := s.DB.Preload("Portions").Where("order_id = ?", orderID).First(&split).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("order %d has no split payment session", orderID)
		}
		return nil, err
	}
	return &split, nil
}

func (s *SplitPaymentService) lockPortion(tx *gorm.DB, portionID uuid.UUID, out *models.SplitPaymentPortion) error {
	err := utils.WithRowLock(tx).First(out, "id = ?", portionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewNotFoundError("split portion %s not found", portionID)
	}
	return err
}

// completeSessionIfSettled -> sesi selesai otomatis saat semua order-nya
// terbayar/terselesaikan
func completeSessionIfSettled(tx *gorm.DB, order *models.Order) (*models.CollabSession, error) {
	if order.CollabSessionID == nil {
		return nil, nil
	}

	var session models.CollabSession
	if err := utils.WithRowLock(tx).First(&session, *order.CollabSessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if session.IsTerminal() || session.IsArchived {
		return nil, nil
	}

	var open int64
	if err := tx.Model(&models.Order{}).
		Where("collab_session_id = ?", session.ID).
		Where("payment_status <> ? AND status NOT IN ?",
			models.PaymentStatusPaid,
			[]string{models.OrderStatusServed, models.OrderStatusCompleted, models.OrderStatusCancelled}).
		Count(&open).Error; err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, nil
	}

	if !session.CanTransitionTo(models.SessionStatusCompleted) {
		return nil, nil
	}
	now := time.Now()
	session.Status = models.SessionStatusCompleted
	session.CompletedAt = &now
	session.UpdatedAt = now
	if err := tx.Save(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SplitPaymentService) publishSplitEvent(eventType string, split *models.SplitPaymentSession) {
	if s.Hub == nil {
		return
	}
	publish(s.Hub, realtime.OrderKey(split.OrderID), realtime.Event{Type: eventType, Data: split})

	var order models.Order
	if err := s.DB.First(&order, split.OrderID).Error; err == nil && order.CollabSessionID != nil {
		publish(s.Hub, realtime.SessionKey(*order.CollabSessionID), realtime.Event{Type: eventType, Data: split})
	}
}
