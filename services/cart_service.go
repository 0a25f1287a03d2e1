package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/realtime"
	"github.com/Fingerliing/payquick-sub001/utils"
)

// CartService memegang shared cart sebuah sesi. Semua mutasi dan Submit
// mengambil row lock sesi, jadi add-during-submit menunggu submit commit
// dan dua submit bersamaan tidak bisa saling menyisipkan read-then-delete.
type CartService struct {
	DB  *gorm.DB
	Hub realtime.Publisher

	// Notifier opsional: order baru tercatat sebagai notifikasi staff
	Notifier *Notifier

	// AllowLockedMemberEdits -> saat sesi locked, member masih boleh mengubah
	// baris miliknya yang sudah ada; add baru tetap host-only
	AllowLockedMemberEdits bool
}

func NewCartService(db *gorm.DB, hub realtime.Publisher) *CartService {
	return &CartService{DB: db, Hub: hub, AllowLockedMemberEdits: true}
}

type AddItemInput struct {
	MenuID              uint
	Quantity            int
	SpecialInstructions string
	Customizations      map[string]string
}

// CartLine -> satu baris snapshot cart
type CartLine struct {
	ItemID              uint    `json:"item_id"`
	ParticipantID       uint    `json:"participant_id"`
	ParticipantName     string  `json:"participant_name"`
	MenuID              uint    `json:"menu_id"`
	MenuName            string  `json:"menu_name"`
	Quantity            int     `json:"quantity"`
	UnitPrice           float64 `json:"unit_price"`
	TotalPrice          float64 `json:"total_price"`
	SpecialInstructions string  `json:"special_instructions,omitempty"`
	Customizations      string  `json:"customizations,omitempty"`
}

// CartState -> agregat cart yang dihitung transaksional
type CartState struct {
	SessionID   uint       `json:"session_id"`
	Items       []CartLine `json:"items"`
	TotalAmount float64    `json:"total_amount"`
	ItemsCount  int        `json:"items_count"`
}

// AddItem -> tambah atau merge baris identik (menu + customizations) milik
// participant yang sama
func (s *CartService) AddItem(sessionID, participantID uint, in AddItemInput) (*models.SessionCartItem, error) {
	if in.Quantity < 1 {
		return nil, utils.NewValidationError("quantity must be at least 1, got %d", in.Quantity)
	}
	customizations, err := canonicalCustomizations(in.Customizations)
	if err != nil {
		return nil, err
	}

	var item models.SessionCartItem
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		session, participant, err := s.lockCart(tx, sessionID, participantID)
		if err != nil {
			return err
		}
		if session.Status == models.SessionStatusLocked && participant.Role != models.ParticipantRoleHost {
			return utils.NewConflictError("session is locked, only the host can add new items")
		}

		var menu models.Menu
		if err := tx.First(&menu, in.MenuID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("menu item %d not found", in.MenuID)
			}
			return err
		}
		if !menu.Orderable() {
			return utils.NewValidationError("menu item %q is not available", menu.Name)
		}

		now := time.Now()

		// Merge dengan baris identik yang sudah ada
		var existing models.SessionCartItem
		err = tx.Where("session_id = ? AND participant_id = ? AND menu_id = ? AND customizations = ?",
			sessionID, participantID, in.MenuID, customizations).
			First(&existing).Error
		if err == nil {
			existing.Quantity += in.Quantity
			if in.SpecialInstructions != "" {
				existing.SpecialInstructions = in.SpecialInstructions
			}
			existing.UpdatedAt = now
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			item = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		item = models.SessionCartItem{
			SessionID:           sessionID,
			ParticipantID:       participantID,
			MenuID:              in.MenuID,
			Quantity:            in.Quantity,
			SpecialInstructions: in.SpecialInstructions,
			Customizations:      customizations,
			AddedAt:             now,
			UpdatedAt:           now,
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		return nil, err
	}

	s.publishCartUpdate(sessionID)
	return &item, nil
}

type UpdateItemInput struct {
	Quantity            *int
	SpecialInstructions *string
	Customizations      map[string]string
}

// UpdateItem -> owner atau host mengubah satu baris cart
func (s *CartService) UpdateItem(sessionID, actorID, itemID uint, in UpdateItemInput) (*models.SessionCartItem, error) {
	if in.Quantity != nil && *in.Quantity < 1 {
		return nil, utils.NewValidationError("quantity must be at least 1, got %d", *in.Quantity)
	}

	var item models.SessionCartItem
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, actor, err := s.lockCart(tx, sessionID, actorID)
		if err != nil {
			return err
		}
		if err := s.findItem(tx, sessionID, itemID, &item); err != nil {
			return err
		}
		if item.ParticipantID != actorID && actor.Role != models.ParticipantRoleHost {
			return utils.NewAuthorizationError("only the item owner or the host can modify this item")
		}
		if err := s.checkLockedEdit(session, actor); err != nil {
			return err
		}

		if in.Quantity != nil {
			item.Quantity = *in.Quantity
		}
		if in.SpecialInstructions != nil {
			item.SpecialInstructions = *in.SpecialInstructions
		}
		if in.Customizations != nil {
			customizations, err := canonicalCustomizations(in.Customizations)
			if err != nil {
				return err
			}
			item.Customizations = customizations
		}
		item.UpdatedAt = time.Now()
		return tx.Save(&item).Error
	})
	if err != nil {
		return nil, err
	}

	s.publishCartUpdate(sessionID)
	return &item, nil
}

// RemoveItem -> owner atau host menghapus satu baris cart
func (s *CartService) RemoveItem(sessionID, actorID, itemID uint) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, actor, err := s.lockCart(tx, sessionID, actorID)
		if err != nil {
			return err
		}
		var item models.SessionCartItem
		if err := s.findItem(tx, sessionID, itemID, &item); err != nil {
			return err
		}
		if item.ParticipantID != actorID && actor.Role != models.ParticipantRoleHost {
			return utils.NewAuthorizationError("only the item owner or the host can remove this item")
		}
		if err := s.checkLockedEdit(session, actor); err != nil {
			return err
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		return err
	}

	s.publishCartUpdate(sessionID)
	return nil
}

// Snapshot -> total dan item count dihitung dalam satu transaksi terhadap
// item set live supaya tidak membaca cart yang sedang berubah separuh
func (s *CartService) Snapshot(sessionID uint) (*CartState, error) {
	var state *CartState
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var session models.CollabSession
		if err := tx.First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("session %d not found", sessionID)
			}
			return err
		}

		var err error
		state, err = s.snapshotLocked(tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *CartService) snapshotLocked(tx *gorm.DB, sessionID uint) (*CartState, error) {
	var items []models.SessionCartItem
	if err := tx.Preload("Menu").Preload("Participant").
		Where("session_id = ?", sessionID).
		Order("added_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}

	state := &CartState{SessionID: sessionID, Items: make([]CartLine, 0, len(items))}
	for _, it := range items {
		line := CartLine{
			ItemID:              it.ID,
			ParticipantID:       it.ParticipantID,
			ParticipantName:     it.Participant.DisplayName,
			MenuID:              it.MenuID,
			MenuName:            it.Menu.Name,
			Quantity:            it.Quantity,
			UnitPrice:           it.Menu.Price,
			TotalPrice:          float64(it.Quantity) * it.Menu.Price,
			SpecialInstructions: it.SpecialInstructions,
			Customizations:      it.Customizations,
		}
		state.Items = append(state.Items, line)
		state.TotalAmount += line.TotalPrice
		state.ItemsCount += it.Quantity
	}
	return state, nil
}

type SubmitInput struct {
	// ItemIDs kosong berarti semua item milik participant
	ItemIDs []uint
	// ForTable -> host submit seluruh cart meja
	ForTable bool
	// Atomic -> satu item gagal menggagalkan seluruh submit
	Atomic bool
}

type SubmitFailure struct {
	ItemID uint   `json:"item_id"`
	MenuID uint   `json:"menu_id"`
	Reason string `json:"reason"`
}

type SubmitResult struct {
	Order     *models.Order   `json:"order"`
	Converted []uint          `json:"converted_item_ids"`
	Failed    []SubmitFailure `json:"failed_items,omitempty"`
}

// Submit -> konversi cart item jadi Order + OrderItems pada harga menu saat
// ini, lalu hapus baris cart yang terkonversi. Row lock sesi menyerialkan
// submit sehingga dua submit paralel tidak bisa double-charge atau drop item.
func (s *CartService) Submit(sessionID, participantID uint, in SubmitInput) (*SubmitResult, error) {
	var (
		result         SubmitResult
		paymentStarted bool
		orderID        uint
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, participant, err := s.lockCart(tx, sessionID, participantID)
		if err != nil {
			return err
		}
		if in.ForTable && participant.Role != models.ParticipantRoleHost {
			return utils.NewAuthorizationError("only the host can submit the whole table cart")
		}

		items, err := s.selectSubmitItems(tx, sessionID, participantID, in)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return utils.NewValidationError("cart is empty, nothing to submit")
		}

		// Cek ketersediaan per item; laporan partial failure, bukan abort,
		// kecuali caller minta atomic
		var (
			convertible []models.SessionCartItem
			menus       = make(map[uint]models.Menu)
		)
		for _, it := range items {
			var menu models.Menu
			err := tx.First(&menu, it.MenuID).Error
			reason := ""
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				reason = "menu item no longer exists"
			case err != nil:
				return err
			case !menu.Orderable():
				reason = fmt.Sprintf("menu item %q is no longer available", menu.Name)
			}

			if reason != "" {
				if in.Atomic {
					return utils.NewConflictError("atomic submit aborted: %s", reason)
				}
				result.Failed = append(result.Failed, SubmitFailure{ItemID: it.ID, MenuID: it.MenuID, Reason: reason})
				continue
			}
			menus[menu.ID] = menu
			convertible = append(convertible, it)
		}
		if len(convertible) == 0 {
			return utils.NewValidationError("no available items to submit (%d failed)", len(result.Failed))
		}

		now := time.Now()
		order := models.Order{
			RestaurantID:    session.RestaurantID,
			CollabSessionID: &session.ID,
			ParticipantID:   &participant.ID,
			OrderNumber:     newOrderNumber(now),
			TableNumber:     session.TableNumber,
			Status:          models.OrderStatusPending,
			PaymentStatus:   models.PaymentStatusUnpaid,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		var total float64
		for _, it := range convertible {
			menu := menus[it.MenuID]
			orderItem := models.OrderItem{
				OrderID:             order.ID,
				MenuID:              it.MenuID,
				Quantity:            it.Quantity,
				Price:               menu.Price,
				SpecialInstructions: it.SpecialInstructions,
				Customizations:      it.Customizations,
				Status:              "pending",
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if err := tx.Create(&orderItem).Error; err != nil {
				return err
			}
			total += float64(it.Quantity) * menu.Price

			if err := tx.Delete(&models.SessionCartItem{}, it.ID).Error; err != nil {
				return err
			}
			result.Converted = append(result.Converted, it.ID)
		}

		order.TotalAmount = total
		if err := tx.Save(&order).Error; err != nil {
			return err
		}
		result.Order = &order
		orderID = order.ID

		if session.SplitPaymentEnabled && session.Status != models.SessionStatusPayment {
			if err := startPayment(tx, session); err != nil {
				return err
			}
			paymentStarted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sessionKey := realtime.SessionKey(sessionID)
	publish(s.Hub, sessionKey, realtime.Event{Type: realtime.EventOrderSubmitted, Data: result.Order})
	publish(s.Hub, realtime.OrderKey(orderID), realtime.Event{Type: realtime.EventOrderUpdate, Data: result.Order})
	if paymentStarted {
		publish(s.Hub, sessionKey, realtime.Event{Type: realtime.EventSessionPaymentStarted, Data: result.Order})
	}
	s.publishCartUpdate(sessionID)

	if s.Notifier != nil {
		message := fmt.Sprintf("New order %s from table %s (%d items)",
			result.Order.OrderNumber, result.Order.TableNumber, len(result.Converted))
		if err := s.Notifier.NotifyStaff(nil, "New order", message); err != nil {
			utils.ErrorLogger.Printf("failed to record order notification: %v", err)
		}
	}

	return &result, nil
}

func (s *CartService) selectSubmitItems(tx *gorm.DB, sessionID, participantID uint, in SubmitInput) ([]models.SessionCartItem, error) {
	q := tx.Where("session_id = ?", sessionID).Order("added_at asc")
	if !in.ForTable {
		q = q.Where("participant_id = ?", participantID)
	}
	if len(in.ItemIDs) > 0 {
		q = q.Where("id IN ?", in.ItemIDs)
	}

	var items []models.SessionCartItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	if len(in.ItemIDs) > 0 && len(items) != len(in.ItemIDs) {
		return nil, utils.NewNotFoundError("some requested cart items were not found in this cart selection")
	}
	return items, nil
}

// lockCart -> lock sesi + validasi cart terbuka + participant aktif
func (s *CartService) lockCart(tx *gorm.DB, sessionID, participantID uint) (*models.CollabSession, *models.SessionParticipant, error) {
	var session models.CollabSession
	if err := utils.WithRowLock(tx).First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, utils.NewNotFoundError("session %d not found", sessionID)
		}
		return nil, nil, err
	}
	if session.IsArchived {
		return nil, nil, utils.NewConflictError("session %d is archived", sessionID)
	}
	if !session.CartOpen() {
		return nil, nil, utils.NewConflictError("cart is frozen: session status is %s", session.Status)
	}

	var participant models.SessionParticipant
	if err := tx.First(&participant, participantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, utils.NewNotFoundError("participant %d not found", participantID)
		}
		return nil, nil, err
	}
	if participant.SessionID != sessionID {
		return nil, nil, utils.NewNotFoundError("participant %d does not belong to session %d", participantID, sessionID)
	}
	if participant.Status != models.ParticipantStatusActive {
		return nil, nil, utils.NewConflictError("participant %q is %s, only active participants can use the cart",
			participant.DisplayName, participant.Status)
	}
	return &session, &participant, nil
}

// checkLockedEdit -> kebijakan edit saat sesi locked: host selalu boleh,
// member hanya kalau AllowLockedMemberEdits menyala
func (s *CartService) checkLockedEdit(session *models.CollabSession, actor *models.SessionParticipant) error {
	if session.Status != models.SessionStatusLocked {
		return nil
	}
	if actor.Role == models.ParticipantRoleHost || s.AllowLockedMemberEdits {
		return nil
	}
	return utils.NewConflictError("session is locked, cart edits are host-only")
}

func (s *CartService) findItem(tx *gorm.DB, sessionID, itemID uint, out *models.SessionCartItem) error {
	if err := tx.First(out, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError("cart item %d not found", itemID)
		}
		return err
	}
	if out.SessionID != sessionID {
		return utils.NewNotFoundError("cart item %d does not belong to session %d", itemID, sessionID)
	}
	return nil
}

func (s *CartService) publishCartUpdate(sessionID uint) {
	if s.Hub == nil {
		return
	}
	state, err := s.Snapshot(sessionID)
	if err != nil {
		if utils.ErrorLogger != nil {
			utils.ErrorLogger.Printf("cart: error building snapshot for broadcast: %v", err)
		}
		return
	}
	publish(s.Hub, realtime.SessionKey(sessionID), realtime.Event{
		Type: realtime.EventCartUpdated,
		Data: state,
	})
}

// canonicalCustomizations -> JSON dengan key terurut (encoding/json
// mengurutkan key map) supaya baris identik bisa dibandingkan sebagai string
func canonicalCustomizations(c map[string]string) (string, error) {
	if len(c) == 0 {
		return "", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", utils.NewValidationError("invalid customizations: %v", err)
	}
	return string(data), nil
}

func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"),
		strings.ToUpper(uuid.NewString()[:8]))
}
