package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/utils"
)

func TestAddItemMergesIdenticalLines(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	menu := seedMenu(t, db, "Nasi Goreng", 25000, 10)

	first, err := cart.AddItem(session.ID, host.ID, AddItemInput{
		MenuID:         menu.ID,
		Quantity:       2,
		Customizations: map[string]string{"spice": "hot", "size": "large"},
	})
	assert.NoError(t, err)

	// Key order berbeda, isi sama -> merge ke baris yang sama
	second, err := cart.AddItem(session.ID, host.ID, AddItemInput{
		MenuID:         menu.ID,
		Quantity:       1,
		Customizations: map[string]string{"size": "large", "spice": "hot"},
	})
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.Quantity)

	// Customizations berbeda -> baris baru
	third, err := cart.AddItem(session.ID, host.ID, AddItemInput{
		MenuID:         menu.ID,
		Quantity:       1,
		Customizations: map[string]string{"spice": "mild"},
	})
	assert.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	state, err := cart.Snapshot(session.ID)
	assert.NoError(t, err)
	assert.Len(t, state.Items, 2)
	assert.Equal(t, 4, state.ItemsCount)
	assert.InDelta(t, 100000, state.TotalAmount, 0.001)
}

func TestAddItemRejectsUnavailableMenu(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	soldOut := seedMenu(t, db, "Sate Ayam", 30000, 0)

	_, err := cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: soldOut.ID, Quantity: 1})
	assert.Error(t, err)

	_, err = cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: 999, Quantity: 1})
	var notFound *utils.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	menu := seedMenu(t, db, "Es Teh", 8000, 5)
	_, err = cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: menu.ID, Quantity: 0})
	var validation *utils.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestCartOwnershipRules(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	budi := joinAs(t, participants, session.ShareCode, "Budi")
	citra := joinAs(t, participants, session.ShareCode, "Citra")
	menu := seedMenu(t, db, "Nasi Goreng", 25000, 10)

	item, err := cart.AddItem(session.ID, budi.ID, AddItemInput{MenuID: menu.ID, Quantity: 1})
	assert.NoError(t, err)

	// Member lain tidak boleh menyentuh baris milik Budi
	qty := 5
	_, err = cart.UpdateItem(session.ID, citra.ID, item.ID, UpdateItemInput{Quantity: &qty})
	var authz *utils.AuthorizationError
	assert.ErrorAs(t, err, &authz)
	err = cart.RemoveItem(session.ID, citra.ID, item.ID)
	assert.ErrorAs(t, err, &authz)

	// Owner boleh
	updated, err := cart.UpdateItem(session.ID, budi.ID, item.ID, UpdateItemInput{Quantity: &qty})
	assert.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)

	// Host juga boleh
	assert.NoError(t, cart.RemoveItem(session.ID, host.ID, item.ID))
}

func TestLockedSessionCartPolicy(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	budi := joinAs(t, participants, session.ShareCode, "Budi")
	menu := seedMenu(t, db, "Nasi Goreng", 25000, 10)

	item, err := cart.AddItem(session.ID, budi.ID, AddItemInput{MenuID: menu.ID, Quantity: 1})
	assert.NoError(t, err)

	_, err = sessions.Lock(session.ID, host.ID)
	assert.NoError(t, err)

	// Add baru saat locked: host-only
	_, err = cart.AddItem(session.ID, budi.ID, AddItemInput{MenuID: menu.ID, Quantity: 1})
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)
	_, err = cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: menu.ID, Quantity: 1})
	assert.NoError(t, err)

	// Default: member masih boleh mengubah baris miliknya
	qty := 3
	_, err = cart.UpdateItem(session.ID, budi.ID, item.ID, UpdateItemInput{Quantity: &qty})
	assert.NoError(t, err)

	// Kebijakan ketat: edit member ditolak saat locked
	cart.AllowLockedMemberEdits = false
	_, err = cart.UpdateItem(session.ID, budi.ID, item.ID, UpdateItemInput{Quantity: &qty})
	assert.ErrorAs(t, err, &conflict)
}

func TestSubmitConvertsCartToOrder(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	budi := joinAs(t, participants, session.ShareCode, "Budi")

	nasi := seedMenu(t, db, "Nasi Goreng", 25000, 10)
	sate := seedMenu(t, db, "Sate Ayam", 30000, 10)

	_, err := cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: nasi.ID, Quantity: 2})
	assert.NoError(t, err)
	_, err = cart.AddItem(session.ID, budi.ID, AddItemInput{MenuID: sate.ID, Quantity: 1})
	assert.NoError(t, err)

	// Submit pribadi hanya mengkonversi item milik submitter
	result, err := cart.Submit(session.ID, budi.ID, SubmitInput{})
	assert.NoError(t, err)
	assert.Len(t, result.Converted, 1)
	assert.Empty(t, result.Failed)
	assert.InDelta(t, 30000, result.Order.TotalAmount, 0.001)
	assert.Equal(t, models.OrderStatusPending, result.Order.Status)
	assert.Equal(t, session.ID, *result.Order.CollabSessionID)

	// Item milik host masih tertinggal di cart
	state, err := cart.Snapshot(session.ID)
	assert.NoError(t, err)
	assert.Len(t, state.Items, 1)
	assert.Equal(t, host.ID, state.Items[0].ParticipantID)

	// Submit seluruh meja: host-only
	_, err = cart.Submit(session.ID, budi.ID, SubmitInput{ForTable: true})
	var authz *utils.AuthorizationError
	assert.ErrorAs(t, err, &authz)

	result, err = cart.Submit(session.ID, host.ID, SubmitInput{ForTable: true})
	assert.NoError(t, err)
	assert.InDelta(t, 50000, result.Order.TotalAmount, 0.001)

	// Cart kosong setelahnya
	state, err = cart.Snapshot(session.ID)
	assert.NoError(t, err)
	assert.Empty(t, state.Items)

	_, err = cart.Submit(session.ID, host.ID, SubmitInput{})
	assert.Error(t, err)
}

func TestSubmitPartialFailure(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	nasi := seedMenu(t, db, "Nasi Goreng", 25000, 10)
	sate := seedMenu(t, db, "Sate Ayam", 30000, 10)

	_, err := cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: nasi.ID, Quantity: 1})
	assert.NoError(t, err)
	sateItem, err := cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: sate.ID, Quantity: 1})
	assert.NoError(t, err)

	// Sate habis antara add dan submit
	assert.NoError(t, db.Model(&models.Menu{}).Where("id = ?", sate.ID).Update("stock", 0).Error)

	result, err := cart.Submit(session.ID, host.ID, SubmitInput{})
	assert.NoError(t, err)
	assert.Len(t, result.Converted, 1)
	assert.Len(t, result.Failed, 1)
	assert.Equal(t, sateItem.ID, result.Failed[0].ItemID)
	assert.InDelta(t, 25000, result.Order.TotalAmount, 0.001)

	// Baris yang gagal tetap di cart untuk diperbaiki
	state, err := cart.Snapshot(session.ID)
	assert.NoError(t, err)
	assert.Len(t, state.Items, 1)
	assert.Equal(t, sate.ID, state.Items[0].MenuID)
}

func TestSubmitAtomicAbortsOnAnyFailure(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	nasi := seedMenu(t, db, "Nasi Goreng", 25000, 10)
	sate := seedMenu(t, db, "Sate Ayam", 30000, 0)

	_, err := cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: nasi.ID, Quantity: 1})
	assert.NoError(t, err)
	assert.NoError(t, db.Create(&models.SessionCartItem{
		SessionID:     session.ID,
		ParticipantID: host.ID,
		MenuID:        sate.ID,
		Quantity:      1,
	}).Error)

	_, err = cart.Submit(session.ID, host.ID, SubmitInput{Atomic: true})
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)

	// Tidak ada order yang terlanjur dibuat
	var orders int64
	assert.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(0), orders)
}

// Dua submit serentak dengan item disjoint: keduanya sukses, masing-masing
// order hanya berisi item milik submitter-nya, tidak ada baris hilang atau
// terduplikasi.
func TestConcurrentSubmitsConvertDisjointItems(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	budi := joinAs(t, participants, session.ShareCode, "Budi")

	nasi := seedMenu(t, db, "Nasi Goreng", 25000, 10)
	sate := seedMenu(t, db, "Sate Ayam", 30000, 10)

	_, err := cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: nasi.ID, Quantity: 2})
	assert.NoError(t, err)
	_, err = cart.AddItem(session.ID, budi.ID, AddItemInput{MenuID: sate.ID, Quantity: 1})
	assert.NoError(t, err)

	var (
		wg         sync.WaitGroup
		hostResult *SubmitResult
		budiResult *SubmitResult
		hostErr    error
		budiErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		hostResult, hostErr = cart.Submit(session.ID, host.ID, SubmitInput{})
	}()
	go func() {
		defer wg.Done()
		budiResult, budiErr = cart.Submit(session.ID, budi.ID, SubmitInput{})
	}()
	wg.Wait()

	assert.NoError(t, hostErr)
	assert.NoError(t, budiErr)
	assert.Len(t, hostResult.Converted, 1)
	assert.Len(t, budiResult.Converted, 1)
	assert.InDelta(t, 50000, hostResult.Order.TotalAmount, 0.001)
	assert.InDelta(t, 30000, budiResult.Order.TotalAmount, 0.001)

	// Setiap order hanya memuat item milik submitter-nya
	var hostItems []models.OrderItem
	assert.NoError(t, db.Where("order_id = ?", hostResult.Order.ID).Find(&hostItems).Error)
	assert.Len(t, hostItems, 1)
	assert.Equal(t, nasi.ID, hostItems[0].MenuID)

	var budiItems []models.OrderItem
	assert.NoError(t, db.Where("order_id = ?", budiResult.Order.ID).Find(&budiItems).Error)
	assert.Len(t, budiItems, 1)
	assert.Equal(t, sate.ID, budiItems[0].MenuID)

	// Tepat satu order item per baris cart, dan cart habis
	var totalOrderItems int64
	assert.NoError(t, db.Model(&models.OrderItem{}).Count(&totalOrderItems).Error)
	assert.Equal(t, int64(2), totalOrderItems)

	state, err := cart.Snapshot(session.ID)
	assert.NoError(t, err)
	assert.Empty(t, state.Items)
}

func TestSubmitStartsPaymentWhenSplitEnabled(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{SplitPaymentEnabled: true})
	menu := seedMenu(t, db, "Nasi Goreng", 25000, 10)

	_, err := cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: menu.ID, Quantity: 1})
	assert.NoError(t, err)

	_, err = cart.Submit(session.ID, host.ID, SubmitInput{})
	assert.NoError(t, err)

	reloaded, err := sessions.Get(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.SessionStatusPayment, reloaded.Status)

	// Cart beku setelah payment dimulai
	_, err = cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: menu.ID, Quantity: 1})
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestSnapshotUsesCurrentMenuPrice(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	cart := NewCartService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	menu := seedMenu(t, db, "Nasi Goreng", 25000, 10)

	_, err := cart.AddItem(session.ID, host.ID, AddItemInput{MenuID: menu.ID, Quantity: 2})
	assert.NoError(t, err)

	assert.NoError(t, db.Model(&models.Menu{}).Where("id = ?", menu.ID).Update("price", 27500).Error)

	state, err := cart.Snapshot(session.ID)
	assert.NoError(t, err)
	assert.InDelta(t, 55000, state.TotalAmount, 0.001)
}
