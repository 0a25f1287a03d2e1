package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/utils"
)

func seedOrder(t *testing.T, db *gorm.DB, sessionID *uint, total float64) models.Order {
	t.Helper()

	order := models.Order{
		RestaurantID:    1,
		CollabSessionID: sessionID,
		OrderNumber:     fmt.Sprintf("ORD-TEST-%.0f", total),
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusUnpaid,
		TotalAmount:     total,
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	return order
}

func TestCreateEqualSplitBalancesToTheCent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSplitPaymentService(db, nil)

	// 100.00 / 3 = 33.33 dengan sisa 0.01 ke porsi pertama
	order := seedOrder(t, db, nil, 100.00)
	split, err := svc.CreateSplit(order.ID, models.SplitTypeEqual, 0, []PortionInput{
		{Name: "Andi"}, {Name: "Budi"}, {Name: "Citra"},
	})
	assert.NoError(t, err)
	assert.Len(t, split.Portions, 3)
	assert.InDelta(t, 33.34, split.Portions[0].Amount, 0.001)
	assert.InDelta(t, 33.33, split.Portions[1].Amount, 0.001)
	assert.InDelta(t, 33.33, split.Portions[2].Amount, 0.001)

	var sum float64
	for _, p := range split.Portions {
		sum += p.Amount
	}
	assert.InDelta(t, 100.00, sum, 0.001)
}

func TestCreateEqualSplitIncludesTip(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSplitPaymentService(db, nil)

	order := seedOrder(t, db, nil, 90.00)
	split, err := svc.CreateSplit(order.ID, models.SplitTypeEqual, 10.00, []PortionInput{
		{Name: "Andi"}, {Name: "Budi"},
	})
	assert.NoError(t, err)
	assert.InDelta(t, 50.00, split.Portions[0].Amount, 0.001)
	assert.InDelta(t, 50.00, split.Portions[1].Amount, 0.001)
}

// Total lebih kecil dari jumlah porsi akan mencetak porsi bernilai 0; tolak
// supaya setiap porsi tetap > 0
func TestCreateEqualSplitRejectsTotalSmallerThanPortions(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSplitPaymentService(db, nil)

	order := seedOrder(t, db, nil, 0.03)
	_, err := svc.CreateSplit(order.ID, models.SplitTypeEqual, 0, []PortionInput{
		{Name: "Andi"}, {Name: "Budi"}, {Name: "Citra"}, {Name: "Dewi"},
	})
	var validation *utils.ValidationError
	assert.ErrorAs(t, err, &validation)

	// Tidak ada split maupun porsi yang terlanjur tersimpan
	var splits int64
	assert.NoError(t, db.Model(&models.SplitPaymentSession{}).Count(&splits).Error)
	assert.Equal(t, int64(0), splits)

	// Tiga sen untuk tiga orang masih sah: satu sen per porsi
	split, err := svc.CreateSplit(order.ID, models.SplitTypeEqual, 0, []PortionInput{
		{Name: "Andi"}, {Name: "Budi"}, {Name: "Citra"},
	})
	assert.NoError(t, err)
	for _, p := range split.Portions {
		assert.InDelta(t, 0.01, p.Amount, 0.001)
	}
}

func TestCreateCustomSplitValidatesSum(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSplitPaymentService(db, nil)
	order := seedOrder(t, db, nil, 100.00)

	// Jumlah meleset lebih dari toleransi 0.01
	_, err := svc.CreateSplit(order.ID, models.SplitTypeCustom, 0, []PortionInput{
		{Name: "Andi", Amount: 60},
		{Name: "Budi", Amount: 30},
	})
	var validation *utils.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = svc.CreateSplit(order.ID, models.SplitTypeCustom, 0, []PortionInput{
		{Name: "Andi", Amount: -5},
		{Name: "Budi", Amount: 105},
	})
	assert.ErrorAs(t, err, &validation)

	split, err := svc.CreateSplit(order.ID, models.SplitTypeCustom, 0, []PortionInput{
		{Name: "Andi", Amount: 60.50},
		{Name: "Budi", Amount: 39.50},
	})
	assert.NoError(t, err)
	assert.Equal(t, models.SplitStatusPending, split.Status)
}

func TestCreateSplitConflicts(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSplitPaymentService(db, nil)
	order := seedOrder(t, db, nil, 100.00)

	_, err := svc.CreateSplit(order.ID, models.SplitTypeEqual, 0, []PortionInput{{Name: "Andi"}})
	assert.NoError(t, err)

	// Order sudah punya split
	_, err = svc.CreateSplit(order.ID, models.SplitTypeEqual, 0, []PortionInput{{Name: "Budi"}})
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)

	// Order yang sudah (sebagian) terbayar tidak bisa di-split
	paid := seedOrder(t, db, nil, 50.00)
	assert.NoError(t, db.Model(&paid).Update("payment_status", models.PaymentStatusPartialPaid).Error)
	_, err = svc.CreateSplit(paid.ID, models.SplitTypeEqual, 0, []PortionInput{{Name: "Andi"}})
	assert.ErrorAs(t, err, &conflict)
}

func TestConfirmPortionPaymentRollsUp(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	svc := NewSplitPaymentService(db, nil)

	session, _ := seedSession(t, sessions, CreateSessionInput{SplitPaymentEnabled: true})
	assert.NoError(t, db.Model(&models.CollabSession{}).
		Where("id = ?", session.ID).
		Update("status", models.SessionStatusPayment).Error)

	order := seedOrder(t, db, &session.ID, 100.00)
	assert.NoError(t, db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("status", models.OrderStatusServed).Error)

	split, err := svc.CreateSplit(order.ID, models.SplitTypeEqual, 0, []PortionInput{
		{Name: "Andi"}, {Name: "Budi"},
	})
	assert.NoError(t, err)

	// Porsi pertama -> order partial_paid
	first, err := svc.ConfirmPortionPayment(split.Portions[0].ID, "pi_001", "card")
	assert.NoError(t, err)
	assert.True(t, first.IsPaid)
	assert.Equal(t, models.PortionStatusPaid, first.Status)

	var reloadedOrder models.Order
	assert.NoError(t, db.First(&reloadedOrder, order.ID).Error)
	assert.Equal(t, models.PaymentStatusPartialPaid, reloadedOrder.PaymentStatus)

	status, err := svc.Status(order.ID)
	assert.NoError(t, err)
	assert.False(t, status.IsCompleted)
	assert.Equal(t, 1, status.RemainingPortions)
	assert.InDelta(t, 50.00, status.TotalPaid, 0.001)

	// Porsi terakhir -> split completed, order paid, sesi selesai
	_, err = svc.ConfirmPortionPayment(split.Portions[1].ID, "pi_002", "card")
	assert.NoError(t, err)

	assert.NoError(t, db.First(&reloadedOrder, order.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, reloadedOrder.PaymentStatus)

	var reloadedSplit models.SplitPaymentSession
	assert.NoError(t, db.First(&reloadedSplit, "id = ?", split.ID).Error)
	assert.Equal(t, models.SplitStatusCompleted, reloadedSplit.Status)

	var reloadedSession models.CollabSession
	assert.NoError(t, db.First(&reloadedSession, session.ID).Error)
	assert.Equal(t, models.SessionStatusCompleted, reloadedSession.Status)
}

func TestConfirmPortionPaymentIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSplitPaymentService(db, nil)

	order := seedOrder(t, db, nil, 100.00)
	split, err := svc.CreateSplit(order.ID, models.SplitTypeEqual, 0, []PortionInput{
		{Name: "Andi"}, {Name: "Budi"},
	})
	assert.NoError(t, err)
	portionID := split.Portions[0].ID

	_, err = svc.ConfirmPortionPayment(portionID, "pi_001", "card")
	assert.NoError(t, err)

	// Webhook duplikat dengan intent yang sama -> no-op sukses
	again, err := svc.ConfirmPortionPayment(portionID, "pi_001", "card")
	assert.NoError(t, err)
	assert.True(t, again.IsPaid)

	// Order tetap partial_paid, tidak double-dihitung
	status, err := svc.Status(order.ID)
	assert.NoError(t, err)
	assert.InDelta(t, 50.00, status.TotalPaid, 0.001)

	// Intent berbeda pada porsi terbayar -> konflik
	_, err = svc.ConfirmPortionPayment(portionID, "pi_999", "card")
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestPayPortionMarksProcessing(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSplitPaymentService(db, nil)

	order := seedOrder(t, db, nil, 40.00)
	split, err := svc.CreateSplit(order.ID, models.SplitTypeEqual, 0, []PortionInput{
		{Name: "Andi"}, {Name: "Budi"},
	})
	assert.NoError(t, err)

	portion, err := svc.PayPortion(split.Portions[0].ID, "qris")
	assert.NoError(t, err)
	assert.Equal(t, models.PortionStatusProcessing, portion.Status)
	assert.False(t, portion.IsPaid)

	// processing bukan terminal: porsi tetap bisa dikonfirmasi
	confirmed, err := svc.ConfirmPortionPayment(portion.ID, "pi_001", "qris")
	assert.NoError(t, err)
	assert.True(t, confirmed.IsPaid)

	// Porsi terbayar tidak bisa kembali processing
	_, err = svc.PayPortion(portion.ID, "qris")
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)
}
