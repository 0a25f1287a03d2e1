package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/realtime"
	"github.com/Fingerliing/payquick-sub001/router"
	"github.com/Fingerliing/payquick-sub001/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// TestEndToEndCollabSession menguji flow utama:
// 1. Buka sesi di meja -> host + token + share code
// 2. Member join lewat share code
// 3. Keduanya mengisi shared cart
// 4. Host lock sesi, lalu submit seluruh cart meja -> order
// 5. Buat equal split untuk order
// 6. Konfirmasi semua porsi lewat webhook -> order paid, sesi completed
func TestEndToEndCollabSession(t *testing.T) {
	db := setupIntegrationDB(t)
	r := router.SetupRouter(db, realtime.NewHub())

	// 1. Buka sesi
	body := request(t, r, "POST", "/sessions", "", map[string]interface{}{
		"restaurant_id":         1,
		"table_number":          "T1",
		"host_name":             "Andi",
		"split_payment_enabled": true,
	}, http.StatusCreated)
	data := body["data"].(map[string]interface{})
	hostToken := data["token"].(string)
	session := data["session"].(map[string]interface{})
	sessionID := uint(session["id"].(float64))
	shareCode := session["share_code"].(string)
	assert.Equal(t, "active", session["status"])

	// 2. Member join
	body = request(t, r, "POST", "/sessions/code/"+shareCode+"/join", "", map[string]interface{}{
		"display_name": "Budi",
	}, http.StatusCreated)
	data = body["data"].(map[string]interface{})
	memberToken := data["token"].(string)

	// Token member tidak berlaku untuk sesi lain
	request(t, r, "GET", "/sessions/999999/cart", memberToken, nil, http.StatusForbidden)

	// 3. Isi cart
	cartPath := fmt.Sprintf("/sessions/%d/cart", sessionID)
	request(t, r, "POST", cartPath+"/items", hostToken, map[string]interface{}{
		"menu_id": 1, "quantity": 2,
	}, http.StatusCreated)
	request(t, r, "POST", cartPath+"/items", memberToken, map[string]interface{}{
		"menu_id": 2, "quantity": 1,
	}, http.StatusCreated)

	body = request(t, r, "GET", cartPath, memberToken, nil, http.StatusOK)
	cart := body["data"].(map[string]interface{})
	assert.Len(t, cart["items"], 2)
	assert.InDelta(t, 80000, cart["total_amount"].(float64), 0.001)

	// 4. Lock lalu submit seluruh meja
	sessionPath := fmt.Sprintf("/sessions/%d", sessionID)
	request(t, r, "POST", sessionPath+"/lock", memberToken, nil, http.StatusForbidden)
	request(t, r, "POST", sessionPath+"/lock", hostToken, nil, http.StatusOK)

	// Join beku saat locked
	request(t, r, "POST", "/sessions/code/"+shareCode+"/join", "", map[string]interface{}{
		"display_name": "Citra",
	}, http.StatusConflict)

	body = request(t, r, "POST", cartPath+"/submit", hostToken, map[string]interface{}{
		"for_table": true,
	}, http.StatusCreated)
	data = body["data"].(map[string]interface{})
	order := data["order"].(map[string]interface{})
	orderID := uint(order["id"].(float64))
	assert.InDelta(t, 80000, order["total_amount"].(float64), 0.001)

	// Split payment aktif -> sesi masuk payment
	body = request(t, r, "GET", sessionPath, hostToken, nil, http.StatusOK)
	data = body["data"].(map[string]interface{})
	session = data["session"].(map[string]interface{})
	assert.Equal(t, "payment", session["status"])

	// 5. Equal split dua porsi
	orderPath := fmt.Sprintf("/orders/%d/split", orderID)
	body = request(t, r, "POST", orderPath, hostToken, map[string]interface{}{
		"split_type": "equal",
		"portions":   []map[string]interface{}{{"name": "Andi"}, {"name": "Budi"}},
	}, http.StatusCreated)
	data = body["data"].(map[string]interface{})
	portions := data["portions"].([]interface{})
	assert.Len(t, portions, 2)

	// 6. Konfirmasi semua porsi lewat webhook provider
	for i, p := range portions {
		portionID := p.(map[string]interface{})["id"].(string)
		request(t, r, "POST", "/payments/portions/"+portionID+"/confirm", "", map[string]interface{}{
			"payment_intent_id": fmt.Sprintf("pi_%03d", i),
			"payment_method":    "card",
		}, http.StatusOK)
	}

	body = request(t, r, "GET", orderPath+"/status", hostToken, nil, http.StatusOK)
	status := body["data"].(map[string]interface{})
	assert.Equal(t, true, status["is_completed"])

	// Order paid dan sesi selesai
	var reloadedOrder models.Order
	assert.NoError(t, db.First(&reloadedOrder, orderID).Error)
	assert.Equal(t, models.PaymentStatusPaid, reloadedOrder.PaymentStatus)

	var reloadedSession models.CollabSession
	assert.NoError(t, db.First(&reloadedSession, sessionID).Error)
	assert.Equal(t, models.SessionStatusCompleted, reloadedSession.Status)
}

func TestStaffAuthBoundaries(t *testing.T) {
	db := setupIntegrationDB(t)
	r := router.SetupRouter(db, realtime.NewHub())

	// Register + login staff
	request(t, r, "POST", "/register", "", map[string]interface{}{
		"name":     "Staf Satu",
		"email":    "staf@example.com",
		"password": "rahasia-banget",
		"role":     "staff",
	}, http.StatusCreated)

	body := request(t, r, "POST", "/login", "", map[string]interface{}{
		"email":    "staf@example.com",
		"password": "rahasia-banget",
	}, http.StatusOK)
	staffToken := body["data"].(map[string]interface{})["token"].(string)

	// Staff boleh membuat meja; tanpa token tidak
	request(t, r, "POST", "/staff/tables", "", map[string]interface{}{
		"restaurant_id": 1, "table_number": "T9",
	}, http.StatusUnauthorized)
	request(t, r, "POST", "/staff/tables", staffToken, map[string]interface{}{
		"restaurant_id": 1, "table_number": "T9",
	}, http.StatusCreated)

	// Guest token tidak bisa masuk route staff
	body = request(t, r, "POST", "/sessions", "", map[string]interface{}{
		"restaurant_id": 1, "table_number": "T1", "host_name": "Andi",
	}, http.StatusCreated)
	guestToken := body["data"].(map[string]interface{})["token"].(string)
	request(t, r, "GET", "/staff/tables", guestToken, nil, http.StatusForbidden)

	// Route admin tertutup untuk staff biasa
	request(t, r, "GET", "/admin/stats", staffToken, nil, http.StatusForbidden)
}

// Endpoint split terikat ke sesi pemilik order: token sesi lain ditolak
func TestSplitEndpointsScopedToSession(t *testing.T) {
	db := setupIntegrationDB(t)
	r := router.SetupRouter(db, realtime.NewHub())

	// Sesi A submit satu order
	body := request(t, r, "POST", "/sessions", "", map[string]interface{}{
		"restaurant_id": 1, "table_number": "T1", "host_name": "Andi",
	}, http.StatusCreated)
	data := body["data"].(map[string]interface{})
	tokenA := data["token"].(string)
	sessionA := data["session"].(map[string]interface{})
	sessionAID := uint(sessionA["id"].(float64))

	cartPath := fmt.Sprintf("/sessions/%d/cart", sessionAID)
	request(t, r, "POST", cartPath+"/items", tokenA, map[string]interface{}{
		"menu_id": 1, "quantity": 2,
	}, http.StatusCreated)
	body = request(t, r, "POST", cartPath+"/submit", tokenA, nil, http.StatusCreated)
	order := body["data"].(map[string]interface{})["order"].(map[string]interface{})
	orderID := uint(order["id"].(float64))

	// Sesi B di meja lain
	body = request(t, r, "POST", "/sessions", "", map[string]interface{}{
		"restaurant_id": 1, "table_number": "T2", "host_name": "Dewi",
	}, http.StatusCreated)
	tokenB := body["data"].(map[string]interface{})["token"].(string)

	splitPath := fmt.Sprintf("/orders/%d/split", orderID)

	// Token sesi B tidak boleh membuat split untuk order sesi A
	request(t, r, "POST", splitPath, tokenB, map[string]interface{}{
		"split_type": "equal",
		"portions":   []map[string]interface{}{{"name": "Dewi"}},
	}, http.StatusForbidden)

	// Pemilik sesi boleh
	body = request(t, r, "POST", splitPath, tokenA, map[string]interface{}{
		"split_type": "equal",
		"portions":   []map[string]interface{}{{"name": "Andi"}, {"name": "Budi"}},
	}, http.StatusCreated)
	portions := body["data"].(map[string]interface{})["portions"].([]interface{})
	portionID := portions[0].(map[string]interface{})["id"].(string)

	// Baca dan bayar juga tertutup untuk sesi lain
	request(t, r, "GET", splitPath, tokenB, nil, http.StatusForbidden)
	request(t, r, "GET", splitPath+"/status", tokenB, nil, http.StatusForbidden)
	request(t, r, "POST", "/payments/portions/"+portionID+"/pay", tokenB, map[string]interface{}{
		"payment_method": "card",
	}, http.StatusForbidden)

	request(t, r, "GET", splitPath, tokenA, nil, http.StatusOK)
	request(t, r, "POST", "/payments/portions/"+portionID+"/pay", tokenA, map[string]interface{}{
		"payment_method": "card",
	}, http.StatusOK)
}

// Limiter per-IP terpasang sebelum registrasi route, jadi benar-benar dieksekusi
func TestGlobalRateLimiterEngaged(t *testing.T) {
	db := setupIntegrationDB(t)
	r := router.SetupRouter(db, realtime.NewHub())

	limited := false
	for i := 0; i < 120; i++ {
		w := httptest.NewRecorder()
		req, err := http.NewRequest("GET", "/ping", nil)
		assert.NoError(t, err)
		r.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

// setupIntegrationDB -> SQLite in-memory + seed menu
func setupIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Restaurant{},
		&models.Table{},
		&models.MenuCategory{},
		&models.Menu{},
		&models.CollabSession{},
		&models.SessionParticipant{},
		&models.SessionCartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.SplitPaymentSession{},
		&models.SplitPaymentPortion{},
		&models.Notification{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	category := models.MenuCategory{Name: "Main"}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("failed to seed category: %v", err)
	}
	menus := []models.Menu{
		{RestaurantID: 1, CategoryID: category.ID, Name: "Nasi Goreng", Price: 25000, Stock: 10, IsAvailable: true},
		{RestaurantID: 1, CategoryID: category.ID, Name: "Sate Ayam", Price: 30000, Stock: 10, IsAvailable: true},
	}
	if err := db.Create(&menus).Error; err != nil {
		t.Fatalf("failed to seed menus: %v", err)
	}
	return db
}

// request -> satu HTTP call terhadap router test, decode envelope response
func request(t *testing.T, r *gin.Engine, method, path, token string, payload interface{}, wantStatus int) map[string]interface{} {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		assert.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, body)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, wantStatus, w.Code, "unexpected status for %s %s: %s", method, path, w.Body.String())

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return decoded
}
