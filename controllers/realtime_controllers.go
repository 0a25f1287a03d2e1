package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/realtime"
	"github.com/Fingerliing/payquick-sub001/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type RealtimeController struct {
	DB  *gorm.DB
	Hub *realtime.Hub
}

func NewRealtimeController(db *gorm.DB, hub *realtime.Hub) *RealtimeController {
	return &RealtimeController{DB: db, Hub: hub}
}

// HandleWebSocket -> upgrade koneksi dan subscribe ke group yang diminta.
// Otorisasi dicek SEBELUM upgrade: guest hanya boleh group sesinya sendiri
// (plus order di sesi itu), staff boleh group mana pun.
func (rc *RealtimeController) HandleWebSocket(c *gin.Context) {
	keys, err := rc.resolveKeys(c)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if len(keys) == 0 {
		utils.RespondAppError(c, utils.NewValidationError("at least one of session_id or order_id is required"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := realtime.NewClient(rc.Hub, conn)
	for _, key := range keys {
		rc.Hub.Subscribe(key, client)
	}

	utils.InfoLogger.Printf("websocket client subscribed to %v", keys)
	client.Run()
}

// resolveKeys memvalidasi group key yang diminta terhadap claims token
func (rc *RealtimeController) resolveKeys(c *gin.Context) ([]string, error) {
	role, _ := c.Get("role")
	roleStr, _ := role.(string)
	staff := isStaff(roleStr)

	var claimSessionID uint
	if v, ok := c.Get("session_id"); ok {
		claimSessionID, _ = v.(uint)
	}

	var keys []string

	for _, raw := range c.QueryArray("session_id") {
		sessionID, err := parseQueryUint(raw, "session_id")
		if err != nil {
			return nil, err
		}
		if !staff && sessionID != claimSessionID {
			return nil, utils.NewAuthorizationError("token does not belong to session %d", sessionID)
		}
		keys = append(keys, realtime.SessionKey(sessionID))
	}

	for _, raw := range c.QueryArray("order_id") {
		orderID, err := parseQueryUint(raw, "order_id")
		if err != nil {
			return nil, err
		}
		if !staff {
			var order models.Order
			if err := rc.DB.First(&order, orderID).Error; err != nil {
				return nil, utils.NewNotFoundError("order %d not found", orderID)
			}
			if order.CollabSessionID == nil || *order.CollabSessionID != claimSessionID {
				return nil, utils.NewAuthorizationError("token does not belong to order %d", orderID)
			}
		}
		keys = append(keys, realtime.OrderKey(orderID))
	}

	return keys, nil
}

func parseQueryUint(raw, name string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, utils.NewValidationError("invalid %s: %q", name, raw)
	}
	return uint(v), nil
}
