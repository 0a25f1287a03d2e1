package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/services"
	"github.com/Fingerliing/payquick-sub001/utils"
)

type SessionController struct {
	Sessions *services.SessionService
	Orders   *services.OrderService
}

func NewSessionController(sessions *services.SessionService, orders *services.OrderService) *SessionController {
	return &SessionController{Sessions: sessions, Orders: orders}
}

// CreateSession -> tamu pertama di meja membuka sesi dan langsung jadi host.
// Response membawa guest token untuk request berikutnya.
func (sc *SessionController) CreateSession(c *gin.Context) {
	type request struct {
		RestaurantID        uint   `json:"restaurant_id" binding:"required"`
		TableID             *uint  `json:"table_id"`
		TableNumber         string `json:"table_number" binding:"required"`
		HostName            string `json:"host_name" binding:"required"`
		SessionType         string `json:"session_type"`
		MaxParticipants     int    `json:"max_participants"`
		RequireApproval     bool   `json:"require_approval"`
		SplitPaymentEnabled bool   `json:"split_payment_enabled"`
	}

	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	session, host, err := sc.Sessions.Create(services.CreateSessionInput{
		RestaurantID:        req.RestaurantID,
		TableID:             req.TableID,
		TableNumber:         req.TableNumber,
		HostName:            req.HostName,
		SessionType:         req.SessionType,
		MaxParticipants:     req.MaxParticipants,
		RequireApproval:     req.RequireApproval,
		SplitPaymentEnabled: req.SplitPaymentEnabled,
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	token, err := utils.GenerateGuestToken(host.ID, session.ID)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Session created", gin.H{
		"session":     session,
		"participant": host,
		"token":       token,
	})
}

// GetSessionByCode -> snapshot sesi live; dipakai klien setelah (re)connect
func (sc *SessionController) GetSessionByCode(c *gin.Context) {
	session, err := sc.Sessions.GetByShareCode(c.Param("share_code"))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session detail", session)
}

// GetSession -> detail sesi termasuk orders, untuk participant atau staff
func (sc *SessionController) GetSession(c *gin.Context) {
	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if _, _, err := guestContext(c, sessionID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	session, err := sc.Sessions.Get(sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	orders, err := sc.Orders.ListBySession(sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Session detail", gin.H{
		"session": session,
		"orders":  orders,
	})
}

// LockSession -> host membekukan join dan kontribusi member
func (sc *SessionController) LockSession(c *gin.Context) {
	sc.hostTransition(c, sc.Sessions.Lock, "Session locked")
}

// UnlockSession -> host membuka kembali
func (sc *SessionController) UnlockSession(c *gin.Context) {
	sc.hostTransition(c, sc.Sessions.Unlock, "Session unlocked")
}

// CompleteSession -> host menutup sesi secara eksplisit
func (sc *SessionController) CompleteSession(c *gin.Context) {
	sc.hostTransition(c, sc.Sessions.Complete, "Session completed")
}

// CancelSession -> host atau staff membatalkan sesi
func (sc *SessionController) CancelSession(c *gin.Context) {
	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	participantID, staff, err := guestContext(c, sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	var actor *uint
	if !staff {
		actor = &participantID
	}
	session, err := sc.Sessions.Cancel(sessionID, actor)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session cancelled", session)
}

func (sc *SessionController) hostTransition(c *gin.Context,
	fn func(sessionID, actorID uint) (*models.CollabSession, error), message string) {

	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	participantID, staff, err := guestContext(c, sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if staff {
		utils.RespondAppError(c, utils.NewAuthorizationError("this action belongs to the session host"))
		return
	}

	session, err := fn(sessionID, participantID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, message, session)
}
