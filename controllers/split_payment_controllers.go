package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/services"
	"github.com/Fingerliing/payquick-sub001/utils"
)

type SplitPaymentController struct {
	DB     *gorm.DB
	Splits *services.SplitPaymentService
}

func NewSplitPaymentController(db *gorm.DB, splits *services.SplitPaymentService) *SplitPaymentController {
	return &SplitPaymentController{DB: db, Splits: splits}
}

// authorizeOrder -> staff bebas; guest hanya boleh menyentuh split dari order
// milik sesinya sendiri
func (sc *SplitPaymentController) authorizeOrder(c *gin.Context, orderID uint) error {
	role, _ := c.Get("role")
	roleStr, _ := role.(string)
	if isStaff(roleStr) {
		return nil
	}

	claimSession, _ := c.Get("session_id")
	sid, _ := claimSession.(uint)
	if sid == 0 {
		return utils.NewAuthorizationError("a session token is required")
	}

	var order models.Order
	if err := sc.DB.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError("order %d not found", orderID)
		}
		return err
	}
	if order.CollabSessionID == nil || *order.CollabSessionID != sid {
		return utils.NewAuthorizationError("token does not belong to order %d", orderID)
	}
	return nil
}

// orderForPortion -> order pemilik sebuah porsi, untuk otorisasi PayPortion
func (sc *SplitPaymentController) orderForPortion(portionID uuid.UUID) (uint, error) {
	var portion models.SplitPaymentPortion
	if err := sc.DB.First(&portion, "id = ?", portionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, utils.NewNotFoundError("portion %s not found", portionID)
		}
		return 0, err
	}
	var split models.SplitPaymentSession
	if err := sc.DB.First(&split, "id = ?", portion.SplitSessionID).Error; err != nil {
		return 0, err
	}
	return split.OrderID, nil
}

// CreateSplit -> buat pembagian pembayaran untuk satu order
func (sc *SplitPaymentController) CreateSplit(c *gin.Context) {
	orderID, err := paramUint(c, "order_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if err := sc.authorizeOrder(c, orderID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	type portionRequest struct {
		Name   string  `json:"name" binding:"required"`
		Amount float64 `json:"amount"`
	}
	type request struct {
		SplitType string           `json:"split_type" binding:"required"`
		TipAmount float64          `json:"tip_amount"`
		Portions  []portionRequest `json:"portions" binding:"required"`
	}
	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	portions := make([]services.PortionInput, 0, len(req.Portions))
	for _, p := range req.Portions {
		portions = append(portions, services.PortionInput{Name: p.Name, Amount: p.Amount})
	}

	split, err := sc.Splits.CreateSplit(orderID, req.SplitType, req.TipAmount, portions)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Split payment created", split)
}

// GetSplit -> detail split beserta porsinya
func (sc *SplitPaymentController) GetSplit(c *gin.Context) {
	orderID, err := paramUint(c, "order_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if err := sc.authorizeOrder(c, orderID); err != nil {
		utils.RespondAppError(c, err)
		return
	}
	split, err := sc.Splits.GetByOrder(orderID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Split payment detail", split)
}

// GetStatus -> agregat progres pembayaran (paid/remaining) untuk satu order
func (sc *SplitPaymentController) GetStatus(c *gin.Context) {
	orderID, err := paramUint(c, "order_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if err := sc.authorizeOrder(c, orderID); err != nil {
		utils.RespondAppError(c, err)
		return
	}
	status, err := sc.Splits.Status(orderID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Split payment status", status)
}

// PayPortion -> tandai satu porsi sedang diproses oleh provider
func (sc *SplitPaymentController) PayPortion(c *gin.Context) {
	portionID, err := uuid.Parse(c.Param("portion_id"))
	if err != nil {
		utils.RespondAppError(c, utils.NewValidationError("portion_id must be a valid uuid"))
		return
	}
	orderID, err := sc.orderForPortion(portionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if err := sc.authorizeOrder(c, orderID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	type request struct {
		PaymentMethod string `json:"payment_method" binding:"required"`
	}
	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	portion, err := sc.Splits.PayPortion(portionID, req.PaymentMethod)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Portion payment started", portion)
}

// ConfirmPortion -> konfirmasi dari provider; idempotent untuk intent yang sama
func (sc *SplitPaymentController) ConfirmPortion(c *gin.Context) {
	portionID, err := uuid.Parse(c.Param("portion_id"))
	if err != nil {
		utils.RespondAppError(c, utils.NewValidationError("portion_id must be a valid uuid"))
		return
	}

	type request struct {
		PaymentIntentID string `json:"payment_intent_id" binding:"required"`
		PaymentMethod   string `json:"payment_method"`
	}
	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	portion, err := sc.Splits.ConfirmPortionPayment(portionID, req.PaymentIntentID, req.PaymentMethod)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Portion payment confirmed", portion)
}
