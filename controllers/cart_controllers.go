package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Fingerliing/payquick-sub001/services"
	"github.com/Fingerliing/payquick-sub001/utils"
)

type CartController struct {
	Cart *services.CartService
}

func NewCartController(cart *services.CartService) *CartController {
	return &CartController{Cart: cart}
}

// AddItem -> tambah item ke shared cart; baris identik di-merge
func (cc *CartController) AddItem(c *gin.Context) {
	sessionID, participantID, ok := cc.cartActor(c)
	if !ok {
		return
	}

	type request struct {
		MenuID              uint              `json:"menu_id" binding:"required"`
		Quantity            int               `json:"quantity" binding:"required"`
		SpecialInstructions string            `json:"special_instructions"`
		Customizations      map[string]string `json:"customizations"`
	}
	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	item, err := cc.Cart.AddItem(sessionID, participantID, services.AddItemInput{
		MenuID:              req.MenuID,
		Quantity:            req.Quantity,
		SpecialInstructions: req.SpecialInstructions,
		Customizations:      req.Customizations,
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Item added to cart", item)
}

// UpdateItem -> owner atau host mengubah satu baris
func (cc *CartController) UpdateItem(c *gin.Context) {
	sessionID, participantID, ok := cc.cartActor(c)
	if !ok {
		return
	}
	itemID, err := paramUint(c, "item_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	type request struct {
		Quantity            *int              `json:"quantity"`
		SpecialInstructions *string           `json:"special_instructions"`
		Customizations      map[string]string `json:"customizations"`
	}
	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	item, err := cc.Cart.UpdateItem(sessionID, participantID, itemID, services.UpdateItemInput{
		Quantity:            req.Quantity,
		SpecialInstructions: req.SpecialInstructions,
		Customizations:      req.Customizations,
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cart item updated", item)
}

// RemoveItem -> owner atau host menghapus satu baris
func (cc *CartController) RemoveItem(c *gin.Context) {
	sessionID, participantID, ok := cc.cartActor(c)
	if !ok {
		return
	}
	itemID, err := paramUint(c, "item_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	if err := cc.Cart.RemoveItem(sessionID, participantID, itemID); err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cart item removed", gin.H{"item_id": itemID})
}

// GetCart -> snapshot transaksional cart
func (cc *CartController) GetCart(c *gin.Context) {
	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if _, _, err := guestContext(c, sessionID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	state, err := cc.Cart.Snapshot(sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cart snapshot", state)
}

// Submit -> konversi cart jadi order; laporan per-item untuk item yang gagal
func (cc *CartController) Submit(c *gin.Context) {
	sessionID, participantID, ok := cc.cartActor(c)
	if !ok {
		return
	}

	type request struct {
		ItemIDs  []uint `json:"item_ids"`
		ForTable bool   `json:"for_table"`
		Atomic   bool   `json:"atomic"`
	}
	var req request
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
	}

	result, err := cc.Cart.Submit(sessionID, participantID, services.SubmitInput{
		ItemIDs:  req.ItemIDs,
		ForTable: req.ForTable,
		Atomic:   req.Atomic,
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order submitted", result)
}

func (cc *CartController) cartActor(c *gin.Context) (sessionID, participantID uint, ok bool) {
	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return 0, 0, false
	}
	participantID, staff, err := guestContext(c, sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return 0, 0, false
	}
	if staff {
		utils.RespondAppError(c, utils.NewValidationError("staff accounts do not own a cart"))
		return 0, 0, false
	}
	return sessionID, participantID, true
}
