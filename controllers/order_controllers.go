package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Fingerliing/payquick-sub001/services"
	"github.com/Fingerliing/payquick-sub001/utils"
)

type OrderController struct {
	Orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{Orders: orders}
}

// GetAllOrders -> daftar order per restoran (staff)
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	restaurantID, err := paramUint(c, "restaurant_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	orders, err := oc.Orders.List(restaurantID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

// GetOrderByID -> detail order beserta itemnya
func (oc *OrderController) GetOrderByID(c *gin.Context) {
	orderID, err := paramUint(c, "order_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	order, err := oc.Orders.Get(orderID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// UpdateOrderStatus -> transisi status dapur oleh staff
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	orderID, err := paramUint(c, "order_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Orders.UpdateStatus(orderID, body.Status)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	utils.InfoLogger.Printf("Order %d status changed to %s", order.ID, order.Status)
	utils.RespondJSON(c, http.StatusOK, "Order status updated", order)
}
