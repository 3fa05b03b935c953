package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/middlewares"
	"github.com/yeremiapane/mealplan-app/models"
	"github.com/yeremiapane/mealplan-app/services"
	"github.com/yeremiapane/mealplan-app/utils"
)

type OrderController struct {
	Orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{Orders: orders}
}

func viewer(c *gin.Context) (services.Viewer, bool) {
	claims, ok := middlewares.Claims(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return services.Viewer{}, false
	}
	return services.Viewer{UserID: claims.UserID, Processor: claims.IsProcessor()}, true
}

// CreateOrder -> new pending order plus its payment session
func (oc *OrderController) CreateOrder(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}

	var payload models.OrderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.RespondAppError(c, apperr.Validationf("invalid order payload: %v", err))
		return
	}

	res, err := oc.Orders.Create(c.Request.Context(), v, payload)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order created", res)
}

// GetAllOrders -> the caller's orders; staff see every order
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}

	orders, err := oc.Orders.List(c.Request.Context(), v, models.OrderStatus(c.Query("status")))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

func (oc *OrderController) GetOrderByID(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}

	order, err := oc.Orders.Get(c.Request.Context(), v, c.Param("order_id"))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// UpdateOrder -> one of: status change, new addresses, skip a day
func (oc *OrderController) UpdateOrder(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}

	var patch models.OrderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		utils.RespondAppError(c, apperr.Validationf("invalid order patch: %v", err))
		return
	}

	order, err := oc.Orders.Update(c.Request.Context(), v, c.Param("order_id"), patch)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order updated", order)
}

func (oc *OrderController) VerifyPayment(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}

	res, err := oc.Orders.VerifyPayment(c.Request.Context(), v, c.Param("order_id"))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, res.Message, res)
}

// GetInvoice -> PDF invoice of the order
func (oc *OrderController) GetInvoice(c *gin.Context) {
	v, ok := viewer(c)
	if !ok {
		return
	}

	order, err := oc.Orders.Get(c.Request.Context(), v, c.Param("order_id"))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=invoice-%s.pdf", order.ID))
	c.Status(http.StatusOK)
	if err := services.RenderInvoice(c.Writer, order, true); err != nil {
		utils.ErrorLogger.WithError(err).WithField("order_id", order.ID).Error("invoice rendering failed")
	}
}
