package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/mealplan-app/services"
	"github.com/yeremiapane/mealplan-app/utils"
)

// SignatureValidator checks a provider notification. MidtransService
// implements it.
type SignatureValidator interface {
	ValidateSignature(orderID, statusCode, grossAmount, signature string) bool
}

type PaymentController struct {
	Orders    *services.OrderService
	Signature SignatureValidator
}

func NewPaymentController(orders *services.OrderService, signature SignatureValidator) *PaymentController {
	return &PaymentController{Orders: orders, Signature: signature}
}

// HandleNotification receives Midtrans HTTP notifications. The notification
// only triggers a status check; its own status field is not trusted.
func (pc *PaymentController) HandleNotification(c *gin.Context) {
	var request struct {
		OrderID           string `json:"order_id" binding:"required"`
		TransactionStatus string `json:"transaction_status"`
		StatusCode        string `json:"status_code" binding:"required"`
		GrossAmount       string `json:"gross_amount" binding:"required"`
		SignatureKey      string `json:"signature_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if !pc.Signature.ValidateSignature(request.OrderID, request.StatusCode, request.GrossAmount, request.SignatureKey) {
		utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("invalid signature"))
		return
	}

	res, err := pc.Orders.VerifyPayment(c.Request.Context(), services.SystemViewer, request.OrderID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	utils.InfoLogger.WithField("order_id", request.OrderID).
		WithField("transaction_status", request.TransactionStatus).
		Info("payment notification handled")
	utils.RespondJSON(c, http.StatusOK, res.Message, nil)
}

// GetPaymentChecks lists every provider check recorded for an order. Staff only.
func (pc *PaymentController) GetPaymentChecks(c *gin.Context) {
	orderID := c.Param("order_id")
	if _, err := pc.Orders.Get(c.Request.Context(), services.SystemViewer, orderID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	checks, err := pc.Orders.PaymentChecks(c.Request.Context(), orderID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment checks", checks)
}
