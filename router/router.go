package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/mealplan-app/controllers"
	"github.com/yeremiapane/mealplan-app/hub"
	"github.com/yeremiapane/mealplan-app/middlewares"
	"github.com/yeremiapane/mealplan-app/services"
	"github.com/yeremiapane/mealplan-app/utils"
)

type Deps struct {
	Orders        *services.OrderService
	Signature     controllers.SignatureValidator
	Hub           *hub.Hub
	JWTSecret     []byte
	AllowedOrigin string
	RateLimiter   *middlewares.RateLimiter
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(d.AllowedOrigin))
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.RateLimit())
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	orderCtrl := controllers.NewOrderController(d.Orders)
	paymentCtrl := controllers.NewPaymentController(d.Orders, d.Signature)
	socketCtrl := controllers.NewSocketController(d.Hub, d.AllowedOrigin)

	auth := middlewares.AuthMiddleware(d.JWTSecret)

	api := r.Group("/api")
	{
		// Midtrans calls this without a bearer token; the signature authenticates it.
		api.POST("/payments/notification", middlewares.PaymentSecurityHeaders(), middlewares.AuditRequest("payment_notification"), paymentCtrl.HandleNotification)

		orders := api.Group("/orders", auth)
		{
			orders.POST("", orderCtrl.CreateOrder)
			orders.GET("", orderCtrl.GetAllOrders)
			orders.GET("/:order_id", orderCtrl.GetOrderByID)
			orders.PATCH("/:order_id", middlewares.AuditRequest("update_order"), orderCtrl.UpdateOrder)
			orders.POST("/:order_id/verify-payment", middlewares.PaymentSecurityHeaders(), middlewares.AuditRequest("verify_payment"), orderCtrl.VerifyPayment)
			orders.GET("/:order_id/invoice", middlewares.AuditRequest("invoice"), orderCtrl.GetInvoice)
			orders.GET("/:order_id/payments", middlewares.RequireRole(utils.RoleStaff), paymentCtrl.GetPaymentChecks)
		}
	}

	r.GET("/ws/orders", auth, socketCtrl.OrderUpdates)

	return r
}
