package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/mealplan-app/utils"
)

// PaymentSecurityHeaders adds security headers for payment endpoints
func PaymentSecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// AuditRequest logs who performed action on which order and how it ended.
func AuditRequest(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"action":   action,
			"order_id": c.Param("order_id"),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if userID, ok := c.Get(ContextUserID); ok {
			fields["user_id"] = userID
		}
		if c.Writer.Status() >= 400 {
			utils.ErrorLogger.WithFields(fields).Error("audited request failed")
			return
		}
		utils.InfoLogger.WithFields(fields).Info("audited request")
	}
}
