package models

import (
	"time"
)

// Payment status values as reported by the payment provider.
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
	PaymentStatusUnknown = "unknown"
)

// PaymentCheck records one verification round trip to the payment provider.
type PaymentCheck struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	SessionID string    `gorm:"type:varchar(255)" json:"session_id"`
	Status    string    `gorm:"type:varchar(20);not null" json:"status"`
	Message   string    `gorm:"type:varchar(255)" json:"message"`
	CheckedAt time.Time `gorm:"not null" json:"checked_at"`
}
