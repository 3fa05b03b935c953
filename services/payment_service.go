package services

import (
	"context"

	"github.com/yeremiapane/mealplan-app/models"
)

// PaymentSession is what the customer's payment widget is opened with.
type PaymentSession struct {
	SessionID   string
	RedirectURL string
}

// PaymentReport is the provider's view of an order's payment.
type PaymentReport struct {
	Status  string
	Message string
}

// PaymentProvider is implemented by MidtransService.
type PaymentProvider interface {
	CreateSession(ctx context.Context, order models.Order) (PaymentSession, error)
	CheckStatus(ctx context.Context, order models.Order) (PaymentReport, error)
}

// Publisher receives order events for live clients. hub.Hub implements it.
type Publisher interface {
	BroadcastOrderUpdate(order models.Order)
	BroadcastPaymentUpdate(order models.Order, check models.PaymentCheck)
}

type nopPublisher struct{}

func (nopPublisher) BroadcastOrderUpdate(models.Order)                        {}
func (nopPublisher) BroadcastPaymentUpdate(models.Order, models.PaymentCheck) {}
