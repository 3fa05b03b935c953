package services

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/mealplan-app/models"
)

// MidtransConfig holds Midtrans configuration
type MidtransConfig struct {
	ServerKey    string
	ClientKey    string
	IsProduction bool
}

func (c MidtransConfig) Validate() error {
	if c.ServerKey == "" {
		return fmt.Errorf("MIDTRANS_SERVER_KEY is not set")
	}
	if c.ClientKey == "" {
		return fmt.Errorf("MIDTRANS_CLIENT_KEY is not set")
	}
	return nil
}

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type statusAPI interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// MidtransService creates Snap payment sessions and reads transaction status
// through the Core API.
type MidtransService struct {
	config MidtransConfig
	snap   snapAPI
	core   statusAPI
	log    logrus.FieldLogger
}

func NewMidtransService(config MidtransConfig, log logrus.FieldLogger) *MidtransService {
	env := midtrans.Sandbox
	if config.IsProduction {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(config.ServerKey, env)
	var c coreapi.Client
	c.New(config.ServerKey, env)

	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MidtransService{config: config, snap: &s, core: &c, log: log}
}

// CreateSession opens a Snap transaction keyed by the order id. Midtrans
// takes whole currency units, so the total is rounded.
func (ms *MidtransService) CreateSession(ctx context.Context, order models.Order) (PaymentSession, error) {
	gross := order.TotalAmount.Round(0).IntPart()

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  order.ID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: order.UserID,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    order.ID,
			Name:  fmt.Sprintf("Meal plan order (%d items)", len(order.Items)),
			Price: gross,
			Qty:   1,
		}},
	}

	resp, mErr := ms.snap.CreateTransaction(req)
	if mErr != nil {
		return PaymentSession{}, fmt.Errorf("midtrans create transaction: %s", mErr.Message)
	}
	if resp == nil || resp.Token == "" {
		return PaymentSession{}, fmt.Errorf("midtrans returned no token for order %s", order.ID)
	}

	ms.log.WithFields(logrus.Fields{"order_id": order.ID, "gross_amount": gross}).Info("midtrans session created")
	return PaymentSession{SessionID: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// CheckStatus asks Midtrans how the order's transaction stands.
func (ms *MidtransService) CheckStatus(ctx context.Context, order models.Order) (PaymentReport, error) {
	resp, mErr := ms.core.CheckTransaction(order.ID)
	if mErr != nil {
		return PaymentReport{}, fmt.Errorf("midtrans check transaction: %s", mErr.Message)
	}
	return PaymentReport{
		Status:  mapTransactionStatus(resp.TransactionStatus, resp.FraudStatus),
		Message: resp.StatusMessage,
	}, nil
}

// ValidateSignature validates the signature_key of a Midtrans notification.
func (ms *MidtransService) ValidateSignature(orderID, statusCode, grossAmount, signature string) bool {
	return signatureKey(orderID, statusCode, grossAmount, ms.config.ServerKey) == signature
}

func signatureKey(orderID, statusCode, grossAmount, serverKey string) string {
	hash := sha512.New()
	hash.Write([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(hash.Sum(nil))
}

// mapTransactionStatus maps Midtrans transaction status to internal status
func mapTransactionStatus(status, fraud string) string {
	switch status {
	case "capture":
		if fraud == "challenge" {
			return models.PaymentStatusPending
		}
		if fraud == "deny" {
			return models.PaymentStatusFailed
		}
		return models.PaymentStatusSuccess
	case "settlement":
		return models.PaymentStatusSuccess
	case "pending", "authorize":
		return models.PaymentStatusPending
	case "deny", "cancel", "expire", "failure":
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusUnknown
	}
}
