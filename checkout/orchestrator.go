// Package checkout validates a cart, turns it into an order submission and
// drives the order and payment collaborators through to a confirmed order.
package checkout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/guard"
	"github.com/yeremiapane/mealplan-app/models"
	"github.com/yeremiapane/mealplan-app/orderapi"
	"github.com/yeremiapane/mealplan-app/pricing"
)

// PaymentOutcome is what the payment collaborator reports once the customer
// has finished (or walked away from) the payment screen.
type PaymentOutcome struct {
	Success   bool
	Abandoned bool
	Message   string
}

// PaymentGateway runs the out-of-process payment interaction for a session.
// The channel yields at most one outcome.
type PaymentGateway interface {
	Begin(ctx context.Context, sessionID string) (<-chan PaymentOutcome, error)
}

// Cart is the part of the cart store checkout reads and clears.
type Cart interface {
	Lines(userID string) []models.CartLine
	RemoveLines(ctx context.Context, lineIDs ...string) error
}

type Submission struct {
	OrderID          string
	PaymentSessionID string
	RedirectURL      string
	Order            models.Order
	Outcome          <-chan PaymentOutcome
}

type Config struct {
	ServiceArea  models.ServiceArea
	DeliveryRate decimal.Decimal
	Currency     string
	Logger       logrus.FieldLogger
}

type Orchestrator struct {
	api          orderapi.API
	payments     PaymentGateway
	area         models.ServiceArea
	deliveryRate decimal.Decimal
	currency     string
	busy         *guard.Busy
	log          logrus.FieldLogger

	mutex     sync.Mutex
	confirmed map[string]models.VerifyPaymentResult
}

func New(api orderapi.API, payments PaymentGateway, cfg Config) *Orchestrator {
	if cfg.ServiceArea.City == "" {
		cfg.ServiceArea = models.DefaultServiceArea()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		api:          api,
		payments:     payments,
		area:         cfg.ServiceArea,
		deliveryRate: cfg.DeliveryRate,
		currency:     cfg.Currency,
		busy:         guard.NewBusy(),
		log:          cfg.Logger,
		confirmed:    make(map[string]models.VerifyPaymentResult),
	}
}

// Validate checks the cart locally. Every meal category selected in any line
// needs a complete address inside the service area.
func (o *Orchestrator) Validate(lines []models.CartLine, addrs map[models.MealTime]models.DeliveryAddress) error {
	if len(lines) == 0 {
		return apperr.Validation("cart is empty")
	}
	selections := make([][]models.MealTime, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return apperr.Validationf("line %s has quantity %d", l.ID, l.Quantity)
		}
		for _, d := range l.PersonDetails {
			if err := d.Validate(); err != nil {
				return err
			}
		}
		selections = append(selections, l.MealTimes)
	}
	return o.area.ValidateCoverage(models.Categories(selections...), addrs)
}

// Quote prices lines with the configured delivery rate.
func (o *Orchestrator) Quote(lines []models.CartLine) pricing.Breakdown {
	return pricing.Quote(pricing.FromCartLines(lines), o.deliveryRate)
}

func (o *Orchestrator) BuildOrderPayload(userID string, lines []models.CartLine, addrs map[models.MealTime]models.DeliveryAddress, paymentMethod string) (models.OrderPayload, error) {
	if strings.TrimSpace(userID) == "" {
		return models.OrderPayload{}, apperr.Validation("user id is required")
	}
	if strings.TrimSpace(paymentMethod) == "" {
		return models.OrderPayload{}, apperr.Validation("payment method is required")
	}
	if err := o.Validate(lines, addrs); err != nil {
		return models.OrderPayload{}, err
	}

	items := make([]models.OrderItem, 0, len(lines))
	selections := make([][]models.MealTime, 0, len(lines))
	for _, l := range lines {
		if l.UserID != userID {
			return models.OrderPayload{}, apperr.Validationf("line %s does not belong to user %s", l.ID, userID)
		}
		c := l.Clone()
		items = append(items, models.OrderItem{
			Menu:          c.Menu,
			Plan:          c.Plan,
			Quantity:      c.Quantity,
			MealTimes:     c.MealTimes,
			StartDate:     c.StartDate,
			EndDate:       c.EndDate,
			LineTotal:     c.LineTotal,
			PersonDetails: c.PersonDetails,
			SkippedDates:  []time.Time{},
		})
		selections = append(selections, c.MealTimes)
	}

	used := make(map[models.MealTime]models.DeliveryAddress)
	for _, cat := range models.Categories(selections...) {
		used[cat] = addrs[cat]
	}

	q := o.Quote(lines)
	return models.OrderPayload{
		UserID:            userID,
		Items:             items,
		DeliveryAddresses: used,
		PaymentMethod:     paymentMethod,
		Subtotal:          q.Subtotal,
		DeliveryCost:      q.DeliveryCost,
		PlatformFee:       q.PlatformFee,
		GST:               q.GST,
		TotalAmount:       q.GrandTotal,
		Currency:          o.currency,
	}, nil
}

// Submit creates the order and starts the payment flow for its session.
func (o *Orchestrator) Submit(ctx context.Context, payload models.OrderPayload) (Submission, error) {
	res, err := o.api.CreateOrder(ctx, payload)
	if err != nil {
		o.log.WithError(err).WithField("user_id", payload.UserID).Error("order creation failed")
		return Submission{}, err
	}
	if res.PaymentSessionID == "" {
		return Submission{}, apperr.Payment("order "+res.OrderID+" has no payment session", nil)
	}

	outcome, err := o.payments.Begin(ctx, res.PaymentSessionID)
	if err != nil {
		return Submission{}, apperr.Payment("payment could not be started", err)
	}

	o.log.WithFields(logrus.Fields{
		"order_id": res.OrderID,
		"user_id":  payload.UserID,
		"total":    payload.TotalAmount.String(),
	}).Info("order submitted, awaiting payment")

	return Submission{
		OrderID:          res.OrderID,
		PaymentSessionID: res.PaymentSessionID,
		RedirectURL:      res.RedirectURL,
		Order:            res.Order,
		Outcome:          outcome,
	}, nil
}

// SubmitAsync runs Submit in the background and delivers its result once.
func (o *Orchestrator) SubmitAsync(ctx context.Context, payload models.OrderPayload) <-chan apperr.Result[Submission] {
	out := make(chan apperr.Result[Submission], 1)
	go func() {
		defer close(out)
		sub, err := o.Submit(ctx, payload)
		out <- apperr.Result[Submission]{Value: sub, Err: err}
	}()
	return out
}

// AwaitPayment blocks until the payment collaborator reports, returning a
// payment error for failure, abandonment or cancellation of ctx.
func (o *Orchestrator) AwaitPayment(ctx context.Context, sub Submission) error {
	select {
	case <-ctx.Done():
		return apperr.Payment("payment abandoned", ctx.Err())
	case outcome, ok := <-sub.Outcome:
		switch {
		case !ok || outcome.Abandoned:
			return apperr.Payment("payment abandoned for order "+sub.OrderID, nil)
		case !outcome.Success:
			msg := outcome.Message
			if msg == "" {
				msg = "payment failed for order " + sub.OrderID
			}
			return apperr.Payment(msg, nil)
		}
		return nil
	}
}

// ConfirmPayment asks the Order API to verify payment. Once an order has
// left pending the result is remembered, and calling again returns it
// without another round trip.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, orderID string) (models.VerifyPaymentResult, error) {
	if res, ok := o.cachedConfirmation(orderID); ok {
		return res, nil
	}

	release, err := o.busy.Acquire("order:" + orderID)
	if err != nil {
		return models.VerifyPaymentResult{}, err
	}
	defer release()

	if res, ok := o.cachedConfirmation(orderID); ok {
		return res, nil
	}

	res, err := o.api.VerifyPayment(ctx, orderID)
	if err != nil {
		return models.VerifyPaymentResult{}, err
	}

	if res.Order.Status != models.StatusPending {
		o.mutex.Lock()
		o.confirmed[orderID] = res
		o.mutex.Unlock()
	}

	o.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"status":   res.Order.Status,
	}).Info("payment verified")
	return res, nil
}

func (o *Orchestrator) cachedConfirmation(orderID string) (models.VerifyPaymentResult, bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	res, ok := o.confirmed[orderID]
	return res, ok
}

// Checkout runs the whole flow for userID's cart. The submitted lines are
// removed from the cart only after the payment is confirmed; any failure
// leaves the cart as it was.
func (o *Orchestrator) Checkout(ctx context.Context, c Cart, userID string, addrs map[models.MealTime]models.DeliveryAddress, paymentMethod string) (models.Order, error) {
	release, err := o.busy.Acquire("checkout:" + userID)
	if err != nil {
		return models.Order{}, err
	}
	defer release()

	lines := c.Lines(userID)
	payload, err := o.BuildOrderPayload(userID, lines, addrs, paymentMethod)
	if err != nil {
		return models.Order{}, err
	}

	sub, err := o.Submit(ctx, payload)
	if err != nil {
		return models.Order{}, err
	}
	if err := o.AwaitPayment(ctx, sub); err != nil {
		o.log.WithError(err).WithField("order_id", sub.OrderID).Warn("payment not completed")
		return models.Order{}, err
	}

	res, err := o.ConfirmPayment(ctx, sub.OrderID)
	if err != nil {
		return models.Order{}, err
	}
	switch res.Order.Status {
	case models.StatusPending, models.StatusCancelled:
		return res.Order, apperr.Payment("payment not confirmed: "+res.Message, nil)
	}

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ID)
	}
	if err := c.RemoveLines(ctx, ids...); err != nil {
		o.log.WithError(err).WithField("order_id", sub.OrderID).Error("order placed but cart not cleared")
	}
	return res.Order, nil
}
