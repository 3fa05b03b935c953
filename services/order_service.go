package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/guard"
	"github.com/yeremiapane/mealplan-app/models"
	"github.com/yeremiapane/mealplan-app/orderstate"
	"github.com/yeremiapane/mealplan-app/pricing"
	"github.com/yeremiapane/mealplan-app/scheduler"
)

// Viewer is the authenticated caller. Processors (staff, admin, the payment
// monitor) may see every order and drive fulfilment.
type Viewer struct {
	UserID    string
	Processor bool
}

func (v Viewer) actor() orderstate.Actor {
	if v.Processor {
		return orderstate.ActorProcessor
	}
	return orderstate.ActorCustomer
}

// SystemViewer acts for background jobs and provider notifications.
var SystemViewer = Viewer{UserID: "system", Processor: true}

type OrderServiceConfig struct {
	ServiceArea  models.ServiceArea
	DeliveryRate decimal.Decimal
	Currency     string
	Now          func() time.Time
}

type OrderService struct {
	db        *gorm.DB
	payments  PaymentProvider
	publisher Publisher
	cfg       OrderServiceConfig
	busy      *guard.Busy
	log       logrus.FieldLogger
}

func NewOrderService(db *gorm.DB, payments PaymentProvider, publisher Publisher, cfg OrderServiceConfig, log logrus.FieldLogger) *OrderService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if cfg.ServiceArea.City == "" {
		cfg.ServiceArea = models.DefaultServiceArea()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OrderService{
		db:        db,
		payments:  payments,
		publisher: publisher,
		cfg:       cfg,
		busy:      guard.NewBusy(),
		log:       log,
	}
}

// Create stores a new pending order after recomputing every figure the
// client sent, then opens a payment session for it.
func (s *OrderService) Create(ctx context.Context, viewer Viewer, payload models.OrderPayload) (models.CreateOrderResult, error) {
	if payload.UserID != "" && payload.UserID != viewer.UserID {
		return models.CreateOrderResult{}, apperr.Validation("order user does not match the authenticated user")
	}
	if err := s.verifyPayload(payload); err != nil {
		return models.CreateOrderResult{}, err
	}

	now := s.cfg.Now()
	order := models.Order{
		ID:                uuid.NewString(),
		UserID:            viewer.UserID,
		DeliveryAddresses: payload.DeliveryAddresses,
		Subtotal:          payload.Subtotal,
		DeliveryCost:      payload.DeliveryCost,
		PlatformFee:       payload.PlatformFee,
		GST:               payload.GST,
		TotalAmount:       payload.TotalAmount,
		Currency:          s.cfg.Currency,
		Status:            models.StatusPending,
		PaymentMethod:     payload.PaymentMethod,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, it := range payload.Items {
		item := it.Clone()
		item.ID = uuid.NewString()
		item.OrderID = order.ID
		item.MealTimes, _ = models.NormalizeMealTimes(item.MealTimes)
		item.StartDate = models.CalendarDay(item.StartDate)
		item.EndDate = models.CalendarDay(item.EndDate)
		item.SkippedDates = []time.Time{}
		item.CreatedAt = now
		item.UpdatedAt = now
		order.Items = append(order.Items, item)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		session, err := s.payments.CreateSession(ctx, order)
		if err != nil {
			return apperr.Payment("payment session could not be created", err)
		}
		order.PaymentSessionID = session.SessionID
		order.PaymentRedirectURL = session.RedirectURL
		return tx.Model(&order).Updates(map[string]interface{}{
			"payment_session_id":   session.SessionID,
			"payment_redirect_url": session.RedirectURL,
		}).Error
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", viewer.UserID).Error("order not created")
		return models.CreateOrderResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"items":    len(order.Items),
		"total":    order.TotalAmount.String(),
	}).Info("order created")
	s.publisher.BroadcastOrderUpdate(order)

	return models.CreateOrderResult{
		OrderID:          order.ID,
		PaymentSessionID: order.PaymentSessionID,
		RedirectURL:      order.PaymentRedirectURL,
		Order:            order,
	}, nil
}

func (s *OrderService) verifyPayload(p models.OrderPayload) error {
	if len(p.Items) == 0 {
		return apperr.Validation("order has no items")
	}
	if strings.TrimSpace(p.PaymentMethod) == "" {
		return apperr.Validation("payment method is required")
	}
	if p.Currency != "" && p.Currency != s.cfg.Currency {
		return apperr.Validationf("currency must be %s", s.cfg.Currency)
	}

	selections := make([][]models.MealTime, 0, len(p.Items))
	for i, it := range p.Items {
		if err := it.Plan.Validate(); err != nil {
			return err
		}
		meals, err := models.NormalizeMealTimes(it.MealTimes)
		if err != nil {
			return err
		}
		if len(meals) != len(it.MealTimes) {
			return apperr.Validationf("item %d repeats a meal time", i+1)
		}
		total, err := pricing.LineTotal(it.Menu, it.Plan, it.Quantity, meals)
		if err != nil {
			return err
		}
		if !total.Equal(it.LineTotal) {
			return apperr.Validationf("item %d total is %s, expected %s", i+1, it.LineTotal, total)
		}
		if it.StartDate.IsZero() {
			return apperr.Validationf("item %d has no start date", i+1)
		}
		end := scheduler.InitialSchedule(models.CalendarDay(it.StartDate), it.Plan)
		if !models.SameDay(end, it.EndDate) {
			return apperr.Validationf("item %d ends %s, expected %s", i+1,
				it.EndDate.Format(time.DateOnly), end.Format(time.DateOnly))
		}
		if len(it.SkippedDates) > 0 {
			return apperr.Validationf("item %d cannot carry skipped dates before it is placed", i+1)
		}
		if len(it.PersonDetails) > it.Quantity {
			return apperr.Validationf("item %d has %d recipients for quantity %d", i+1, len(it.PersonDetails), it.Quantity)
		}
		for _, d := range it.PersonDetails {
			if err := d.Validate(); err != nil {
				return err
			}
		}
		selections = append(selections, meals)
	}

	if err := s.cfg.ServiceArea.ValidateCoverage(models.Categories(selections...), p.DeliveryAddresses); err != nil {
		return err
	}

	q := pricing.Quote(pricing.FromOrderItems(p.Items), s.cfg.DeliveryRate)
	figures := []struct {
		name       string
		got, wants decimal.Decimal
	}{
		{"subtotal", p.Subtotal, q.Subtotal},
		{"delivery cost", p.DeliveryCost, q.DeliveryCost},
		{"platform fee", p.PlatformFee, q.PlatformFee},
		{"gst", p.GST, q.GST},
		{"total amount", p.TotalAmount, q.GrandTotal},
	}
	for _, f := range figures {
		if !f.got.Equal(f.wants) {
			return apperr.Validationf("%s is %s, expected %s", f.name, f.got, f.wants)
		}
	}
	return nil
}

func (s *OrderService) Get(ctx context.Context, viewer Viewer, orderID string) (models.Order, error) {
	return s.load(s.db.WithContext(ctx), viewer, orderID)
}

// List returns the viewer's orders, newest first. Processors see all orders,
// optionally narrowed to one status.
func (s *OrderService) List(ctx context.Context, viewer Viewer, status models.OrderStatus) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Preload("Items", orderItems).Order("created_at DESC")
	if !viewer.Processor {
		q = q.Where("user_id = ?", viewer.UserID)
	}
	if status != "" {
		if !orderstate.Known(status) {
			return nil, apperr.Validationf("unknown order status %q", status)
		}
		q = q.Where("status = ?", status)
	}

	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Update applies exactly one kind of change to an order.
func (s *OrderService) Update(ctx context.Context, viewer Viewer, orderID string, patch models.OrderPatch) (models.Order, error) {
	kind := patch.Kind()
	if kind == models.PatchInvalid {
		return models.Order{}, apperr.Validation("patch must carry exactly one of status, delivery_addresses or a skip")
	}

	release, err := s.busy.Acquire(orderID)
	if err != nil {
		return models.Order{}, err
	}
	defer release()

	db := s.db.WithContext(ctx)
	order, err := s.load(db, viewer, orderID)
	if err != nil {
		return models.Order{}, err
	}

	var changedItem *models.OrderItem
	switch kind {
	case models.PatchStatus:
		next, err := orderstate.Transition(order.Status, *patch.Status, viewer.actor())
		if err != nil {
			return order, err
		}
		order.Status = next

	case models.PatchAddresses:
		if err := orderstate.CheckMutable(order.Status); err != nil {
			return order, err
		}
		if err := s.cfg.ServiceArea.ValidateCoverage(order.Categories(), patch.DeliveryAddresses); err != nil {
			return order, err
		}
		addrs := make(map[models.MealTime]models.DeliveryAddress)
		for _, cat := range order.Categories() {
			addrs[cat] = patch.DeliveryAddresses[cat]
		}
		order.DeliveryAddresses = addrs

	case models.PatchSkip:
		if err := orderstate.CheckMutable(order.Status); err != nil {
			return order, err
		}
		item, ok := order.Item(patch.ItemID)
		if !ok {
			return order, apperr.NotFoundf("item %s not found in order %s", patch.ItemID, order.ID)
		}
		updated, err := scheduler.ApplySkipAt(s.cfg.Now(), *item, *patch.SkippedDate)
		if err != nil {
			return order, err
		}
		if !models.SameDay(updated.EndDate, *patch.NewEndDate) {
			return order, apperr.Validationf("new end date must be %s", updated.EndDate.Format(time.DateOnly))
		}
		*item = updated
		changedItem = item
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(&order).Error; err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		if changedItem != nil {
			if err := tx.Save(changedItem).Error; err != nil {
				return fmt.Errorf("save order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return order, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"by":       viewer.UserID,
		"status":   order.Status,
	}).Info("order updated")
	s.publisher.BroadcastOrderUpdate(order)
	return order, nil
}

// VerifyPayment asks the payment provider about a pending order and moves it
// to confirmed or cancelled. Orders that already left pending are returned
// unchanged without contacting the provider.
func (s *OrderService) VerifyPayment(ctx context.Context, viewer Viewer, orderID string) (models.VerifyPaymentResult, error) {
	release, err := s.busy.Acquire(orderID)
	if err != nil {
		return models.VerifyPaymentResult{}, err
	}
	defer release()

	db := s.db.WithContext(ctx)
	order, err := s.load(db, viewer, orderID)
	if err != nil {
		return models.VerifyPaymentResult{}, err
	}
	if order.Status != models.StatusPending {
		return models.VerifyPaymentResult{Order: order, Message: "payment already verified"}, nil
	}
	if order.PaymentSessionID == "" {
		return models.VerifyPaymentResult{}, apperr.Payment("order "+order.ID+" has no payment session", nil)
	}

	report, err := s.payments.CheckStatus(ctx, order)
	if err != nil {
		return models.VerifyPaymentResult{}, apperr.Network("payment provider unavailable", err)
	}

	now := s.cfg.Now()
	check := models.PaymentCheck{
		OrderID:   order.ID,
		SessionID: order.PaymentSessionID,
		Status:    report.Status,
		Message:   report.Message,
		CheckedAt: now,
	}

	var message string
	switch report.Status {
	case models.PaymentStatusSuccess:
		order.Status, err = orderstate.Transition(order.Status, models.StatusConfirmed, orderstate.ActorProcessor)
		order.PaymentVerifiedAt = &now
		message = "payment confirmed"
	case models.PaymentStatusFailed:
		order.Status, err = orderstate.Cancel(order.Status)
		order.PaymentVerifiedAt = &now
		message = "payment failed"
	default:
		message = "payment still pending"
	}
	if err != nil {
		return models.VerifyPaymentResult{}, err
	}
	if report.Message != "" {
		message += ": " + report.Message
	}
	order.PaymentMessage = message

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&check).Error; err != nil {
			return fmt.Errorf("record payment check: %w", err)
		}
		return tx.Omit(clause.Associations).Save(&order).Error
	})
	if err != nil {
		return models.VerifyPaymentResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"payment_status": report.Status,
		"status":         order.Status,
	}).Info("payment verified")
	s.publisher.BroadcastPaymentUpdate(order, check)
	return models.VerifyPaymentResult{Order: order, Message: message}, nil
}

// AwaitingPayment lists pending orders that have a session, oldest first.
func (s *OrderService) AwaitingPayment(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("status = ? AND payment_session_id <> ''", models.StatusPending).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return orders, nil
}

// ExpireUnpaid cancels pending orders created before cutoff.
func (s *OrderService) ExpireUnpaid(ctx context.Context, cutoff time.Time) (int, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.StatusPending, cutoff).
		Find(&orders).Error
	if err != nil {
		return 0, fmt.Errorf("list unpaid orders: %w", err)
	}

	status := models.StatusCancelled
	expired := 0
	for _, o := range orders {
		if _, err := s.Update(ctx, SystemViewer, o.ID, models.OrderPatch{Status: &status}); err != nil {
			s.log.WithError(err).WithField("order_id", o.ID).Warn("could not expire order")
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *OrderService) PaymentChecks(ctx context.Context, orderID string) ([]models.PaymentCheck, error) {
	var checks []models.PaymentCheck
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&checks).Error; err != nil {
		return nil, fmt.Errorf("list payment checks: %w", err)
	}
	return checks, nil
}

func (s *OrderService) load(db *gorm.DB, viewer Viewer, orderID string) (models.Order, error) {
	var order models.Order
	err := db.Preload("Items", orderItems).First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Order{}, apperr.NotFoundf("order %s not found", orderID)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	// Other customers' orders are reported as missing.
	if !viewer.Processor && order.UserID != viewer.UserID {
		return models.Order{}, apperr.NotFoundf("order %s not found", orderID)
	}
	return order, nil
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}
