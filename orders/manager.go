// Package orders manages a customer's placed orders: skipping a delivery
// day, editing delivery addresses and cancelling.
package orders

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/guard"
	"github.com/yeremiapane/mealplan-app/models"
	"github.com/yeremiapane/mealplan-app/orderapi"
	"github.com/yeremiapane/mealplan-app/orderstate"
	"github.com/yeremiapane/mealplan-app/scheduler"
)

// Manager applies local rule checks before sending a change, and treats the
// Order API's answer as the source of truth afterwards.
type Manager struct {
	api   orderapi.API
	sched *scheduler.Scheduler
	area  models.ServiceArea
	busy  *guard.Busy
	log   logrus.FieldLogger
}

func NewManager(api orderapi.API, sched *scheduler.Scheduler, area models.ServiceArea, log logrus.FieldLogger) *Manager {
	if sched == nil {
		sched = scheduler.New(nil)
	}
	if area.City == "" {
		area = models.DefaultServiceArea()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{api: api, sched: sched, area: area, busy: guard.NewBusy(), log: log}
}

func (m *Manager) Refresh(ctx context.Context, orderID string) (models.Order, error) {
	return m.api.GetOrder(ctx, orderID)
}

// Skip moves target out of item's schedule, extending the item by a day.
func (m *Manager) Skip(ctx context.Context, order models.Order, itemID string, target time.Time) (models.Order, error) {
	release, err := m.busy.Acquire(order.ID)
	if err != nil {
		return order, err
	}
	defer release()

	if err := orderstate.CheckMutable(order.Status); err != nil {
		return order, err
	}
	item, ok := order.Item(itemID)
	if !ok {
		return order, apperr.NotFoundf("item %s not found in order %s", itemID, order.ID)
	}
	updated, err := m.sched.ApplySkip(*item, target)
	if err != nil {
		return order, err
	}

	day := models.CalendarDay(target)
	patch := models.OrderPatch{
		ItemID:      itemID,
		SkippedDate: &day,
		NewEndDate:  &updated.EndDate,
	}
	next, err := m.api.UpdateOrder(ctx, order.ID, patch)
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"order_id": order.ID, "item_id": itemID}).Error("skip failed")
		return order, err
	}

	m.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"item_id":  itemID,
		"skipped":  day.Format(time.DateOnly),
		"new_end":  updated.EndDate.Format(time.DateOnly),
	}).Info("delivery day skipped")
	return next, nil
}

// EditAddresses replaces the order's addresses. Every category present in
// the order must stay covered.
func (m *Manager) EditAddresses(ctx context.Context, order models.Order, addrs map[models.MealTime]models.DeliveryAddress) (models.Order, error) {
	release, err := m.busy.Acquire(order.ID)
	if err != nil {
		return order, err
	}
	defer release()

	if err := orderstate.CheckMutable(order.Status); err != nil {
		return order, err
	}
	if err := m.area.ValidateCoverage(order.Categories(), addrs); err != nil {
		return order, err
	}

	next, err := m.api.UpdateOrder(ctx, order.ID, models.OrderPatch{DeliveryAddresses: addrs})
	if err != nil {
		return order, err
	}
	m.log.WithField("order_id", order.ID).Info("delivery addresses updated")
	return next, nil
}

func (m *Manager) Cancel(ctx context.Context, order models.Order) (models.Order, error) {
	release, err := m.busy.Acquire(order.ID)
	if err != nil {
		return order, err
	}
	defer release()

	status, err := orderstate.Cancel(order.Status)
	if err != nil {
		return order, err
	}
	next, err := m.api.UpdateOrder(ctx, order.ID, models.OrderPatch{Status: &status})
	if err != nil {
		return order, err
	}
	m.log.WithField("order_id", order.ID).Info("order cancelled")
	return next, nil
}

// IsBusy reports whether a change to orderID is in flight.
func (m *Manager) IsBusy(orderID string) bool {
	return m.busy.IsBusy(orderID)
}

// BeginAddressEdit starts an edit session over a copy of the order's
// addresses. Nothing leaves the process until Save.
func (m *Manager) BeginAddressEdit(order models.Order) (*AddressDraft, error) {
	if err := orderstate.CheckMutable(order.Status); err != nil {
		return nil, err
	}
	working := make(map[models.MealTime]models.DeliveryAddress, len(order.DeliveryAddresses))
	for k, v := range order.DeliveryAddresses {
		working[k] = v
	}
	return &AddressDraft{manager: m, order: order, working: working}, nil
}

// AddressDraft is a pending address edit.
type AddressDraft struct {
	manager *Manager

	mutex     sync.Mutex
	order     models.Order
	working   map[models.MealTime]models.DeliveryAddress
	discarded bool
}

// Set stages a new address for a category the order contains.
func (d *AddressDraft) Set(category models.MealTime, addr models.DeliveryAddress) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.discarded {
		return apperr.State("address edit was discarded")
	}
	present := false
	for _, c := range d.order.Categories() {
		if c == category {
			present = true
			break
		}
	}
	if !present {
		return apperr.Validationf("order %s has no %s deliveries", d.order.ID, category)
	}
	d.working[category] = addr
	return nil
}

func (d *AddressDraft) Addresses() map[models.MealTime]models.DeliveryAddress {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make(map[models.MealTime]models.DeliveryAddress, len(d.working))
	for k, v := range d.working {
		out[k] = v
	}
	return out
}

// Discard drops the staged changes. The order is left as it was.
func (d *AddressDraft) Discard() {
	d.mutex.Lock()
	d.discarded = true
	d.working = nil
	d.mutex.Unlock()
}

func (d *AddressDraft) Save(ctx context.Context) (models.Order, error) {
	d.mutex.Lock()
	if d.discarded {
		d.mutex.Unlock()
		return d.order, apperr.State("address edit was discarded")
	}
	addrs := make(map[models.MealTime]models.DeliveryAddress, len(d.working))
	for k, v := range d.working {
		addrs[k] = v
	}
	order := d.order
	d.mutex.Unlock()

	return d.manager.EditAddresses(ctx, order, addrs)
}
