// Package orderstate governs order status transitions and which fields may
// still change at each status.
package orderstate

import (
	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/models"
)

// Actor is who requests a transition.
type Actor int

const (
	// ActorCustomer is the order's owner acting through the client.
	ActorCustomer Actor = iota
	// ActorProcessor is payment verification, fulfilment or staff.
	ActorProcessor
)

func (a Actor) String() string {
	if a == ActorProcessor {
		return "processor"
	}
	return "customer"
}

var fulfilment = map[models.OrderStatus]models.OrderStatus{
	models.StatusPending:          models.StatusConfirmed,
	models.StatusConfirmed:        models.StatusReadyForDelivery,
	models.StatusReadyForDelivery: models.StatusDelivered,
}

func Known(s models.OrderStatus) bool {
	switch s {
	case models.StatusPending, models.StatusConfirmed, models.StatusReadyForDelivery,
		models.StatusDelivered, models.StatusCancelled:
		return true
	}
	return false
}

func IsTerminal(s models.OrderStatus) bool {
	return s == models.StatusDelivered || s == models.StatusCancelled
}

// CanMutate reports whether addresses and skips may still change.
func CanMutate(s models.OrderStatus) bool {
	return Known(s) && !IsTerminal(s)
}

func CheckMutable(s models.OrderStatus) error {
	if !CanMutate(s) {
		return apperr.Statef("order is %s and can no longer be changed", s)
	}
	return nil
}

// CanTransition reports whether actor may move an order from one status to another.
func CanTransition(from, to models.OrderStatus, actor Actor) bool {
	if !Known(from) || IsTerminal(from) {
		return false
	}
	if to == models.StatusCancelled {
		return true
	}
	return actor == ActorProcessor && fulfilment[from] == to
}

// Transition validates the move and returns the new status.
func Transition(from, to models.OrderStatus, actor Actor) (models.OrderStatus, error) {
	if !Known(to) {
		return from, apperr.Validationf("unknown order status %q", to)
	}
	if !CanTransition(from, to, actor) {
		return from, apperr.Statef("%s cannot move order from %s to %s", actor, from, to)
	}
	return to, nil
}

func Cancel(from models.OrderStatus) (models.OrderStatus, error) {
	return Transition(from, models.StatusCancelled, ActorCustomer)
}
