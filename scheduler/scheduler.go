// Package scheduler derives delivery date ranges and applies skip-a-day
// adjustments to placed order items.
package scheduler

import (
	"time"

	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/models"
)

// InitialSchedule returns the last delivery day of a plan starting on start.
func InitialSchedule(start time.Time, plan models.Plan) time.Time {
	return models.AddDays(start, plan.DurationDays-1)
}

// IsSkipEligible reports whether target may be skipped. Either the item must
// be running today or the target must be the item's first day, and target
// must not have been skipped already.
func IsSkipEligible(today, itemStart, itemEnd time.Time, skipped []time.Time, target time.Time) bool {
	today = models.CalendarDay(today)
	start := models.CalendarDay(itemStart)
	end := models.CalendarDay(itemEnd)

	running := !today.Before(start) && !today.After(end)
	if !running && !models.SameDay(start, target) {
		return false
	}
	return !containsDay(skipped, target)
}

func containsDay(days []time.Time, target time.Time) bool {
	for _, d := range days {
		if models.SameDay(d, target) {
			return true
		}
	}
	return false
}

// Scheduler applies skips against the current date reported by its clock.
type Scheduler struct {
	now func() time.Time
}

func New(now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{now: now}
}

func (s *Scheduler) Today() time.Time {
	return models.CalendarDay(s.now())
}

func (s *Scheduler) IsEligible(item models.OrderItem, target time.Time) bool {
	return IsSkipEligible(s.Today(), item.StartDate, item.EndDate, item.SkippedDates, target)
}

// ApplySkip returns a copy of item with target recorded as skipped and the
// end date pushed out one day. item itself is left untouched.
func (s *Scheduler) ApplySkip(item models.OrderItem, target time.Time) (models.OrderItem, error) {
	return ApplySkipAt(s.Today(), item, target)
}

// ApplySkipAt is ApplySkip with an explicit current date.
func ApplySkipAt(today time.Time, item models.OrderItem, target time.Time) (models.OrderItem, error) {
	if !IsSkipEligible(today, item.StartDate, item.EndDate, item.SkippedDates, target) {
		if containsDay(item.SkippedDates, target) {
			return item, apperr.Statef("%s is already skipped for item %s", target.Format(time.DateOnly), item.ID)
		}
		return item, apperr.Statef("%s cannot be skipped for item %s", target.Format(time.DateOnly), item.ID)
	}

	updated := item.Clone()
	updated.SkippedDates = append(updated.SkippedDates, models.CalendarDay(target))
	updated.EndDate = models.AddDays(item.EndDate, 1)
	return updated, nil
}

// DeliveryDates lists every day the item is actually delivered on.
func DeliveryDates(item models.OrderItem) []time.Time {
	start := models.CalendarDay(item.StartDate)
	end := models.CalendarDay(item.EndDate)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !containsDay(item.SkippedDates, d) {
			days = append(days, d)
		}
	}
	return days
}
