package models

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/yeremiapane/mealplan-app/apperr"
)

// MealTime is one of the day's delivery slots. It doubles as the meal
// category that delivery addresses are keyed by.
type MealTime string

const (
	MealTimeMorning MealTime = "morning"
	MealTimeMidday  MealTime = "midday"
	MealTimeEvening MealTime = "evening"
)

// AllMealTimes in delivery order.
var AllMealTimes = []MealTime{MealTimeMorning, MealTimeMidday, MealTimeEvening}

func (m MealTime) Valid() bool {
	return m.rank() >= 0
}

func (m MealTime) rank() int {
	switch m {
	case MealTimeMorning:
		return 0
	case MealTimeMidday:
		return 1
	case MealTimeEvening:
		return 2
	}
	return -1
}

// NormalizeMealTimes validates a selection and returns it deduplicated in
// delivery order. An empty selection is legal and yields an empty slice.
func NormalizeMealTimes(in []MealTime) ([]MealTime, error) {
	seen := make(map[MealTime]bool, len(in))
	out := make([]MealTime, 0, len(in))
	for _, m := range in {
		if !m.Valid() {
			return nil, apperr.Validationf("unknown meal time %q", m)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rank() < out[j].rank() })
	return out, nil
}

// Menu is a catalog entry. Lines hold a copy taken when they were created, so
// later catalog price changes never reach existing lines.
type Menu struct {
	ID             string                       `json:"id"`
	Name           string                       `json:"name"`
	MealTimePrices map[MealTime]decimal.Decimal `json:"meal_time_prices"`
	PerDayPrice    decimal.Decimal              `json:"per_day_price"`
}

// Snapshot returns a deep copy safe to embed in a line.
func (m Menu) Snapshot() Menu {
	cp := m
	if m.MealTimePrices != nil {
		cp.MealTimePrices = make(map[MealTime]decimal.Decimal, len(m.MealTimePrices))
		for k, v := range m.MealTimePrices {
			cp.MealTimePrices[k] = v
		}
	}
	return cp
}

type Plan struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DurationDays int    `json:"duration_days"`
}

func (p Plan) Validate() error {
	if p.DurationDays < 1 {
		return apperr.Validationf("plan %q must last at least one day", p.ID)
	}
	return nil
}
