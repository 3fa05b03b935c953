package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yeremiapane/mealplan-app/apperr"
)

// PersonDetail is the contact of one recipient. A line expects one entry per
// unit of quantity.
type PersonDetail struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (p PersonDetail) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("recipient name is required")
	}
	if strings.TrimSpace(p.Phone) == "" {
		return apperr.Validationf("phone is required for recipient %s", p.Name)
	}
	return nil
}

// CartLine is one priced cart entry for a menu+plan+date+meal-time selection.
type CartLine struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Menu          Menu            `json:"menu"`
	Plan          Plan            `json:"plan"`
	Quantity      int             `json:"quantity"`
	MealTimes     []MealTime      `json:"meal_times"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	LineTotal     decimal.Decimal `json:"line_total"`
	PersonDetails []PersonDetail  `json:"person_details,omitempty"`
}

// Clone copies the slices so the result shares no backing arrays with l.
func (l CartLine) Clone() CartLine {
	cp := l
	cp.Menu = l.Menu.Snapshot()
	cp.MealTimes = append([]MealTime(nil), l.MealTimes...)
	if l.PersonDetails != nil {
		cp.PersonDetails = append([]PersonDetail(nil), l.PersonDetails...)
	}
	return cp
}
