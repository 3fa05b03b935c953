// Package pricing computes line and checkout totals. Every function is pure.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/models"
)

var (
	PlatformFeeRate = decimal.RequireFromString("0.10")
	GSTRate         = decimal.RequireFromString("0.05")
)

// Line is the slice of a cart line or order item that checkout totals need.
type Line struct {
	DurationDays int
	MealTimes    []models.MealTime
	Total        decimal.Decimal
}

// Breakdown holds every figure shown at checkout.
type Breakdown struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	DeliveryCost decimal.Decimal `json:"delivery_cost"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	GST          decimal.Decimal `json:"gst"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
}

// LineTotal prices quantity recipients over the whole plan. A meal time the
// menu has no price for contributes zero. With no meal times selected the
// menu's per-day price applies.
func LineTotal(menu models.Menu, plan models.Plan, quantity int, mealTimes []models.MealTime) (decimal.Decimal, error) {
	if quantity < 1 {
		return decimal.Zero, apperr.Validationf("quantity must be at least 1, got %d", quantity)
	}

	perDay := menu.PerDayPrice
	if len(mealTimes) > 0 {
		perDay = decimal.Zero
		for _, m := range mealTimes {
			perDay = perDay.Add(menu.MealTimePrices[m])
		}
	}

	return perDay.Mul(decimal.NewFromInt(int64(quantity))).Mul(decimal.NewFromInt(int64(plan.DurationDays))), nil
}

// DeliveryCost charges rate per selected meal time per plan day. Lines with
// no meal times selected are delivered free.
func DeliveryCost(lines []Line, rate decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		meals := int64(l.DurationDays) * int64(len(l.MealTimes))
		total = total.Add(rate.Mul(decimal.NewFromInt(meals)))
	}
	return total
}

func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total)
	}
	return total
}

func PlatformFee(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(PlatformFeeRate)
}

func GST(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(GSTRate)
}

func GrandTotal(subtotal, delivery, platform, gst decimal.Decimal) decimal.Decimal {
	return subtotal.Add(delivery).Add(platform).Add(gst)
}

// Quote computes the full checkout breakdown for lines.
func Quote(lines []Line, deliveryRate decimal.Decimal) Breakdown {
	subtotal := Subtotal(lines)
	delivery := DeliveryCost(lines, deliveryRate)
	platform := PlatformFee(subtotal)
	gst := GST(subtotal)
	return Breakdown{
		Subtotal:     subtotal,
		DeliveryCost: delivery,
		PlatformFee:  platform,
		GST:          gst,
		GrandTotal:   GrandTotal(subtotal, delivery, platform, gst),
	}
}

func FromCartLines(lines []models.CartLine) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, Line{DurationDays: l.Plan.DurationDays, MealTimes: l.MealTimes, Total: l.LineTotal})
	}
	return out
}

func FromOrderItems(items []models.OrderItem) []Line {
	out := make([]Line, 0, len(items))
	for _, it := range items {
		out = append(out, Line{DurationDays: it.Plan.DurationDays, MealTimes: it.MealTimes, Total: it.LineTotal})
	}
	return out
}
