package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/yeremiapane/mealplan-app/models"
	"github.com/yeremiapane/mealplan-app/utils"
)

// RenderInvoice writes a one page PDF invoice for order.
func RenderInvoice(w io.Writer, order models.Order, compress bool) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetTitle("Invoice "+order.ID, false)
	pdf.SetCreationDate(order.CreatedAt)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Meal plan invoice")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, "Order: "+order.ID)
	pdf.Ln(6)
	pdf.Cell(0, 6, "Placed: "+order.CreatedAt.Format(time.DateOnly))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Status: "+string(order.Status))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 10)
	header := []struct {
		title string
		width float64
	}{
		{"Menu", 50}, {"Plan", 30}, {"Qty", 12}, {"Meals", 38}, {"Dates", 35}, {"Total", 25},
	}
	for _, h := range header {
		pdf.CellFormat(h.width, 7, h.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, it := range order.Items {
		meals := make([]string, 0, len(it.MealTimes))
		for _, m := range it.MealTimes {
			meals = append(meals, string(m))
		}
		if len(meals) == 0 {
			meals = append(meals, "per day")
		}
		row := []string{
			it.Menu.Name,
			it.Plan.Name,
			fmt.Sprintf("%d", it.Quantity),
			strings.Join(meals, ", "),
			it.StartDate.Format("02 Jan") + " - " + it.EndDate.Format("02 Jan"),
			utils.FormatCurrency(it.LineTotal, order.Currency),
		}
		for i, cell := range row {
			align := "L"
			if i == len(row)-1 {
				align = "R"
			}
			pdf.CellFormat(header[i].width, 7, cell, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
		if len(it.SkippedDates) > 0 {
			skipped := make([]string, 0, len(it.SkippedDates))
			for _, d := range it.SkippedDates {
				skipped = append(skipped, d.Format("02 Jan"))
			}
			pdf.CellFormat(190, 6, "Skipped: "+strings.Join(skipped, ", "), "LR", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)

	totals := []struct {
		label string
		value string
	}{
		{"Subtotal", utils.FormatCurrency(order.Subtotal, order.Currency)},
		{"Delivery", utils.FormatCurrency(order.DeliveryCost, order.Currency)},
		{"Platform fee", utils.FormatCurrency(order.PlatformFee, order.Currency)},
		{"GST", utils.FormatCurrency(order.GST, order.Currency)},
		{"Total", utils.FormatCurrency(order.TotalAmount, order.Currency)},
	}
	for i, t := range totals {
		if i == len(totals)-1 {
			pdf.SetFont("Helvetica", "B", 10)
		}
		pdf.CellFormat(150, 6, t.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, t.value, "", 1, "R", false, 0, "")
	}

	if len(order.DeliveryAddresses) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 6, "Delivery")
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 9)
		for _, cat := range models.AllMealTimes {
			addr, ok := order.DeliveryAddresses[cat]
			if !ok {
				continue
			}
			line := fmt.Sprintf("%s: %s, %s %s", cat, addr.Street, addr.City, addr.PostalCode)
			if addr.TimeSlot != "" {
				line += " (" + addr.TimeSlot + ")"
			}
			pdf.Cell(0, 5, line)
			pdf.Ln(5)
		}
	}

	return pdf.Output(w)
}
