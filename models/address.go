package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yeremiapane/mealplan-app/apperr"
)

type DeliveryAddress struct {
	Street     string   `json:"street"`
	City       string   `json:"city"`
	PostalCode string   `json:"postal_code"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	TimeSlot   string   `json:"time_slot,omitempty"`
}

// ServiceArea is the single city deliveries are made in.
type ServiceArea struct {
	City          string
	PostalPattern *regexp.Regexp
}

func NewServiceArea(city, postalPattern string) (ServiceArea, error) {
	re, err := regexp.Compile(postalPattern)
	if err != nil {
		return ServiceArea{}, fmt.Errorf("invalid postal code pattern %q: %w", postalPattern, err)
	}
	return ServiceArea{City: city, PostalPattern: re}, nil
}

// DefaultServiceArea is Bengaluru with its 560xxx PIN codes.
func DefaultServiceArea() ServiceArea {
	return ServiceArea{City: "Bengaluru", PostalPattern: regexp.MustCompile(`^560\d{3}$`)}
}

// Problem returns why the address cannot be delivered to, or "" if it can.
func (a ServiceArea) Problem(addr DeliveryAddress) string {
	switch {
	case strings.TrimSpace(addr.Street) == "":
		return "street is required"
	case !strings.EqualFold(strings.TrimSpace(addr.City), a.City):
		return fmt.Sprintf("city must be %s", a.City)
	case a.PostalPattern != nil && !a.PostalPattern.MatchString(strings.TrimSpace(addr.PostalCode)):
		return fmt.Sprintf("postal code %q is not in %s", addr.PostalCode, a.City)
	}
	return ""
}

func (a ServiceArea) Validate(addr DeliveryAddress) error {
	if p := a.Problem(addr); p != "" {
		return apperr.Validation(p)
	}
	return nil
}

// ValidateCoverage checks that every category has a deliverable address. The
// error names every category that is missing or invalid.
func (a ServiceArea) ValidateCoverage(categories []MealTime, addrs map[MealTime]DeliveryAddress) error {
	var problems []string
	for _, cat := range categories {
		addr, ok := addrs[cat]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: missing delivery address", cat))
			continue
		}
		if p := a.Problem(addr); p != "" {
			problems = append(problems, fmt.Sprintf("%s: %s", cat, p))
		}
	}
	if len(problems) > 0 {
		return apperr.Validationf("delivery address incomplete for %s", strings.Join(problems, "; "))
	}
	return nil
}

// Categories returns the meal categories selected anywhere in lines, in
// delivery order.
func Categories(selections ...[]MealTime) []MealTime {
	seen := make(map[MealTime]bool)
	for _, sel := range selections {
		for _, m := range sel {
			seen[m] = true
		}
	}
	out := make([]MealTime, 0, len(seen))
	for _, m := range AllMealTimes {
		if seen[m] {
			out = append(out, m)
		}
	}
	return out
}
