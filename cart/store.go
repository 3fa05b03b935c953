// Package cart holds a customer's in-progress selections and keeps every
// line's dates and total consistent with its menu, plan and quantity.
package cart

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/models"
	"github.com/yeremiapane/mealplan-app/pricing"
	"github.com/yeremiapane/mealplan-app/scheduler"
)

// AddRequest describes a new line. Menu and Plan are copied into the line.
type AddRequest struct {
	UserID        string
	Menu          models.Menu
	Plan          models.Plan
	Quantity      int
	MealTimes     []models.MealTime
	StartDate     time.Time
	PersonDetails []models.PersonDetail
}

type Totals struct {
	Lines    int             `json:"lines"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

// Store owns the cart lines of every locally known user. Each mutation
// builds a new slice, persists it, then swaps it in. A failed save leaves
// the previous cart in place.
type Store struct {
	mutex       sync.RWMutex
	lines       []models.CartLine
	persistence Persistence
	newID       func() string
	log         logrus.FieldLogger
}

type Option func(*Store)

func WithPersistence(p Persistence) Option {
	return func(s *Store) { s.persistence = p }
}

func WithIDGenerator(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		persistence: nopPersistence{},
		newID:       uuid.NewString,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory cart with the persisted snapshot.
func (s *Store) Load(ctx context.Context) error {
	lines, err := s.persistence.Load(ctx)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	s.lines = lines
	s.mutex.Unlock()
	s.log.WithField("lines", len(lines)).Info("cart restored")
	return nil
}

func (s *Store) Add(ctx context.Context, req AddRequest) (models.CartLine, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return models.CartLine{}, apperr.Validation("user id is required")
	}
	if err := req.Plan.Validate(); err != nil {
		return models.CartLine{}, err
	}
	if req.StartDate.IsZero() {
		return models.CartLine{}, apperr.Validation("start date is required")
	}
	meals, err := models.NormalizeMealTimes(req.MealTimes)
	if err != nil {
		return models.CartLine{}, err
	}
	if err := checkPersonDetails(req.PersonDetails, req.Quantity); err != nil {
		return models.CartLine{}, err
	}

	line := models.CartLine{
		ID:            s.newID(),
		UserID:        req.UserID,
		Menu:          req.Menu.Snapshot(),
		Plan:          req.Plan,
		Quantity:      req.Quantity,
		MealTimes:     meals,
		StartDate:     models.CalendarDay(req.StartDate),
		PersonDetails: append([]models.PersonDetail(nil), req.PersonDetails...),
	}
	if line, err = reprice(line); err != nil {
		return models.CartLine{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	next := make([]models.CartLine, 0, len(s.lines)+1)
	next = append(next, s.lines...)
	next = append(next, line)
	if err := s.commit(ctx, next); err != nil {
		return models.CartLine{}, err
	}

	s.log.WithFields(logrus.Fields{
		"line_id": line.ID,
		"user_id": line.UserID,
		"menu_id": line.Menu.ID,
		"plan_id": line.Plan.ID,
		"total":   line.LineTotal.String(),
	}).Info("cart line added")
	return line.Clone(), nil
}

// UpdateQuantity changes the number of recipients. Person details beyond the
// new quantity are dropped.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) (models.CartLine, error) {
	if quantity < 1 {
		return models.CartLine{}, apperr.Validationf("quantity must be at least 1, got %d", quantity)
	}
	return s.mutate(ctx, lineID, func(l models.CartLine) (models.CartLine, error) {
		l.Quantity = quantity
		if len(l.PersonDetails) > quantity {
			l.PersonDetails = l.PersonDetails[:quantity]
		}
		return reprice(l)
	})
}

func (s *Store) UpdateMealTimes(ctx context.Context, lineID string, mealTimes []models.MealTime) (models.CartLine, error) {
	meals, err := models.NormalizeMealTimes(mealTimes)
	if err != nil {
		return models.CartLine{}, err
	}
	return s.mutate(ctx, lineID, func(l models.CartLine) (models.CartLine, error) {
		l.MealTimes = meals
		return reprice(l)
	})
}

func (s *Store) UpdateStartDate(ctx context.Context, lineID string, start time.Time) (models.CartLine, error) {
	if start.IsZero() {
		return models.CartLine{}, apperr.Validation("start date is required")
	}
	return s.mutate(ctx, lineID, func(l models.CartLine) (models.CartLine, error) {
		l.StartDate = models.CalendarDay(start)
		return reprice(l)
	})
}

// UpdatePersonDetails stores the recipients' contacts. Fewer entries than the
// quantity is allowed while the customer is still filling them in.
func (s *Store) UpdatePersonDetails(ctx context.Context, lineID string, details []models.PersonDetail) (models.CartLine, error) {
	return s.mutate(ctx, lineID, func(l models.CartLine) (models.CartLine, error) {
		if err := checkPersonDetails(details, l.Quantity); err != nil {
			return l, err
		}
		l.PersonDetails = append([]models.PersonDetail(nil), details...)
		return l, nil
	})
}

func (s *Store) Remove(ctx context.Context, lineID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	idx := s.indexOf(lineID)
	if idx < 0 {
		return apperr.NotFoundf("cart line %s not found", lineID)
	}
	next := make([]models.CartLine, 0, len(s.lines)-1)
	next = append(next, s.lines[:idx]...)
	next = append(next, s.lines[idx+1:]...)
	return s.commit(ctx, next)
}

// RemoveLines drops the given lines in one swap. Unknown ids are ignored.
func (s *Store) RemoveLines(ctx context.Context, lineIDs ...string) error {
	drop := make(map[string]bool, len(lineIDs))
	for _, id := range lineIDs {
		drop[id] = true
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	next := make([]models.CartLine, 0, len(s.lines))
	for _, l := range s.lines {
		if !drop[l.ID] {
			next = append(next, l)
		}
	}
	return s.commit(ctx, next)
}

// Clear drops every line owned by userID.
func (s *Store) Clear(ctx context.Context, userID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	next := make([]models.CartLine, 0, len(s.lines))
	for _, l := range s.lines {
		if l.UserID != userID {
			next = append(next, l)
		}
	}
	return s.commit(ctx, next)
}

// Get returns a copy of a line.
func (s *Store) Get(lineID string) (models.CartLine, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	idx := s.indexOf(lineID)
	if idx < 0 {
		return models.CartLine{}, false
	}
	return s.lines[idx].Clone(), true
}

// Lines returns copies of userID's lines in insertion order.
func (s *Store) Lines(userID string) []models.CartLine {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []models.CartLine
	for _, l := range s.lines {
		if l.UserID == userID {
			out = append(out, l.Clone())
		}
	}
	return out
}

func (s *Store) Totals(userID string) Totals {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t := Totals{Amount: decimal.Zero}
	for _, l := range s.lines {
		if l.UserID != userID {
			continue
		}
		t.Lines++
		t.Quantity += l.Quantity
		t.Amount = t.Amount.Add(l.LineTotal)
	}
	return t
}

func (s *Store) mutate(ctx context.Context, lineID string, fn func(models.CartLine) (models.CartLine, error)) (models.CartLine, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	idx := s.indexOf(lineID)
	if idx < 0 {
		return models.CartLine{}, apperr.NotFoundf("cart line %s not found", lineID)
	}
	updated, err := fn(s.lines[idx].Clone())
	if err != nil {
		return models.CartLine{}, err
	}

	next := make([]models.CartLine, len(s.lines))
	copy(next, s.lines)
	next[idx] = updated
	if err := s.commit(ctx, next); err != nil {
		return models.CartLine{}, err
	}
	return updated.Clone(), nil
}

// commit must be called with the write lock held.
func (s *Store) commit(ctx context.Context, next []models.CartLine) error {
	if err := s.persistence.Save(ctx, next); err != nil {
		s.log.WithError(err).Error("cart not saved")
		return err
	}
	s.lines = next
	return nil
}

func (s *Store) indexOf(lineID string) int {
	for i, l := range s.lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

func reprice(l models.CartLine) (models.CartLine, error) {
	total, err := pricing.LineTotal(l.Menu, l.Plan, l.Quantity, l.MealTimes)
	if err != nil {
		return l, err
	}
	l.LineTotal = total
	l.EndDate = scheduler.InitialSchedule(l.StartDate, l.Plan)
	return l, nil
}

func checkPersonDetails(details []models.PersonDetail, quantity int) error {
	if len(details) > quantity {
		return apperr.Validationf("%d recipients given for quantity %d", len(details), quantity)
	}
	for _, d := range details {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}
