package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.PaymentCheck{}))
	return db
}

type fakeProvider struct {
	mutex      sync.Mutex
	sessionErr error
	report     PaymentReport
	checkErr   error
	checks     int
}

func (f *fakeProvider) CreateSession(ctx context.Context, order models.Order) (PaymentSession, error) {
	if f.sessionErr != nil {
		return PaymentSession{}, f.sessionErr
	}
	return PaymentSession{SessionID: "snap-" + order.ID, RedirectURL: "https://pay.example/" + order.ID}, nil
}

func (f *fakeProvider) CheckStatus(ctx context.Context, order models.Order) (PaymentReport, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.checks++
	if f.checkErr != nil {
		return PaymentReport{}, f.checkErr
	}
	return f.report, nil
}

type recordingPublisher struct {
	mutex    sync.Mutex
	orders   []models.Order
	payments []models.PaymentCheck
}

func (p *recordingPublisher) BroadcastOrderUpdate(o models.Order) {
	p.mutex.Lock()
	p.orders = append(p.orders, o)
	p.mutex.Unlock()
}

func (p *recordingPublisher) BroadcastPaymentUpdate(o models.Order, c models.PaymentCheck) {
	p.mutex.Lock()
	p.payments = append(p.payments, c)
	p.mutex.Unlock()
}

type testEnv struct {
	db        *gorm.DB
	svc       *OrderService
	provider  *fakeProvider
	publisher *recordingPublisher
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:        setupTestDB(t),
		provider:  &fakeProvider{report: PaymentReport{Status: models.PaymentStatusSuccess}},
		publisher: &recordingPublisher{},
		now:       time.Date(2024, 1, 12, 9, 30, 0, 0, time.UTC),
	}
	env.svc = NewOrderService(env.db, env.provider, env.publisher, OrderServiceConfig{
		ServiceArea:  models.DefaultServiceArea(),
		DeliveryRate: dec(10),
		Currency:     "INR",
		Now:          func() time.Time { return env.now },
	}, quietLogger())
	return env
}

func bengaluru() models.DeliveryAddress {
	return models.DeliveryAddress{Street: "12 MG Road", City: "Bengaluru", PostalCode: "560001"}
}

// validPayload is one weekly line for two people, morning and midday.
func validPayload() models.OrderPayload {
	return models.OrderPayload{
		UserID: "u1",
		Items: []models.OrderItem{{
			Menu: models.Menu{
				ID:   "thali",
				Name: "Veg Thali",
				MealTimePrices: map[models.MealTime]decimal.Decimal{
					models.MealTimeMorning: dec(100),
					models.MealTimeMidday:  dec(150),
				},
			},
			Plan:          models.Plan{ID: "week", Name: "Weekly", DurationDays: 7},
			Quantity:      2,
			MealTimes:     []models.MealTime{models.MealTimeMorning, models.MealTimeMidday},
			StartDate:     day(2024, 1, 10),
			EndDate:       day(2024, 1, 16),
			LineTotal:     dec(3500),
			PersonDetails: []models.PersonDetail{{Name: "Asha", Phone: "9800000001"}},
			SkippedDates:  []time.Time{},
		}},
		DeliveryAddresses: map[models.MealTime]models.DeliveryAddress{
			models.MealTimeMorning: bengaluru(),
			models.MealTimeMidday:  bengaluru(),
		},
		PaymentMethod: "upi",
		Subtotal:      dec(3500),
		DeliveryCost:  dec(140),
		PlatformFee:   dec(350),
		GST:           dec(175),
		TotalAmount:   dec(4165),
		Currency:      "INR",
	}
}

var customer = Viewer{UserID: "u1"}

func createOrder(t *testing.T, env *testEnv) models.CreateOrderResult {
	t.Helper()
	res, err := env.svc.Create(context.Background(), customer, validPayload())
	require.NoError(t, err)
	return res
}

func TestCreateOrderPersistsPendingOrder(t *testing.T) {
	env := newTestEnv(t)
	res := createOrder(t, env)

	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, "snap-"+res.OrderID, res.PaymentSessionID)

	got, err := env.svc.Get(context.Background(), customer, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.TotalAmount.Equal(dec(4165)), got.TotalAmount.String())
	require.Len(t, got.Items, 1)
	assert.NotEmpty(t, got.Items[0].ID)
	assert.Equal(t, day(2024, 1, 16), got.Items[0].EndDate.UTC())
	assert.Equal(t, "Asha", got.Items[0].PersonDetails[0].Name)
	assert.Equal(t, "560001", got.DeliveryAddresses[models.MealTimeMidday].PostalCode)
	assert.Len(t, env.publisher.orders, 1)
}

func TestCreateOrderRejectsTamperedPayload(t *testing.T) {
	cases := map[string]func(p *models.OrderPayload){
		"line total":     func(p *models.OrderPayload) { p.Items[0].LineTotal = dec(100) },
		"end date":       func(p *models.OrderPayload) { p.Items[0].EndDate = day(2024, 1, 20) },
		"grand total":    func(p *models.OrderPayload) { p.TotalAmount = dec(1) },
		"delivery cost":  func(p *models.OrderPayload) { p.DeliveryCost = dec(0) },
		"missing addr":   func(p *models.OrderPayload) { delete(p.DeliveryAddresses, models.MealTimeMorning) },
		"outside city":   func(p *models.OrderPayload) { p.DeliveryAddresses[models.MealTimeMidday] = models.DeliveryAddress{Street: "x", City: "Mumbai", PostalCode: "400001"} },
		"no items":       func(p *models.OrderPayload) { p.Items = nil },
		"no method":      func(p *models.OrderPayload) { p.PaymentMethod = "" },
		"other user":     func(p *models.OrderPayload) { p.UserID = "u2" },
		"pre-skipped":    func(p *models.OrderPayload) { p.Items[0].SkippedDates = []time.Time{day(2024, 1, 11)} },
		"too many names": func(p *models.OrderPayload) { p.Items[0].Quantity = 1 },
		"currency":       func(p *models.OrderPayload) { p.Currency = "USD" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			p := validPayload()
			p.Items[0].PersonDetails = append(p.Items[0].PersonDetails, models.PersonDetail{Name: "Ravi", Phone: "9800000002"})
			mutate(&p)

			_, err := env.svc.Create(context.Background(), customer, p)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "%v", err)

			var count int64
			env.db.Model(&models.Order{}).Count(&count)
			assert.Zero(t, count)
		})
	}
}

func TestCreateOrderRollsBackWhenSessionFails(t *testing.T) {
	env := newTestEnv(t)
	env.provider.sessionErr = errors.New("midtrans down")

	_, err := env.svc.Create(context.Background(), customer, validPayload())
	assert.True(t, apperr.Is(err, apperr.KindPayment))

	var count int64
	env.db.Model(&models.Order{}).Count(&count)
	assert.Zero(t, count)
}

func TestGetHidesOtherCustomersOrders(t *testing.T) {
	env := newTestEnv(t)
	res := createOrder(t, env)

	_, err := env.svc.Get(context.Background(), Viewer{UserID: "u2"}, res.OrderID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = env.svc.Get(context.Background(), Viewer{UserID: "staff", Processor: true}, res.OrderID)
	assert.NoError(t, err)
}

func TestListScopesToOwner(t *testing.T) {
	env := newTestEnv(t)
	createOrder(t, env)
	createOrder(t, env)

	mine, err := env.svc.List(context.Background(), customer, "")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := env.svc.List(context.Background(), Viewer{UserID: "u2"}, "")
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = env.svc.List(context.Background(), customer, "shipped")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpdateSkipExtendsItem(t *testing.T) {
	env := newTestEnv(t)
	res := createOrder(t, env)
	itemID := res.Order.Items[0].ID

	target, end := day(2024, 1, 13), day(2024, 1, 17)
	order, err := env.svc.Update(context.Background(), customer, res.OrderID, models.OrderPatch{
		ItemID: itemID, SkippedDate: &target, NewEndDate: &end,
	})
	require.NoError(t, err)
	it, _ := order.Item(itemID)
	assert.Equal(t, day(2024, 1, 17), it.EndDate)

	stored, err := env.svc.Get(context.Background(), customer, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 17), stored.Items[0].EndDate.UTC())
	require.Len(t, stored.Items[0].SkippedDates, 1)
	assert.True(t, models.SameDay(target, stored.Items[0].SkippedDates[0]))

	_, err = env.svc.Update(context.Background(), customer, res.OrderID, models.OrderPatch{
		ItemID: itemID, SkippedDate: &target, NewEndDate: &end,
	})
	assert.True(t, apperr.Is(err, apperr.KindState))
}

func TestUpdateSkipRejectsWrongEndDate(t *testing.T) {
	env := newTestEnv(t)
	res := createOrder(t, env)

	target, end := day(2024, 1, 13), day(2024, 1, 20)
	_, err := env.svc.Update(context.Background(), customer, res.OrderID, models.OrderPatch{
		ItemID: res.Order.Items[0].ID, SkippedDate: &target, NewEndDate: &end,
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpdateStatusByActor(t *testing.T) {
	env := newTestEnv(t)
	res := createOrder(t, env)
	staff := Viewer{UserID: "s1", Processor: true}

	confirmed := models.StatusConfirmed
	_, err := env.svc.Update(context.Background(), customer, res.OrderID, models.OrderPatch{Status: &confirmed})
	assert.True(t, apperr.Is(err, apperr.KindState))

	order, err := env.svc.Update(context.Background(), staff, res.OrderID, models.OrderPatch{Status: &confirmed})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, order.Status)

	cancelled := models.StatusCancelled
	order, err = env.svc.Update(context.Background(), customer, res.OrderID, models.OrderPatch{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, order.Status)

	addrs := map[models.MealTime]models.DeliveryAddress{models.MealTimeMorning: bengaluru(), models.MealTimeMidday: bengaluru()}
	_, err = env.svc.Update(context.Background(), customer, res.OrderID, models.OrderPatch{DeliveryAddresses: addrs})
	assert.True(t, apperr.Is(err, apperr.KindState))
}

func TestUpdateAddresses(t *testing.T) {
	env := newTestEnv(t)
	res := createOrder(t, env)

	moved := bengaluru()
	moved.Street = "5 Brigade Road"
	addrs := map[models.MealTime]models.DeliveryAddress{
		models.MealTimeMorning: moved,
		models.MealTimeMidday:  bengaluru(),
		models.MealTimeEvening: bengaluru(),
	}
	order, err := env.svc.Update(context.Background(), customer, res.OrderID, models.OrderPatch{DeliveryAddresses: addrs})
	require.NoError(t, err)
	assert.Equal(t, "5 Brigade Road", order.DeliveryAddresses[models.MealTimeMorning].Street)
	assert.NotContains(t, order.DeliveryAddresses, models.MealTimeEvening)

	_, err = env.svc.Update(context.Background(), customer, res.OrderID, models.OrderPatch{
		DeliveryAddresses: map[models.MealTime]models.DeliveryAddress{models.MealTimeMorning: moved},
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpdateRejectsMixedPatch(t *testing.T) {
	env := newTestEnv(t)
	res := createOrder(t, env)
	status := models.StatusCancelled

	_, err := env.svc.Update(context.Background(), customer, res.OrderID, models.OrderPatch{
		Status:            &status,
		DeliveryAddresses: map[models.MealTime]models.DeliveryAddress{},
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestVerifyPaymentIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	res := createOrder(t, env)

	first, err := env.svc.VerifyPayment(context.Background(), customer, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, first.Order.Status)
	assert.NotNil(t, first.Order.PaymentVerifiedAt)

	second, err := env.svc.VerifyPayment(context.Background(), customer, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, second.Order.Status)

	assert.Equal(t, 1, env.provider.checks)
	checks, err := env.svc.PaymentChecks(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Len(t, checks, 1)
}

func TestVerifyPaymentOutcomes(t *testing.T) {
	cases := []struct {
		report PaymentReport
		status models.OrderStatus
	}{
		{PaymentReport{Status: models.PaymentStatusFailed, Message: "deny"}, models.StatusCancelled},
		{PaymentReport{Status: models.PaymentStatusPending}, models.StatusPending},
		{PaymentReport{Status: models.PaymentStatusUnknown}, models.StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.report.Status, func(t *testing.T) {
			env := newTestEnv(t)
			env.provider.report = tc.report
			res := createOrder(t, env)

			out, err := env.svc.VerifyPayment(context.Background(), customer, res.OrderID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, out.Order.Status)
			assert.NotEmpty(t, out.Message)
			assert.Len(t, env.publisher.payments, 1)
		})
	}
}

func TestVerifyPaymentProviderDown(t *testing.T) {
	env := newTestEnv(t)
	env.provider.checkErr = errors.New("timeout")
	res := createOrder(t, env)

	_, err := env.svc.VerifyPayment(context.Background(), customer, res.OrderID)
	assert.True(t, apperr.Is(err, apperr.KindNetwork))

	order, err := env.svc.Get(context.Background(), customer, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)
}

func TestExpireUnpaid(t *testing.T) {
	env := newTestEnv(t)
	res := createOrder(t, env)

	n, err := env.svc.ExpireUnpaid(context.Background(), env.now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = env.svc.ExpireUnpaid(context.Background(), env.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	order, err := env.svc.Get(context.Background(), customer, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, order.Status)
}
