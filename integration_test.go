package main

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/mealplan-app/cart"
	"github.com/yeremiapane/mealplan-app/checkout"
	"github.com/yeremiapane/mealplan-app/config"
	"github.com/yeremiapane/mealplan-app/hub"
	"github.com/yeremiapane/mealplan-app/models"
	"github.com/yeremiapane/mealplan-app/orderapi"
	"github.com/yeremiapane/mealplan-app/orders"
	"github.com/yeremiapane/mealplan-app/router"
	"github.com/yeremiapane/mealplan-app/scheduler"
	"github.com/yeremiapane/mealplan-app/services"
	"github.com/yeremiapane/mealplan-app/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	os.Exit(m.Run())
}

var (
	testSecret = []byte("integration-secret")
	testNow    = time.Date(2024, 1, 12, 9, 0, 0, 0, time.UTC)
)

type approvingProvider struct{}

func (approvingProvider) CreateSession(ctx context.Context, order models.Order) (services.PaymentSession, error) {
	return services.PaymentSession{SessionID: "snap-" + order.ID, RedirectURL: "https://pay.example/" + order.ID}, nil
}

func (approvingProvider) CheckStatus(ctx context.Context, order models.Order) (services.PaymentReport, error) {
	return services.PaymentReport{Status: models.PaymentStatusSuccess, Message: "settlement"}, nil
}

type instantGateway struct{}

func (instantGateway) Begin(ctx context.Context, sessionID string) (<-chan checkout.PaymentOutcome, error) {
	out := make(chan checkout.PaymentOutcome, 1)
	out <- checkout.PaymentOutcome{Success: true}
	close(out)
	return out, nil
}

// TestEndToEndIntegration runs the customer flow against a live router:
// 1. Fill the cart
// 2. Checkout => order confirmed, cart emptied
// 3. Skip a delivery day => end date moves out
// 4. Cancel the order
func TestEndToEndIntegration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	db := setupTestDB(t)
	rate := decimal.NewFromInt(10)
	svc := services.NewOrderService(db, approvingProvider{}, nil, services.OrderServiceConfig{
		DeliveryRate: rate,
		Now:          func() time.Time { return testNow },
	}, quiet)

	srv := httptest.NewServer(router.SetupRouter(router.Deps{
		Orders:        svc,
		Signature:     services.NewMidtransService(services.MidtransConfig{ServerKey: "server-key"}, quiet),
		Hub:           hub.New(quiet),
		JWTSecret:     testSecret,
		AllowedOrigin: "*",
	}))
	defer srv.Close()

	token, err := utils.GenerateToken(testSecret, "u1", utils.RoleCustomer, time.Hour)
	require.NoError(t, err)
	api := orderapi.NewClient(srv.URL, token, orderapi.WithLogger(quiet))
	ctx := context.Background()

	// 1. Fill the cart
	store := cart.NewStore(cart.WithPersistence(cart.NewFilePersistence(t.TempDir())), cart.WithLogger(quiet))
	line, err := store.Add(ctx, cart.AddRequest{
		UserID: "u1",
		Menu: models.Menu{
			ID:   "thali",
			Name: "South Indian Thali",
			MealTimePrices: map[models.MealTime]decimal.Decimal{
				models.MealTimeMorning: decimal.NewFromInt(100),
				models.MealTimeMidday:  decimal.NewFromInt(150),
			},
		},
		Plan:      models.Plan{ID: "7d", Name: "Weekly", DurationDays: 7},
		Quantity:  2,
		MealTimes: []models.MealTime{models.MealTimeMorning, models.MealTimeMidday},
		StartDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3500).Equal(line.LineTotal))

	// 2. Checkout
	addr := models.DeliveryAddress{Street: "4 Residency Road", City: "Bengaluru", PostalCode: "560025"}
	orch := checkout.New(api, instantGateway{}, checkout.Config{DeliveryRate: rate, Logger: quiet})
	order, err := orch.Checkout(ctx, store, "u1", map[models.MealTime]models.DeliveryAddress{
		models.MealTimeMorning: addr,
		models.MealTimeMidday:  addr,
	}, "upi")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, order.Status)
	assert.True(t, decimal.NewFromInt(4165).Equal(order.TotalAmount), order.TotalAmount.String())
	assert.Empty(t, store.Lines("u1"))
	require.Len(t, order.Items, 1)

	// 3. Skip a delivery day
	mgr := orders.NewManager(api, scheduler.New(func() time.Time { return testNow }), models.DefaultServiceArea(), quiet)
	skipped, err := mgr.Skip(ctx, order, order.Items[0].ID, time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, models.SameDay(time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), skipped.Items[0].EndDate))
	assert.Len(t, skipped.Items[0].SkippedDates, 1)

	// 4. Cancel
	cancelled, err := mgr.Cancel(ctx, skipped)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = mgr.Skip(ctx, cancelled, order.Items[0].ID, time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)

	checks, err := svc.PaymentChecks(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, checks, 1)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, config.AutoMigrate(db))
	return db
}
