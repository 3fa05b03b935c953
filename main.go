package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/mealplan-app/config"
	"github.com/yeremiapane/mealplan-app/hub"
	"github.com/yeremiapane/mealplan-app/middlewares"
	"github.com/yeremiapane/mealplan-app/router"
	"github.com/yeremiapane/mealplan-app/services"
	"github.com/yeremiapane/mealplan-app/utils"
)

// Unpaid orders are cancelled after this long.
const paymentExpiry = 24 * time.Hour

func main() {
	utils.InitLogger()

	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	utils.InfoLogger.WithField("driver", cfg.DBDriver).Info("database ready")

	area, err := cfg.ServiceArea()
	if err != nil {
		utils.ErrorLogger.Fatal(err)
	}

	midtransCfg := services.MidtransConfig{
		ServerKey:    cfg.MidtransServerKey,
		ClientKey:    cfg.MidtransClientKey,
		IsProduction: cfg.IsProduction(),
	}
	if err := midtransCfg.Validate(); err != nil {
		utils.ErrorLogger.Fatalf("Midtrans: %v", err)
	}
	midtrans := services.NewMidtransService(midtransCfg, utils.InfoLogger)

	orderHub := hub.New(utils.InfoLogger)
	orders := services.NewOrderService(db, midtrans, orderHub, services.OrderServiceConfig{
		ServiceArea:  area,
		DeliveryRate: cfg.DeliveryRate,
		Currency:     cfg.Currency,
	}, utils.InfoLogger)

	paymentMonitor := services.NewPaymentMonitor(orders, cfg.PaymentRecheck, paymentExpiry, utils.InfoLogger)
	paymentMonitor.Start()
	defer paymentMonitor.Stop()

	deps := router.Deps{
		Orders:        orders,
		Signature:     midtrans,
		Hub:           orderHub,
		JWTSecret:     []byte(cfg.JWTSecret),
		AllowedOrigin: cfg.AllowedOrigin,
	}
	if cfg.RateLimitPerSec > 0 {
		deps.RateLimiter = middlewares.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
	}
	r := router.SetupRouter(deps)
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		utils.ErrorLogger.Fatal(err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.ErrorLogger.WithError(err).Error("shutdown")
	}
	utils.InfoLogger.Info("server stopped")
}
