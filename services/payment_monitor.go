package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/mealplan-app/models"
)

// PaymentMetrics counts what the monitor has seen since it started.
type PaymentMetrics struct {
	Checked   int64
	Confirmed int64
	Failed    int64
	Pending   int64
	Errors    int64
	Expired   int64
}

// PaymentMonitor re-verifies pending orders on an interval so that orders
// whose customer never returned from the payment page still settle.
type PaymentMonitor struct {
	orders   *OrderService
	interval time.Duration
	// Orders still pending after expireAfter are cancelled. Zero disables it.
	expireAfter time.Duration
	now         func() time.Time
	log         logrus.FieldLogger

	mutex   sync.Mutex
	metrics PaymentMetrics
	stop    chan struct{}
	done    chan struct{}
}

func NewPaymentMonitor(orders *OrderService, interval, expireAfter time.Duration, log logrus.FieldLogger) *PaymentMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PaymentMonitor{
		orders:      orders,
		interval:    interval,
		expireAfter: expireAfter,
		now:         time.Now,
		log:         log,
	}
}

func (pm *PaymentMonitor) Start() {
	pm.mutex.Lock()
	if pm.stop != nil {
		pm.mutex.Unlock()
		return
	}
	pm.stop = make(chan struct{})
	pm.done = make(chan struct{})
	stop, done := pm.stop, pm.done
	pm.mutex.Unlock()

	go pm.loop(stop, done)
	pm.log.WithField("interval", pm.interval.String()).Info("payment monitor started")
}

// Stop waits for an in-progress pass to finish.
func (pm *PaymentMonitor) Stop() {
	pm.mutex.Lock()
	stop, done := pm.stop, pm.done
	pm.stop, pm.done = nil, nil
	pm.mutex.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (pm *PaymentMonitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), pm.interval)
			pm.RunOnce(ctx)
			cancel()
		}
	}
}

// RunOnce performs a single verification pass.
func (pm *PaymentMonitor) RunOnce(ctx context.Context) {
	pending, err := pm.orders.AwaitingPayment(ctx)
	if err != nil {
		pm.log.WithError(err).Error("payment monitor could not list orders")
		pm.record(func(m *PaymentMetrics) { m.Errors++ })
		return
	}

	for _, o := range pending {
		res, err := pm.orders.VerifyPayment(ctx, SystemViewer, o.ID)
		if err != nil {
			pm.log.WithError(err).WithField("order_id", o.ID).Warn("payment recheck failed")
			pm.record(func(m *PaymentMetrics) { m.Checked++; m.Errors++ })
			continue
		}
		pm.record(func(m *PaymentMetrics) {
			m.Checked++
			switch res.Order.Status {
			case models.StatusConfirmed:
				m.Confirmed++
			case models.StatusCancelled:
				m.Failed++
			default:
				m.Pending++
			}
		})
	}

	if pm.expireAfter > 0 {
		n, err := pm.orders.ExpireUnpaid(ctx, pm.now().Add(-pm.expireAfter))
		if err != nil {
			pm.log.WithError(err).Error("payment monitor could not expire orders")
			pm.record(func(m *PaymentMetrics) { m.Errors++ })
			return
		}
		if n > 0 {
			pm.log.WithField("orders", n).Info("expired unpaid orders")
			pm.record(func(m *PaymentMetrics) { m.Expired += int64(n) })
		}
	}
}

func (pm *PaymentMonitor) record(fn func(*PaymentMetrics)) {
	pm.mutex.Lock()
	fn(&pm.metrics)
	pm.mutex.Unlock()
}

func (pm *PaymentMonitor) GetMetrics() PaymentMetrics {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.metrics
}
