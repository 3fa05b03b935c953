package Controllers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/mealplan-app/models"
	"github.com/yeremiapane/mealplan-app/utils"
)

func TestVerifyPaymentEndpoint(t *testing.T) {
	r := setupRouter(t, &stubProvider{status: models.PaymentStatusSuccess}, stubSignature{})
	auth := bearer(t, "u1", utils.RoleCustomer)
	res := createOrder(t, r, auth)

	for i := 0; i < 2; i++ {
		w := call(r, http.MethodPost, "/api/orders/"+res.OrderID+"/verify-payment", auth, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var out models.VerifyPaymentResult
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &out))
		assert.Equal(t, models.StatusConfirmed, out.Order.Status)
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	}
}

func TestVerifyPaymentStillPending(t *testing.T) {
	r := setupRouter(t, &stubProvider{status: models.PaymentStatusPending}, stubSignature{})
	auth := bearer(t, "u1", utils.RoleCustomer)
	res := createOrder(t, r, auth)

	w := call(r, http.MethodPost, "/api/orders/"+res.OrderID+"/verify-payment", auth, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out models.VerifyPaymentResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &out))
	assert.Equal(t, models.StatusPending, out.Order.Status)
}

func TestPaymentNotification(t *testing.T) {
	notification := func(orderID string) map[string]string {
		return map[string]string{
			"order_id":           orderID,
			"transaction_status": "settlement",
			"status_code":        "200",
			"gross_amount":       "740.00",
			"signature_key":      "sig",
		}
	}

	t.Run("invalid signature", func(t *testing.T) {
		r := setupRouter(t, &stubProvider{status: models.PaymentStatusSuccess}, stubSignature{valid: false})
		res := createOrder(t, r, bearer(t, "u1", utils.RoleCustomer))

		w := call(r, http.MethodPost, "/api/payments/notification", "", notification(res.OrderID))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid signature confirms order", func(t *testing.T) {
		r := setupRouter(t, &stubProvider{status: models.PaymentStatusSuccess}, stubSignature{valid: true})
		auth := bearer(t, "u1", utils.RoleCustomer)
		res := createOrder(t, r, auth)

		w := call(r, http.MethodPost, "/api/payments/notification", "", notification(res.OrderID))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = call(r, http.MethodGet, "/api/orders/"+res.OrderID, auth, nil)
		var order models.Order
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &order))
		assert.Equal(t, models.StatusConfirmed, order.Status)
	})

	t.Run("unknown order", func(t *testing.T) {
		r := setupRouter(t, &stubProvider{status: models.PaymentStatusSuccess}, stubSignature{valid: true})
		w := call(r, http.MethodPost, "/api/payments/notification", "", notification("missing"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPaymentChecksStaffOnly(t *testing.T) {
	r := setupRouter(t, &stubProvider{status: models.PaymentStatusPending}, stubSignature{})
	auth := bearer(t, "u1", utils.RoleCustomer)
	res := createOrder(t, r, auth)

	w := call(r, http.MethodPost, "/api/orders/"+res.OrderID+"/verify-payment", auth, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(r, http.MethodGet, "/api/orders/"+res.OrderID+"/payments", auth, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(r, http.MethodGet, "/api/orders/"+res.OrderID+"/payments", bearer(t, "s1", utils.RoleStaff), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var checks []models.PaymentCheck
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &checks))
	require.Len(t, checks, 1)
	assert.Equal(t, models.PaymentStatusPending, checks[0].Status)
}
