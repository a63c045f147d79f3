package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-checkout/internal/addresses"
	"github.com/imrishuroy/storefront-checkout/internal/aws/awstest"
	"github.com/imrishuroy/storefront-checkout/internal/cart"
	"github.com/imrishuroy/storefront-checkout/internal/catalog"
	"github.com/imrishuroy/storefront-checkout/internal/checkout"
	"github.com/imrishuroy/storefront-checkout/internal/mercadopago"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/reconcile"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
)

type fakeProducts map[string]catalog.Product

func (f fakeProducts) Get(ctx context.Context, id string) (*catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f fakeProducts) GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	out := map[string]catalog.Product{}
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type countingProvider struct {
	calls int
	opts  []shipping.Option
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Rates(ctx context.Context, postal string, parcels []shipping.Parcel) ([]shipping.Option, error) {
	p.calls++
	return p.opts, nil
}

type fakePayments struct {
	calls int
	last  payment.CreateRequest
	res   *payment.Result
	err   error
}

func (f *fakePayments) Create(ctx context.Context, req payment.CreateRequest) (*payment.Result, error) {
	f.calls++
	f.last = req
	return f.res, f.err
}

type fakeReconciler struct {
	webhookIn  reconcile.WebhookInput
	webhookErr error
	syncReq    reconcile.SyncRequest
	syncRes    *reconcile.SyncResult
	syncErr    error
	order      *orders.Order
	pay        *mercadopago.Payment
	statusErr  error
	changed    bool
}

func (f *fakeReconciler) Webhook(ctx context.Context, in reconcile.WebhookInput) error {
	f.webhookIn = in
	return f.webhookErr
}

func (f *fakeReconciler) Sync(ctx context.Context, req reconcile.SyncRequest) (*reconcile.SyncResult, error) {
	f.syncReq = req
	return f.syncRes, f.syncErr
}

func (f *fakeReconciler) Status(ctx context.Context, number string) (*orders.Order, *mercadopago.Payment, error) {
	return f.order, f.pay, f.statusErr
}

func (f *fakeReconciler) SetStatus(ctx context.Context, number, status string) (*orders.Order, bool, error) {
	return f.order, f.changed, f.statusErr
}

type fakeOrders struct {
	byNumber map[string]orders.Order
}

func (f *fakeOrders) Get(ctx context.Context, number string) (*orders.Order, error) {
	o, ok := f.byNumber[number]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f *fakeOrders) ListByOwner(ctx context.Context, owner string) ([]orders.Order, error) {
	return nil, nil
}

type testEnv struct {
	router   *gin.Engine
	provider *countingProvider
	payments *fakePayments
	recon    *fakeReconciler
}

func newEnv(t *testing.T, mutate ...func(*HandlerConfig)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	products := fakeProducts{
		"p1": {ID: "p1", Name: "Mug", Price: 50, Stock: 3, Weight: 0.4},
		"p2": {ID: "p2", Name: "Sold out", Price: 10, Stock: 0},
	}
	provider := &countingProvider{opts: []shipping.Option{{ID: "melhorenvio-1", Name: "PAC", Price: 22.5}}}
	env := &testEnv{
		provider: provider,
		payments: &fakePayments{},
		recon:    &fakeReconciler{},
	}
	carts := cart.NewService(cart.NewMemoryStorage(), products)
	quoter := shipping.NewQuoter(products, provider, shipping.NewTariffTable(), zap.NewNop(), nil)
	cfg := HandlerConfig{
		Carts:      carts,
		Shipping:   quoter,
		Payments:   env.payments,
		Reconciler: env.recon,
		Orders:     &fakeOrders{byNumber: map[string]orders.Order{"ORD-1": {OrderNumber: "ORD-1", Status: orders.StatusPaid}}},
		Addresses:  addresses.NewStore(awstest.NewDynamo(map[string]string{"addresses": "id"}), "addresses"),
		Checkouts:  checkout.NewSessions(quoter, env.payments, carts, zap.NewNop(), 0),
		Validator:  validation.New(),
		Log:        zap.NewNop(),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	r := gin.New()
	RegisterCartRoutes(r, cfg)
	RegisterShippingRoutes(r, cfg)
	RegisterPaymentRoutes(r, cfg)
	RegisterOrdersRoutes(r, cfg)
	RegisterAddressRoutes(r, cfg)
	RegisterCheckoutRoutes(r, cfg)
	env.router = r
	return env
}

func (e *testEnv) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestShippingCalculate_BadCEPMakesNoProviderCall(t *testing.T) {
	env := newEnv(t)
	for _, cep := range []string{"123", "0131010", "013101000"} {
		w := env.do(http.MethodPost, "/shipping/calculate", gin.H{
			"cep":   cep,
			"items": []gin.H{{"id": "p1", "quantity": 1}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, cep)
	}
	assert.Zero(t, env.provider.calls)
}

func TestShippingCalculate_PickupFirst(t *testing.T) {
	env := newEnv(t)
	w := env.do(http.MethodPost, "/shipping/calculate", gin.H{
		"cep":   "01310-100",
		"items": []gin.H{{"id": "p1", "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var opts []shipping.Option
	decode(t, w, &opts)
	require.Len(t, opts, 2)
	assert.Equal(t, shipping.PickupOptionID, opts[0].ID)
	assert.Equal(t, "melhorenvio-1", opts[1].ID)
	assert.Equal(t, 1, env.provider.calls)
}

func createBody() gin.H {
	return gin.H{
		"userId":        "u1",
		"customerEmail": "ana@example.com",
		"customerName":  "Ana",
		"paymentMethod": "card",
		"shippingPrice": 10,
		"shippingOption": gin.H{
			"id": "tariff-economy", "name": "Economy", "price": 10,
		},
		"items": []gin.H{{"id": "p1", "name": "Mug", "price": 50, "quantity": 2}},
		"shippingAddress": gin.H{
			"recipientName": "Ana", "street": "Rua A", "number": "10",
			"city": "Sao Paulo", "state": "SP", "postalCode": "01310-100",
		},
	}
}

func TestPaymentCreate_MissingUserID(t *testing.T) {
	env := newEnv(t)
	body := createBody()
	delete(body, "userId")

	w := env.do(http.MethodPost, "/payment/create", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.payments.calls)
}

func TestPaymentCreate_Success(t *testing.T) {
	env := newEnv(t)
	env.payments.res = &payment.Result{
		Type:    payment.TypePreference,
		Order:   "ORD-9",
		Payload: payment.Payload{InitPoint: "https://pay.example/redirect"},
	}

	w := env.do(http.MethodPost, "/payment/create", createBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res payment.Result
	decode(t, w, &res)
	assert.Equal(t, "preference", res.Type)
	assert.Equal(t, "https://pay.example/redirect", res.Payload.InitPoint)

	req := env.payments.last
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, "tariff-economy", req.ShippingOption)
	require.Len(t, req.Items, 1)
	assert.Equal(t, "p1", req.Items[0].ProductID)
	assert.Equal(t, 50.0, req.Items[0].UnitPrice)
}

func TestPaymentCreate_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		body string
	}{
		{&payment.ValidationError{Field: "taxId", Message: "required for pix payments"}, http.StatusBadRequest, "validation_failed"},
		{payment.ErrInProgress, http.StatusConflict, "payment_in_progress"},
		{orders.ErrOrderExists, http.StatusConflict, "order_exists"},
		{payment.ErrMethodMismatch, http.StatusConflict, "payment_method_mismatch"},
		{payment.ErrProvider, http.StatusBadGateway, "payment_failed"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		env := newEnv(t)
		env.payments.err = tc.err
		w := env.do(http.MethodPost, "/payment/create", createBody())
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
		assert.Contains(t, w.Body.String(), tc.body)
	}
}

func TestPaymentCreate_ShippingPriceMustMatchOption(t *testing.T) {
	env := newEnv(t)
	body := createBody()
	body["shippingPrice"] = 0

	w := env.do(http.MethodPost, "/payment/create", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.payments.calls)
}

func TestPaymentStatus(t *testing.T) {
	env := newEnv(t)

	w := env.do(http.MethodGet, "/payment/status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.recon.statusErr = reconcile.ErrOrderNotFound
	w = env.do(http.MethodGet, "/payment/status?order=ORD-X", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.recon.statusErr = nil
	env.recon.order = &orders.Order{OrderNumber: "ORD-1", Status: orders.StatusPaid}
	env.recon.pay = &mercadopago.Payment{ID: 77, Status: "approved", TransactionAmount: 110}
	w = env.do(http.MethodGet, "/payment/status?order=ORD-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Order       orders.Order `json:"order"`
		PaymentInfo *paymentInfo `json:"paymentInfo"`
	}
	decode(t, w, &body)
	assert.Equal(t, orders.StatusPaid, body.Order.Status)
	require.NotNil(t, body.PaymentInfo)
	assert.Equal(t, "77", body.PaymentInfo.ID)
	assert.Equal(t, 110.0, body.PaymentInfo.TransactionAmount)
}

func TestWebhook_MalformedBodyStill200(t *testing.T) {
	env := newEnv(t)
	w := env.do(http.MethodPost, "/payment/webhook", "{not json")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/payment/webhook", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_PassesQueryAndHeaders(t *testing.T) {
	env := newEnv(t)
	w := env.do(http.MethodPost, "/payment/webhook?data.id=123&type=payment", "",
		"x-signature", "ts=1,v1=abc", "x-request-id", "req-1")
	assert.Equal(t, http.StatusOK, w.Code)

	in := env.recon.webhookIn
	assert.Equal(t, "123", in.DataID)
	assert.Equal(t, "payment", in.Notification.Kind())
	assert.Equal(t, "ts=1,v1=abc", in.Signature)
	assert.Equal(t, "req-1", in.RequestID)

	w = env.do(http.MethodPost, "/payment/webhook", gin.H{"type": "payment", "data": gin.H{"id": 456}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reconcile.ID("456"), env.recon.webhookIn.Notification.Data.ID)
}

func TestWebhook_InvalidSignatureIs401(t *testing.T) {
	env := newEnv(t)
	env.recon.webhookErr = mercadopago.ErrInvalidSignature
	w := env.do(http.MethodPost, "/payment/webhook", gin.H{"type": "payment", "data": gin.H{"id": "1"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.recon.webhookErr = errors.New("anything else")
	w = env.do(http.MethodPost, "/payment/webhook", gin.H{"type": "payment", "data": gin.H{"id": "1"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSyncStatus(t *testing.T) {
	env := newEnv(t)
	env.recon.syncRes = &reconcile.SyncResult{OrderID: "ORD-1", Status: orders.StatusPaid, PaymentID: "9"}

	w := env.do(http.MethodPost, "/orders/sync-status", gin.H{"orderId": "ORD-1", "cartId": "cart-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var res reconcile.SyncResult
	decode(t, w, &res)
	assert.Equal(t, "paid", res.Status)
	assert.Equal(t, "cart-1", env.recon.syncReq.CartID)

	env.recon.syncErr = reconcile.ErrPaymentMismatch
	w = env.do(http.MethodPost, "/orders/sync-status", gin.H{"orderId": "ORD-1", "paymentId": "8"})
	assert.Equal(t, http.StatusConflict, w.Code)

	env.recon.syncErr = reconcile.ErrOrderNotFound
	w = env.do(http.MethodPost, "/orders/sync-status", gin.H{"orderId": "ORD-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/orders/sync-status", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderViews(t *testing.T) {
	env := newEnv(t)

	w := env.do(http.MethodGet, "/orders/ORD-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/orders/ORD-404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/users/u1/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestAdminStatus(t *testing.T) {
	env := newEnv(t)

	env.recon.order = &orders.Order{OrderNumber: "ORD-1", Status: orders.StatusShipped}
	env.recon.changed = true
	w := env.do(http.MethodPatch, "/admin/orders/ORD-1/status", gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusOK, w.Code)

	env.recon.order = &orders.Order{OrderNumber: "ORD-1", Status: orders.StatusDelivered}
	env.recon.changed = false
	w = env.do(http.MethodPatch, "/admin/orders/ORD-1/status", gin.H{"status": "pending"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_transition")

	w = env.do(http.MethodPatch, "/admin/orders/ORD-1/status", gin.H{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartRoutes(t *testing.T) {
	env := newEnv(t)

	w := env.do(http.MethodPost, "/cart/c1/items", gin.H{"productId": "p1", "quantity": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Cart       cart.Cart `json:"cart"`
		TotalItems int       `json:"total_items"`
		TotalPrice float64   `json:"total_price"`
	}
	decode(t, w, &res)
	assert.Equal(t, 3, res.TotalItems, "clamped at stock")
	assert.Equal(t, 150.0, res.TotalPrice)

	w = env.do(http.MethodPost, "/cart/c1/items", gin.H{"productId": "p2", "quantity": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(http.MethodPost, "/cart/c1/items", gin.H{"productId": "nope", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPatch, "/cart/c1/items/p1", gin.H{"quantity": 0})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	assert.Zero(t, res.TotalItems)

	w = env.do(http.MethodDelete, "/cart/c1/items/p1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/cart/c1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAddressRoutes_SingleDefault(t *testing.T) {
	env := newEnv(t)
	addr := func(label string) gin.H {
		return gin.H{
			"label": label, "street": "Rua A", "number": "1", "city": "Rio",
			"state": "rj", "postalCode": "20040-002",
		}
	}

	var ids []string
	for _, label := range []string{"home", "work"} {
		w := env.do(http.MethodPost, "/users/u1/addresses", addr(label))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var a addresses.Address
		decode(t, w, &a)
		assert.Equal(t, "RJ", a.State)
		assert.Equal(t, "20040002", a.PostalCode)
		ids = append(ids, a.ID)
	}

	w := env.do(http.MethodPost, "/users/u1/addresses/"+ids[1]+"/default", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []addresses.Address
	decode(t, w, &list)
	require.Len(t, list, 2)
	defaults := 0
	for _, a := range list {
		if a.IsDefault {
			defaults++
			assert.Equal(t, ids[1], a.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	w = env.do(http.MethodPost, "/users/u2/addresses/"+ids[0]+"/default", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/users/u1/addresses", gin.H{"street": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/users/u1/addresses/"+ids[0], nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPaymentRateLimit(t *testing.T) {
	env := newEnv(t, func(cfg *HandlerConfig) {
		cfg.PaymentRatePerMinute = 1
		cfg.PaymentRateBurst = 1
	})
	w := env.do(http.MethodGet, "/payment/status?order=ORD-1", nil)
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
	w = env.do(http.MethodGet, "/payment/status?order=ORD-1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// other route groups are not limited
	w = env.do(http.MethodGet, "/orders/ORD-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_NotRateLimited(t *testing.T) {
	env := newEnv(t, func(cfg *HandlerConfig) {
		cfg.PaymentRatePerMinute = 30
		cfg.PaymentRateBurst = 10
	})
	codes := map[int]int{}
	for i := 0; i < 25; i++ {
		w := env.do(http.MethodPost, "/payment/webhook", gin.H{"type": "payment", "data": gin.H{"id": i}})
		codes[w.Code]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 25}, codes)

	// the limit still guards order creation and polling from the same client
	for i := 0; i < 10; i++ {
		env.do(http.MethodGet, "/payment/status?order=ORD-1", nil)
	}
	w := env.do(http.MethodGet, "/payment/status?order=ORD-1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
