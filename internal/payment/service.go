// Package payment creates orders and their payment intents.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/catalog"
	"github.com/imrishuroy/storefront-checkout/internal/idempotency"
	"github.com/imrishuroy/storefront-checkout/internal/mercadopago"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
	"go.uber.org/zap"
)

// PixExpiration is how long a PIX charge stays payable.
const PixExpiration = 30 * time.Minute

// DefaultInProgressLease is how long an IN_PROGRESS attempt is trusted before
// another request may take it over. It exceeds the provider client's worst case
// of timeouts plus retries.
const DefaultInProgressLease = 2 * time.Minute

const (
	defaultCountry = "BR"
	currencyBRL    = "BRL"
	webhookPath    = "/payment/webhook"
	pixTimeLayout  = "2006-01-02T15:04:05.000-07:00"
	maxFailureNote = 300
)

// Gateway is the subset of the payment provider used to create intents.
type Gateway interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest, idempotencyKey string) (*mercadopago.Preference, error)
	CreatePayment(ctx context.Context, req mercadopago.PaymentRequest, idempotencyKey string) (*mercadopago.Payment, error)
}

// Products resolves catalog prices; the client's prices are never trusted.
type Products interface {
	GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// Options configures the Service.
type Options struct {
	// PublicBaseURL is the storefront origin used for return and notification URLs.
	PublicBaseURL string
	// PixPlaceholderTaxID, when set, is sent for PIX payers without a tax id.
	PixPlaceholderTaxID string
	// InProgressLease overrides DefaultInProgressLease.
	InProgressLease time.Duration
}

// Service is the Order & Payment service.
type Service struct {
	orders      *orders.Store
	idempotency *idempotency.Store
	products    Products
	gateway     Gateway
	opts        Options
	log         *zap.Logger
	metrics     *aws.MetricsClient
	nowFunc     func() time.Time
}

// NewService wires the service. A nil products source keeps the submitted prices.
func NewService(orderStore *orders.Store, idemStore *idempotency.Store, products Products, gateway Gateway, opts Options, log *zap.Logger, metrics *aws.MetricsClient) *Service {
	if opts.InProgressLease <= 0 {
		opts.InProgressLease = DefaultInProgressLease
	}
	return &Service{
		orders:      orderStore,
		idempotency: idemStore,
		products:    products,
		gateway:     gateway,
		opts:        opts,
		log:         log,
		metrics:     metrics,
		nowFunc:     time.Now,
	}
}

// Create persists a pending order and creates its payment intent. Repeated calls
// with the same order number replay the stored result without a new provider call.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	req = normalize(req)
	if err := validate(req); err != nil {
		return nil, err
	}
	items, err := s.reprice(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	req.Items = items
	for i, it := range req.Items {
		if it.UnitPrice <= 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d]", i), Message: "price must be positive"}
		}
	}
	taxID, err := s.payerTaxID(req)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	number := req.OrderNumber
	if number == "" {
		number = orders.NewOrderNumber(now)
	}
	key := idempotency.PaymentKey(number)
	log := s.log.With(zap.String("order_number", number), zap.String("method", req.PaymentMethod))

	subtotal := orders.Subtotal(req.Items)
	order := orders.Order{
		OrderNumber:     number,
		ID:              uuid.NewString(),
		OwnerID:         req.UserID,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		Items:           req.Items,
		Subtotal:        subtotal,
		ShippingPrice:   req.ShippingPrice,
		Total:           orders.RoundCents(subtotal + req.ShippingPrice),
		ShippingOption:  req.ShippingOption,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Status:          orders.StatusPending,
		CreatedAt:       now,
	}

	record := s.idempotency.NewRecord(key, number)
	err = s.orders.CreateWithIdempotencyTransaction(ctx, s.idempotency.TableName(), record, order, s.idempotency.TTLWindow())
	switch {
	case errors.Is(err, orders.ErrIdempotencyKeyExists):
		return s.resume(ctx, log, req, key, number, taxID)
	case errors.Is(err, orders.ErrOrderExists):
		return nil, err
	case err != nil:
		log.Error("persist order failed", zap.Error(err))
		return nil, fmt.Errorf("persist order: %w", err)
	}
	log.Info("order created", zap.Float64("total", order.Total))

	return s.dispatch(ctx, log, key, &order, taxID)
}

// resume handles a Create whose idempotency record already exists.
func (s *Service) resume(ctx context.Context, log *zap.Logger, req CreateRequest, key, number, taxID string) (*Result, error) {
	rec, err := s.idempotency.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load idempotency record: %w", err)
	}
	if rec == nil {
		// expired between the failed transaction and this read
		return nil, ErrInProgress
	}

	switch rec.Status {
	case idempotency.StatusDone:
		var res Result
		if err := json.Unmarshal([]byte(rec.ResponseBody), &res); err != nil {
			return nil, fmt.Errorf("decode stored response: %w", err)
		}
		if res.Type != resultType(req.PaymentMethod) {
			return nil, ErrMethodMismatch
		}
		log.Info("replaying stored payment result")
		_ = s.metrics.RecordCount(ctx, aws.MetricIdempotentReplays, nil)
		return &res, nil
	case idempotency.StatusFailed:
		ok, err := s.idempotency.Reacquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInProgress
		}
		log.Info("retrying payment for previously failed attempt")
	default:
		if s.nowFunc().Sub(rec.UpdatedAt) < s.opts.InProgressLease {
			return nil, ErrInProgress
		}
		ok, err := s.idempotency.ReacquireStale(ctx, key, rec.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInProgress
		}
		log.Warn("taking over abandoned payment attempt", zap.Time("last_update", rec.UpdatedAt))
	}

	order, err := s.orders.Get(ctx, number)
	if err == nil && order == nil {
		err = orders.ErrNotFound
	}
	if err == nil && order.PaymentMethod != req.PaymentMethod {
		err = s.switchMethod(ctx, log, order, req.PaymentMethod)
	}
	if err != nil {
		s.markFailed(context.WithoutCancel(ctx), log, key, err)
		return nil, err
	}
	return s.dispatch(ctx, log, key, order, taxID)
}

// switchMethod lets a retried checkout change its payment method while no
// payment exists for the order yet.
func (s *Service) switchMethod(ctx context.Context, log *zap.Logger, order *orders.Order, method string) error {
	err := s.orders.SetPaymentMethod(ctx, order.OrderNumber, method)
	if errors.Is(err, orders.ErrPaymentStarted) {
		return ErrMethodMismatch
	}
	if err != nil {
		return err
	}
	log.Info("payment method changed on retry", zap.String("from", order.PaymentMethod))
	order.PaymentMethod = method
	return nil
}

func (s *Service) markFailed(ctx context.Context, log *zap.Logger, key string, cause error) {
	if err := s.idempotency.MarkFailed(ctx, key, truncate(cause.Error(), maxFailureNote)); err != nil {
		log.Error("mark idempotency failed", zap.Error(err))
	}
}

func resultType(method string) string {
	if method == orders.MethodCard {
		return TypePreference
	}
	return TypePix
}

// dispatch calls the provider for the stored order and records the outcome.
// The outcome is recorded on a context detached from the caller: a client that
// hangs up mid-call must not leave the record IN_PROGRESS.
func (s *Service) dispatch(ctx context.Context, log *zap.Logger, key string, order *orders.Order, taxID string) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch order.PaymentMethod {
	case orders.MethodCard:
		res, err = s.createPreference(ctx, key, order)
	default:
		res, err = s.createPix(ctx, log, key, order, taxID)
	}
	bg := context.WithoutCancel(ctx)
	if err != nil {
		log.Error("payment provider call failed", zap.Error(err))
		_ = s.metrics.RecordCount(bg, aws.MetricPaymentFailures, map[string]string{"Method": order.PaymentMethod})
		s.markFailed(bg, log, key, err)
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	body, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if err := s.idempotency.MarkDone(bg, key, string(body), http.StatusOK); err != nil {
		// the intent exists; a retry after the lease reuses the same provider idempotency key
		log.Warn("mark idempotency done failed", zap.Error(err))
	}
	_ = s.metrics.RecordCount(bg, aws.MetricOrdersCreated, map[string]string{"Method": order.PaymentMethod})
	return res, nil
}

func (s *Service) createPreference(ctx context.Context, key string, order *orders.Order) (*Result, error) {
	items := make([]mercadopago.PreferenceItem, 0, len(order.Items))
	for _, it := range order.Items {
		item := mercadopago.PreferenceItem{
			ID:         it.ProductID,
			Title:      it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			CurrencyID: currencyBRL,
		}
		if len(it.Images) > 0 {
			item.PictureURL = it.Images[0]
		}
		items = append(items, item)
	}

	req := mercadopago.PreferenceRequest{
		Items:             items,
		Payer:             mercadopago.Payer{Name: order.CustomerName, Email: order.CustomerEmail},
		BackURLs:          s.backURLs(order.OrderNumber),
		AutoReturn:        "approved",
		ExternalReference: order.OrderNumber,
		NotificationURL:   s.notificationURL(),
		Metadata:          map[string]string{"order_number": order.OrderNumber, "user_id": order.OwnerID},
	}
	if order.ShippingPrice > 0 {
		req.Shipments = &mercadopago.Shipments{Cost: order.ShippingPrice, Mode: "not_specified"}
	}

	pref, err := s.gateway.CreatePreference(ctx, req, key)
	if err != nil {
		return nil, err
	}
	return &Result{
		Type:    TypePreference,
		Order:   order.OrderNumber,
		Payload: Payload{PreferenceID: pref.ID, InitPoint: pref.InitPoint},
	}, nil
}

func (s *Service) createPix(ctx context.Context, log *zap.Logger, key string, order *orders.Order, taxID string) (*Result, error) {
	firstName := order.CustomerName
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}
	req := mercadopago.PaymentRequest{
		TransactionAmount: order.Total,
		Description:       "Order " + order.OrderNumber,
		PaymentMethodID:   "pix",
		Payer: mercadopago.Payer{
			Email:          order.CustomerEmail,
			FirstName:      firstName,
			Identification: &mercadopago.Identification{Type: taxIDType(taxID), Number: taxID},
		},
		ExternalReference: order.OrderNumber,
		NotificationURL:   s.notificationURL(),
		DateOfExpiration:  s.nowFunc().Add(PixExpiration).Format(pixTimeLayout),
		Metadata:          map[string]string{"order_number": order.OrderNumber, "user_id": order.OwnerID},
	}

	pay, err := s.gateway.CreatePayment(ctx, req, key)
	if err != nil {
		return nil, err
	}
	paymentID := pay.IDString()
	if err := s.orders.SetPaymentID(context.WithoutCancel(ctx), order.OrderNumber, paymentID); err != nil {
		// reconciliation finds the payment by external reference later
		log.Error("store payment id failed", zap.String("payment_id", paymentID), zap.Error(err))
	}

	td := pay.PointOfInteraction.TransactionData
	return &Result{
		Type:  TypePix,
		Order: order.OrderNumber,
		Payload: Payload{
			PaymentID:    paymentID,
			QRCode:       td.QRCode,
			QRCodeBase64: td.QRCodeBase64,
			TicketURL:    td.TicketURL,
		},
	}, nil
}

// payerTaxID resolves the PIX payer document. The placeholder keeps sandbox
// flows working but is a compliance gap, so every use is logged.
func (s *Service) payerTaxID(req CreateRequest) (string, error) {
	if req.PaymentMethod != orders.MethodPix {
		return "", nil
	}
	if req.TaxID != "" {
		return req.TaxID, nil
	}
	if req.ShippingAddress.TaxID != "" {
		return req.ShippingAddress.TaxID, nil
	}
	if s.opts.PixPlaceholderTaxID != "" {
		s.log.Warn("pix payer has no tax id, sending configured placeholder", zap.String("user_id", req.UserID))
		return s.opts.PixPlaceholderTaxID, nil
	}
	return "", &ValidationError{Field: "taxId", Message: "required for pix payments"}
}

func (s *Service) backURLs(number string) mercadopago.BackURLs {
	base := strings.TrimRight(s.opts.PublicBaseURL, "/")
	q := "?order=" + url.QueryEscape(number)
	return mercadopago.BackURLs{
		Success: base + "/checkout/success" + q,
		Failure: base + "/checkout/failure" + q,
		Pending: base + "/checkout/pending" + q,
	}
}

// notificationURL is empty for loopback hosts, which the provider cannot reach.
func (s *Service) notificationURL() string {
	if isLoopback(s.opts.PublicBaseURL) {
		return ""
	}
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + webhookPath
}

func isLoopback(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// normalize applies the named defaults and canonical forms before validation.
func normalize(req CreateRequest) CreateRequest {
	req.OrderNumber = strings.TrimSpace(req.OrderNumber)
	req.UserID = strings.TrimSpace(req.UserID)
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.TaxID = validation.Digits(req.TaxID)
	req.ShippingPrice = orders.RoundCents(req.ShippingPrice)

	addr := &req.ShippingAddress
	addr.TaxID = validation.Digits(addr.TaxID)
	addr.PostalCode = validation.Digits(addr.PostalCode)
	if addr.Country == "" {
		addr.Country = defaultCountry
	}
	if addr.RecipientName == "" {
		addr.RecipientName = req.CustomerName
	}
	if req.CustomerName == "" {
		req.CustomerName = addr.RecipientName
	}
	return req
}

func validate(req CreateRequest) error {
	switch {
	case req.UserID == "":
		return &ValidationError{Field: "userId", Message: "required"}
	case len(req.Items) == 0:
		return &ValidationError{Field: "items", Message: "at least one item is required"}
	case req.PaymentMethod != orders.MethodPix && req.PaymentMethod != orders.MethodCard:
		return &ValidationError{Field: "paymentMethod", Message: "must be pix or card"}
	case req.ShippingPrice < 0:
		return &ValidationError{Field: "shippingPrice", Message: "must not be negative"}
	}
	for i, it := range req.Items {
		if it.Quantity < 1 {
			return &ValidationError{Field: fmt.Sprintf("items[%d]", i), Message: "quantity must be positive"}
		}
	}
	return nil
}

// reprice replaces client-supplied names and prices with catalog values and
// rejects unknown products and quantities above stock.
func (s *Service) reprice(ctx context.Context, items []orders.LineItem) ([]orders.LineItem, error) {
	if s.products == nil {
		return items, nil
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	found, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	out := make([]orders.LineItem, 0, len(items))
	for i, it := range items {
		p, ok := found[it.ProductID]
		if !ok {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d]", i), Message: "product not found"}
		}
		if it.Quantity > p.Stock {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d]", i), Message: "quantity exceeds stock"}
		}
		it.Name = p.Name
		it.Slug = p.Slug
		it.UnitPrice = p.Price
		if len(p.Images) > 0 {
			it.Images = p.Images
		}
		out = append(out, it)
	}
	return out, nil
}

func taxIDType(doc string) string {
	if len(doc) == 14 {
		return "CNPJ"
	}
	return "CPF"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
