package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/mercadopago"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"go.uber.org/zap"
)

// Gateway is the read side of the payment provider.
type Gateway interface {
	GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error)
	GetMerchantOrder(ctx context.Context, id string) (*mercadopago.MerchantOrder, error)
	SearchPayments(ctx context.Context, externalReference string) ([]mercadopago.Payment, error)
}

// CartClearer empties a cart once its order is paid.
type CartClearer interface {
	Clear(ctx context.Context, cartID string) error
}

// Reconciler applies provider payment status to orders.
type Reconciler struct {
	orders        *orders.Store
	gateway       Gateway
	carts         CartClearer
	notifier      *aws.Notifier
	retries       *aws.Publisher
	webhookSecret string
	log           *zap.Logger
	metrics       *aws.MetricsClient
	nowFunc       func() time.Time
}

// Config bundles the optional collaborators of a Reconciler.
type Config struct {
	Carts         CartClearer
	Notifier      *aws.Notifier
	Retries       *aws.Publisher
	WebhookSecret string
	Metrics       *aws.MetricsClient
}

// New creates a Reconciler.
func New(orderStore *orders.Store, gateway Gateway, cfg Config, log *zap.Logger) *Reconciler {
	return &Reconciler{
		orders:        orderStore,
		gateway:       gateway,
		carts:         cfg.Carts,
		notifier:      cfg.Notifier,
		retries:       cfg.Retries,
		webhookSecret: cfg.WebhookSecret,
		log:           log,
		metrics:       cfg.Metrics,
		nowFunc:       time.Now,
	}
}

// Webhook verifies and processes a provider notification. Only a bad
// signature is reported to the caller; processing failures are logged,
// counted and queued for the worker so the provider always gets a 2xx.
func (r *Reconciler) Webhook(ctx context.Context, in WebhookInput) error {
	dataID := in.DataID
	if dataID == "" {
		dataID = string(in.Notification.Data.ID)
	}
	if r.webhookSecret != "" {
		if err := mercadopago.VerifySignature(r.webhookSecret, in.Signature, in.RequestID, dataID); err != nil {
			r.log.Warn("webhook signature rejected", zap.String("request_id", in.RequestID))
			return err
		}
	}

	kind := in.Notification.Kind()
	log := r.log.With(zap.String("kind", kind), zap.String("data_id", dataID))
	if dataID == "" || (kind != KindPayment && kind != KindMerchantOrder) {
		log.Info("webhook ignored")
		return nil
	}

	err := r.Process(ctx, kind, dataID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnmatched):
		log.Warn("webhook does not match an order", zap.Error(err))
		return nil
	}

	log.Error("webhook processing failed", zap.Error(err))
	_ = r.metrics.RecordCount(ctx, aws.MetricWebhookFailures, map[string]string{"Kind": kind})
	r.enqueueRetry(ctx, log, RetryMessage{Kind: kind, ID: dataID, Attempt: 1, QueuedAt: r.nowFunc().UTC()})
	return nil
}

func (r *Reconciler) enqueueRetry(ctx context.Context, log *zap.Logger, msg RetryMessage) {
	if !r.retries.Enabled() {
		return
	}
	if err := r.retries.SendJSON(ctx, msg, map[string]string{"kind": msg.Kind}); err != nil {
		log.Error("queue webhook retry failed", zap.Error(err))
		return
	}
	_ = r.metrics.RecordCount(ctx, aws.MetricReconcileRetriesQueued, nil)
}

// Process fetches the referenced provider resource and applies its status.
// Errors are returned so the worker can let SQS redeliver; see IsPermanent.
func (r *Reconciler) Process(ctx context.Context, kind, id string) error {
	switch kind {
	case KindPayment:
		pay, err := r.gateway.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		_, err = r.apply(ctx, pay.ExternalReference, pay.Status, pay.IDString(), "webhook")
		return err
	case KindMerchantOrder:
		mo, err := r.gateway.GetMerchantOrder(ctx, id)
		if err != nil {
			return err
		}
		pay, ok := mo.Settled()
		if !ok {
			return nil
		}
		_, err = r.apply(ctx, mo.ExternalReference, pay.Status, pay.IDString(), "webhook")
		return err
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrUnmatched, kind)
	}
}

// IsPermanent reports whether a Process error will fail again on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnmatched)
}

// Sync polls the provider for one order. Confirmed orders are answered from
// the store without a provider call. When the order ends up paid and a cart
// id is given, that cart is cleared.
func (r *Reconciler) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	order, _, err := r.poll(ctx, req.OrderNumber, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if orders.IsConfirmed(order.Status) && req.CartID != "" && r.carts != nil {
		if err := r.carts.Clear(ctx, req.CartID); err != nil {
			r.log.Warn("clear cart after payment failed", zap.String("cart_id", req.CartID), zap.Error(err))
		}
	}
	return &SyncResult{OrderID: order.OrderNumber, Status: order.Status, PaymentID: order.PaymentID}, nil
}

// Status polls the provider like Sync and also returns the provider payment,
// which is nil on the confirmed fast path or when no payment exists yet.
func (r *Reconciler) Status(ctx context.Context, orderNumber string) (*orders.Order, *mercadopago.Payment, error) {
	return r.poll(ctx, orderNumber, "")
}

func (r *Reconciler) poll(ctx context.Context, orderNumber, paymentID string) (*orders.Order, *mercadopago.Payment, error) {
	order, err := r.orders.Get(ctx, orderNumber)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, ErrOrderNotFound
	}
	if orders.IsConfirmed(order.Status) {
		return order, nil, nil
	}

	if paymentID == "" {
		paymentID = order.PaymentID
	}
	var pay *mercadopago.Payment
	if paymentID != "" {
		pay, err = r.gateway.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch payment: %w", err)
		}
		if pay.ExternalReference != "" && pay.ExternalReference != order.OrderNumber {
			return nil, nil, ErrPaymentMismatch
		}
	} else {
		found, err := r.gateway.SearchPayments(ctx, order.OrderNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("search payments: %w", err)
		}
		pay = pickPayment(found)
	}
	if pay == nil {
		return order, nil, nil
	}

	updated, err := r.apply(ctx, order.OrderNumber, pay.Status, pay.IDString(), "poll")
	if err != nil {
		return nil, nil, err
	}
	return updated, pay, nil
}

// pickPayment prefers an approved payment, else the newest one.
func pickPayment(list []mercadopago.Payment) *mercadopago.Payment {
	if len(list) == 0 {
		return nil
	}
	for i := range list {
		if list[i].Status == mercadopago.StatusApproved {
			return &list[i]
		}
	}
	return &list[0]
}

// apply maps providerStatus and writes it through the forward-only transition.
// The payment id is recorded when the order has none, or replaced when this
// payment confirms the order.
func (r *Reconciler) apply(ctx context.Context, orderNumber, providerStatus, paymentID, source string) (*orders.Order, error) {
	if orderNumber == "" {
		return nil, fmt.Errorf("%w: payment %s has no external reference", ErrUnmatched, paymentID)
	}
	current, err := r.orders.Get(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: unknown order %s", ErrUnmatched, orderNumber)
	}

	next := MapStatus(providerStatus)
	if staleAttempt(current, paymentID, next) {
		r.log.Debug("ignoring update from superseded payment",
			zap.String("order_number", orderNumber), zap.String("payment_id", paymentID), zap.String("provider_status", providerStatus))
		return current, nil
	}
	pid := ""
	if paymentID != "" && (current.PaymentID == "" || orders.IsConfirmed(next)) {
		pid = paymentID
	}

	order, changed, err := r.orders.ApplyStatus(ctx, orderNumber, next, pid)
	if err != nil {
		return nil, fmt.Errorf("apply status: %w", err)
	}
	log := r.log.With(zap.String("order_number", orderNumber), zap.String("source", source))
	if !changed {
		if pid != "" && order.PaymentID == "" {
			if err := r.orders.SetPaymentID(ctx, orderNumber, pid); err != nil {
				log.Warn("record payment id failed", zap.Error(err))
			} else {
				order.PaymentID = pid
			}
		}
		log.Debug("status unchanged", zap.String("status", order.Status), zap.String("provider_status", providerStatus))
		return order, nil
	}

	log.Info("order status changed", zap.String("from", current.Status), zap.String("to", next))
	_ = r.metrics.RecordCount(ctx, aws.MetricStatusTransitions, map[string]string{"To": next})
	event := StatusEvent{
		OrderNumber: orderNumber,
		OwnerID:     order.OwnerID,
		From:        current.Status,
		To:          next,
		PaymentID:   order.PaymentID,
		Source:      source,
		At:          r.nowFunc().UTC(),
	}
	if err := r.notifier.Publish(ctx, EventStatusChanged, event); err != nil {
		log.Warn("publish status event failed", zap.Error(err))
	}
	return order, nil
}

// staleAttempt reports whether paymentID is an attempt other than the one that
// confirmed the order and would move it away from paid.
func staleAttempt(current *orders.Order, paymentID, next string) bool {
	return paymentID != "" && current.PaymentID != "" && paymentID != current.PaymentID &&
		orders.IsConfirmed(current.Status) && !orders.IsConfirmed(next)
}

// SetStatus applies an administrative status change through the same
// transition rules and events as provider updates.
func (r *Reconciler) SetStatus(ctx context.Context, orderNumber, status string) (*orders.Order, bool, error) {
	current, err := r.orders.Get(ctx, orderNumber)
	if err != nil {
		return nil, false, err
	}
	if current == nil {
		return nil, false, ErrOrderNotFound
	}
	if !orders.CanTransition(current.Status, status) {
		return current, false, nil
	}
	order, err := r.apply(ctx, orderNumber, status, "", "admin")
	if err != nil {
		return nil, false, err
	}
	return order, order.Status != current.Status, nil
}
