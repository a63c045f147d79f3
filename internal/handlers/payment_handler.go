package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/storefront-checkout/internal/mercadopago"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/reconcile"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
	"go.uber.org/zap"
)

// maxWebhookBody caps notification bodies; real ones are a few hundred bytes.
const maxWebhookBody = 64 << 10

type paymentInfo struct {
	ID                string  `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail,omitempty"`
	PaymentMethodID   string  `json:"payment_method_id,omitempty"`
	TransactionAmount float64 `json:"transaction_amount"`
	DateApproved      string  `json:"date_approved,omitempty"`
}

// RegisterPaymentRoutes registers order creation, status polling and the provider webhook.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	g := r.Group("/payment")
	// provider notifications come from a handful of IPs and are never limited
	limited := g.Group("")
	if cfg.PaymentRatePerMinute > 0 {
		limited.Use(NewRateLimiter(cfg.PaymentRatePerMinute, cfg.PaymentRateBurst).Middleware())
	}

	limited.POST("/create", func(c *gin.Context) {
		var req validation.CreatePaymentRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}

		res, err := cfg.Payments.Create(c.Request.Context(), toCreateRequest(req))
		if err != nil {
			var verr *payment.ValidationError
			switch {
			case errors.As(err, &verr):
				c.JSON(http.StatusBadRequest, gin.H{
					"error":  "validation_failed",
					"fields": map[string]string{verr.Field: verr.Message},
				})
			case errors.Is(err, payment.ErrInProgress):
				c.JSON(http.StatusConflict, gin.H{"error": "payment_in_progress"})
			case errors.Is(err, payment.ErrMethodMismatch):
				c.JSON(http.StatusConflict, gin.H{"error": "payment_method_mismatch"})
			case errors.Is(err, orders.ErrOrderExists):
				c.JSON(http.StatusConflict, gin.H{"error": "order_exists"})
			case errors.Is(err, payment.ErrProvider):
				c.JSON(http.StatusBadGateway, gin.H{"error": "payment_failed"})
			default:
				cfg.requestLog(c).Error("create payment failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			}
			return
		}
		c.JSON(http.StatusOK, res)
	})

	limited.GET("/status", func(c *gin.Context) {
		number := c.Query("order")
		if number == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_order"})
			return
		}
		order, pay, err := cfg.Reconciler.Status(c.Request.Context(), number)
		if err != nil {
			if errors.Is(err, reconcile.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
				return
			}
			cfg.requestLog(c).Warn("payment status poll failed", zap.String("order_number", number), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "status_unavailable"})
			return
		}
		var info *paymentInfo
		if pay != nil {
			info = &paymentInfo{
				ID:                pay.IDString(),
				Status:            pay.Status,
				StatusDetail:      pay.StatusDetail,
				PaymentMethodID:   pay.PaymentMethodID,
				TransactionAmount: pay.TransactionAmount,
				DateApproved:      pay.DateApproved,
			}
		}
		c.JSON(http.StatusOK, gin.H{"order": order, "paymentInfo": info})
	})

	g.POST("/webhook", func(c *gin.Context) {
		log := cfg.requestLog(c)
		in := reconcile.WebhookInput{
			DataID:    c.Query("data.id"),
			Signature: c.GetHeader("x-signature"),
			RequestID: c.GetHeader("x-request-id"),
		}
		if in.DataID == "" {
			in.DataID = c.Query("id")
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			log.Warn("read webhook body", zap.Error(err))
		} else if len(body) > 0 {
			if err := json.Unmarshal(body, &in.Notification); err != nil {
				log.Warn("malformed webhook body", zap.Error(err))
			}
		}
		if in.Notification.Type == "" && in.Notification.Topic == "" {
			in.Notification.Type = c.Query("type")
			in.Notification.Topic = c.Query("topic")
		}

		if err := cfg.Reconciler.Webhook(c.Request.Context(), in); err != nil {
			if errors.Is(err, mercadopago.ErrInvalidSignature) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
				return
			}
			log.Error("webhook failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	})
}

func toCreateRequest(req validation.CreatePaymentRequest) payment.CreateRequest {
	items := make([]orders.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.LineItem{
			ProductID: it.ID,
			Name:      it.Name,
			Slug:      it.Slug,
			UnitPrice: it.Price,
			Quantity:  it.Quantity,
			Images:    it.Images,
		})
	}
	a := req.ShippingAddress
	out := payment.CreateRequest{
		OrderNumber:   req.OrderID,
		UserID:        req.UserID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Items:         items,
		ShippingPrice: req.ShippingPrice,
		ShippingAddress: orders.Address{
			RecipientName: a.RecipientName,
			TaxID:         a.TaxID,
			Phone:         a.Phone,
			Street:        a.Street,
			Number:        a.Number,
			Complement:    a.Complement,
			Neighborhood:  a.Neighborhood,
			City:          a.City,
			State:         a.State,
			PostalCode:    a.PostalCode,
			Country:       a.Country,
		},
		PaymentMethod: req.PaymentMethod,
		TaxID:         req.TaxID,
	}
	if req.ShippingOption != nil {
		out.ShippingOption = req.ShippingOption.ID
	}
	return out
}
