package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/storefront-checkout/internal/checkout"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
	"go.uber.org/zap"
)

type checkoutResponse struct {
	ID string `json:"id"`
	checkout.View
}

// RegisterCheckoutRoutes exposes the checkout flow as server-side sessions.
// Nothing is registered when no session registry is configured.
func RegisterCheckoutRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Checkouts == nil {
		return
	}

	r.POST("/checkout", func(c *gin.Context) {
		var req validation.StartCheckoutRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}
		ct, err := cfg.Carts.Get(c.Request.Context(), req.CartID)
		if err != nil {
			cartError(c, cfg, err)
			return
		}
		if len(ct.Items) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_cart"})
			return
		}
		id, co := cfg.Checkouts.Start(checkout.Session{UserID: req.UserID, Email: req.Email, Name: req.Name}, ct)
		c.JSON(http.StatusCreated, checkoutResponse{ID: id, View: co.View()})
	})

	g := r.Group("/checkout/:id")

	g.GET("", withCheckout(cfg, func(c *gin.Context, co *checkout.Checkout) error {
		return nil
	}))

	g.PUT("/address", withCheckout(cfg, func(c *gin.Context, co *checkout.Checkout) error {
		var form checkout.Form
		if err := c.ShouldBindJSON(&form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
			return errResponded
		}
		return co.SetForm(form)
	}))

	g.POST("/quote", withCheckout(cfg, func(c *gin.Context, co *checkout.Checkout) error {
		_, err := co.QuoteShipping(c.Request.Context())
		return err
	}))

	g.POST("/shipping", withCheckout(cfg, func(c *gin.Context, co *checkout.Checkout) error {
		var req validation.SelectOptionRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return errResponded
		}
		return co.SelectShipping(req.OptionID)
	}))

	g.POST("/continue", withCheckout(cfg, func(c *gin.Context, co *checkout.Checkout) error {
		return co.ContinueToPayment()
	}))

	g.POST("/back", withCheckout(cfg, func(c *gin.Context, co *checkout.Checkout) error {
		return co.Back()
	}))

	g.POST("/method", withCheckout(cfg, func(c *gin.Context, co *checkout.Checkout) error {
		var req validation.SelectMethodRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return errResponded
		}
		return co.SelectMethod(req.Method)
	}))

	g.POST("/submit", withCheckout(cfg, func(c *gin.Context, co *checkout.Checkout) error {
		_, err := co.Submit(c.Request.Context())
		return err
	}))
}

// errResponded tells withCheckout the action already wrote its response.
var errResponded = errors.New("response written")

// withCheckout resolves the session, runs the action and renders the
// resulting state, or the error code next to the unchanged state.
func withCheckout(cfg HandlerConfig, action func(*gin.Context, *checkout.Checkout) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		co, err := cfg.Checkouts.Get(id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "checkout_not_found"})
			return
		}
		err = action(c, co)
		if errors.Is(err, errResponded) {
			return
		}
		if err != nil {
			status, code := checkoutErrorCode(err)
			if status >= http.StatusInternalServerError {
				cfg.requestLog(c).Error("checkout action failed",
					zap.String("checkout_id", id), zap.Error(err))
			}
			c.JSON(status, gin.H{"error": code, "checkout": co.View()})
			return
		}
		c.JSON(http.StatusOK, checkoutResponse{ID: id, View: co.View()})
	}
}

func checkoutErrorCode(err error) (int, string) {
	var verr *payment.ValidationError
	switch {
	case errors.Is(err, checkout.ErrSubmitting):
		return http.StatusConflict, "submission_in_flight"
	case errors.Is(err, checkout.ErrWrongStep):
		return http.StatusConflict, "wrong_step"
	case errors.Is(err, checkout.ErrIncompleteAddress):
		return http.StatusBadRequest, "incomplete_address"
	case errors.Is(err, checkout.ErrNoShippingOption):
		return http.StatusBadRequest, "shipping_option_required"
	case errors.Is(err, checkout.ErrUnknownOption):
		return http.StatusBadRequest, "unknown_shipping_option"
	case errors.Is(err, checkout.ErrInvalidMethod):
		return http.StatusBadRequest, "invalid_payment_method"
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, shipping.ErrInvalidPostalCode):
		return http.StatusBadRequest, "invalid_postal_code"
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, payment.ErrInProgress):
		return http.StatusConflict, "payment_in_progress"
	case errors.Is(err, payment.ErrMethodMismatch):
		return http.StatusConflict, "payment_method_mismatch"
	case errors.Is(err, payment.ErrProvider):
		return http.StatusBadGateway, "payment_failed"
	}
	return http.StatusInternalServerError, "internal_error"
}
