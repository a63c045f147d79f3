package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
	"go.uber.org/zap"
)

// RegisterShippingRoutes registers POST /shipping/calculate.
func RegisterShippingRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.POST("/shipping/calculate", func(c *gin.Context) {
		var req validation.ShippingCalculateRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}

		items := make([]shipping.Item, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, shipping.Item{ID: it.ID, Quantity: it.Quantity, Price: it.Price})
		}
		opts, err := cfg.Shipping.Quote(c.Request.Context(), req.CEP, items)
		if err != nil {
			if errors.Is(err, shipping.ErrInvalidPostalCode) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cep"})
				return
			}
			cfg.requestLog(c).Error("shipping quote failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		c.JSON(http.StatusOK, opts)
	})
}
