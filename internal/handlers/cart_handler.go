package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/storefront-checkout/internal/cart"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
	"go.uber.org/zap"
)

type cartResponse struct {
	Cart       *cart.Cart `json:"cart"`
	TotalItems int        `json:"total_items"`
	TotalPrice float64    `json:"total_price"`
}

func newCartResponse(c *cart.Cart) cartResponse {
	return cartResponse{Cart: c, TotalItems: c.TotalItems(), TotalPrice: c.TotalPrice()}
}

// RegisterCartRoutes registers the cart routes.
func RegisterCartRoutes(r *gin.Engine, cfg HandlerConfig) {
	g := r.Group("/cart/:cartId")

	g.GET("", func(c *gin.Context) {
		ct, err := cfg.Carts.Get(c.Request.Context(), c.Param("cartId"))
		if err != nil {
			cartError(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, newCartResponse(ct))
	})

	g.POST("/items", func(c *gin.Context) {
		var req validation.CartItemRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}
		ct, err := cfg.Carts.Add(c.Request.Context(), c.Param("cartId"), req.ProductID, req.Quantity)
		if err != nil {
			cartError(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, newCartResponse(ct))
	})

	g.PATCH("/items/:productId", func(c *gin.Context) {
		var req validation.CartQuantityRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}
		ct, err := cfg.Carts.SetQuantity(c.Request.Context(), c.Param("cartId"), c.Param("productId"), req.Quantity)
		if err != nil {
			cartError(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, newCartResponse(ct))
	})

	g.DELETE("/items/:productId", func(c *gin.Context) {
		ct, err := cfg.Carts.Remove(c.Request.Context(), c.Param("cartId"), c.Param("productId"))
		if err != nil {
			cartError(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, newCartResponse(ct))
	})

	g.DELETE("", func(c *gin.Context) {
		if err := cfg.Carts.Clear(c.Request.Context(), c.Param("cartId")); err != nil {
			cartError(c, cfg, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func cartError(c *gin.Context, cfg HandlerConfig, err error) {
	switch {
	case errors.Is(err, cart.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
	case errors.Is(err, cart.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "cart_item_not_found"})
	case errors.Is(err, cart.ErrOutOfStock):
		c.JSON(http.StatusConflict, gin.H{"error": "out_of_stock"})
	default:
		cfg.requestLog(c).Error("cart operation failed",
			zap.String("cart_id", c.Param("cartId")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
