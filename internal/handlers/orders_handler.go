package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/reconcile"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
	"go.uber.org/zap"
)

// RegisterOrdersRoutes registers status sync plus the account and admin order views.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.POST("/orders/sync-status", func(c *gin.Context) {
		var req validation.SyncStatusRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}

		res, err := cfg.Reconciler.Sync(c.Request.Context(), reconcile.SyncRequest{
			OrderNumber: req.OrderID,
			PaymentID:   req.PaymentID,
			CartID:      req.CartID,
		})
		if err != nil {
			switch {
			case errors.Is(err, reconcile.ErrOrderNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			case errors.Is(err, reconcile.ErrPaymentMismatch):
				c.JSON(http.StatusConflict, gin.H{"error": "payment_mismatch"})
			default:
				cfg.requestLog(c).Warn("sync status failed", zap.String("order_number", req.OrderID), zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "sync_failed"})
			}
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.GET("/orders/:orderNumber", func(c *gin.Context) {
		order, err := cfg.Orders.Get(c.Request.Context(), c.Param("orderNumber"))
		if err != nil {
			cfg.requestLog(c).Error("get order failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		c.JSON(http.StatusOK, order)
	})

	r.GET("/users/:userId/orders", func(c *gin.Context) {
		list, err := cfg.Orders.ListByOwner(c.Request.Context(), c.Param("userId"))
		if err != nil {
			cfg.requestLog(c).Error("list orders failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		if list == nil {
			list = []orders.Order{}
		}
		c.JSON(http.StatusOK, list)
	})

	r.PATCH("/admin/orders/:orderNumber/status", func(c *gin.Context) {
		var req validation.AdminStatusRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}
		number := c.Param("orderNumber")

		order, changed, err := cfg.Reconciler.SetStatus(c.Request.Context(), number, req.Status)
		if err != nil {
			if errors.Is(err, reconcile.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
				return
			}
			cfg.requestLog(c).Error("admin status change failed", zap.String("order_number", number), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		sameStage := order.Status == req.Status || (orders.IsConfirmed(order.Status) && orders.IsConfirmed(req.Status))
		if !changed && !sameStage {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "invalid_transition",
				"detail": fmt.Sprintf("%s -> %s", order.Status, req.Status),
			})
			return
		}
		c.JSON(http.StatusOK, order)
	})
}
