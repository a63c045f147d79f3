package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/storefront-checkout/internal/addresses"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
	"go.uber.org/zap"
)

// RegisterAddressRoutes registers the saved address routes of a user.
func RegisterAddressRoutes(r *gin.Engine, cfg HandlerConfig) {
	g := r.Group("/users/:userId/addresses")

	g.GET("", func(c *gin.Context) {
		list, err := cfg.Addresses.List(c.Request.Context(), c.Param("userId"))
		if err != nil {
			addressError(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	g.POST("", func(c *gin.Context) {
		var req validation.AddressRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}
		addr, err := cfg.Addresses.Create(c.Request.Context(), toAddress(c.Param("userId"), "", req))
		if err != nil {
			addressError(c, cfg, err)
			return
		}
		c.JSON(http.StatusCreated, addr)
	})

	g.PUT("/:id", func(c *gin.Context) {
		var req validation.AddressRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}
		owner, id := c.Param("userId"), c.Param("id")
		addr, err := cfg.Addresses.Update(c.Request.Context(), toAddress(owner, id, req))
		if err != nil {
			addressError(c, cfg, err)
			return
		}
		if req.IsDefault && !addr.IsDefault {
			if err := cfg.Addresses.SetDefault(c.Request.Context(), owner, id); err != nil {
				addressError(c, cfg, err)
				return
			}
			addr.IsDefault = true
		}
		c.JSON(http.StatusOK, addr)
	})

	g.DELETE("/:id", func(c *gin.Context) {
		if err := cfg.Addresses.Delete(c.Request.Context(), c.Param("userId"), c.Param("id")); err != nil {
			addressError(c, cfg, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.POST("/:id/default", func(c *gin.Context) {
		owner := c.Param("userId")
		if err := cfg.Addresses.SetDefault(c.Request.Context(), owner, c.Param("id")); err != nil {
			addressError(c, cfg, err)
			return
		}
		list, err := cfg.Addresses.List(c.Request.Context(), owner)
		if err != nil {
			addressError(c, cfg, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})
}

func toAddress(owner, id string, req validation.AddressRequest) addresses.Address {
	country := strings.ToUpper(req.Country)
	if country == "" {
		country = "BR"
	}
	return addresses.Address{
		ID:          id,
		OwnerID:     owner,
		Label:       req.Label,
		Street:      req.Street,
		Number:      req.Number,
		Complement:  req.Complement,
		City:        req.City,
		State:       strings.ToUpper(req.State),
		PostalCode:  validation.Digits(req.PostalCode),
		Country:     country,
		IsDefault:   req.IsDefault,
		AddressType: req.AddressType,
	}
}

func addressError(c *gin.Context, cfg HandlerConfig, err error) {
	if errors.Is(err, addresses.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "address_not_found"})
		return
	}
	cfg.requestLog(c).Error("address operation failed", zap.String("user_id", c.Param("userId")), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
