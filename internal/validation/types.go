package validation

// CartItem is a checkout line as sent by the storefront. Name and price are
// display hints only; the order is priced from the catalog.
type CartItem struct {
	ID       string   `json:"id" validate:"required"`
	Name     string   `json:"name,omitempty"`
	Price    float64  `json:"price,omitempty" validate:"gte=0"`
	Quantity int      `json:"quantity" validate:"required,min=1"`
	Images   []string `json:"images,omitempty"`
	Slug     string   `json:"slug,omitempty"`
}

// ShippingAddress is the delivery address collected at the shipping step.
type ShippingAddress struct {
	RecipientName string `json:"recipientName" validate:"required"`
	TaxID         string `json:"taxId,omitempty" validate:"omitempty,taxid"`
	Phone         string `json:"phone,omitempty"`
	Street        string `json:"street" validate:"required"`
	Number        string `json:"number" validate:"required"`
	Complement    string `json:"complement,omitempty"`
	Neighborhood  string `json:"neighborhood,omitempty"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state" validate:"required"`
	PostalCode    string `json:"postalCode" validate:"required,cep"`
	Country       string `json:"country,omitempty"`
}

// ShippingOption is the option the customer picked.
type ShippingOption struct {
	ID    string  `json:"id" validate:"required"`
	Name  string  `json:"name"`
	Price float64 `json:"price" validate:"gte=0"`
}

// CreatePaymentRequest is the payload for POST /payment/create
type CreatePaymentRequest struct {
	Items           []CartItem        `json:"items" validate:"required,min=1,dive"`
	ShippingPrice   float64           `json:"shippingPrice" validate:"gte=0"`
	CustomerEmail   string            `json:"customerEmail" validate:"required,email"`
	CustomerName    string            `json:"customerName" validate:"required"`
	OrderID         string            `json:"orderId,omitempty" validate:"omitempty,max=64"` // client supplied order number, optional
	ShippingAddress ShippingAddress   `json:"shippingAddress"`
	ShippingOption  *ShippingOption   `json:"shippingOption,omitempty" validate:"omitempty"`
	UserID          string            `json:"userId" validate:"required"`
	PaymentMethod   string            `json:"paymentMethod" validate:"required,oneof=pix card"`
	TaxID           string            `json:"taxId,omitempty" validate:"omitempty,taxid"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ShippingItem is one line of a shipping quote request.
type ShippingItem struct {
	ID       string  `json:"id" validate:"required"`
	Quantity int     `json:"quantity" validate:"required,min=1"`
	Price    float64 `json:"price,omitempty" validate:"gte=0"`
}

// ShippingCalculateRequest is the payload for POST /shipping/calculate.
// The postal code is validated by the shipping package so bad input never reaches a provider.
type ShippingCalculateRequest struct {
	CEP   string         `json:"cep" validate:"required"`
	Items []ShippingItem `json:"items" validate:"required,min=1,dive"`
}

// SyncStatusRequest is the payload for POST /orders/sync-status
type SyncStatusRequest struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId,omitempty"`
	CartID    string `json:"cartId,omitempty"`
}

// AddressRequest is the payload for creating or replacing a saved address.
type AddressRequest struct {
	Label       string `json:"label" validate:"max=40"`
	Street      string `json:"street" validate:"required"`
	Number      string `json:"number" validate:"required"`
	Complement  string `json:"complement,omitempty"`
	City        string `json:"city" validate:"required"`
	State       string `json:"state" validate:"required"`
	PostalCode  string `json:"postalCode" validate:"required,cep"`
	Country     string `json:"country" validate:"omitempty,len=2"`
	AddressType string `json:"addressType" validate:"omitempty,oneof=shipping billing both"`
	IsDefault   bool   `json:"isDefault"`
}

// AdminStatusRequest is the payload for PATCH /admin/orders/:orderNumber/status
type AdminStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid approved shipped delivered cancelled refunded charged_back"`
}

// CartItemRequest adds a catalog product to a cart.
type CartItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CartQuantityRequest sets the quantity of a cart line; zero or less removes it.
type CartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// StartCheckoutRequest opens a checkout for a stored cart.
type StartCheckoutRequest struct {
	CartID string `json:"cartId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"required"`
}

// SelectOptionRequest picks a quoted shipping option.
type SelectOptionRequest struct {
	OptionID string `json:"optionId" validate:"required"`
}

// SelectMethodRequest picks the payment method.
type SelectMethodRequest struct {
	Method string `json:"method" validate:"required"`
}
