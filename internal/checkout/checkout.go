// Package checkout drives a customer through shipping, payment and confirmation.
package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/imrishuroy/storefront-checkout/internal/cart"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
	"go.uber.org/zap"
)

// Step is a checkout stage.
type Step string

const (
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

var (
	ErrSubmitting         = errors.New("a payment submission is already in flight")
	ErrWrongStep          = errors.New("action not allowed in the current step")
	ErrIncompleteAddress  = errors.New("shipping address is incomplete")
	ErrNoShippingOption   = errors.New("select a shipping option")
	ErrUnknownOption      = errors.New("shipping option not available")
	ErrInvalidMethod      = errors.New("payment method must be pix or card")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrPaymentUnavailable = errors.New("payment could not be created, please try again")
)

// Session identifies the signed-in customer.
type Session struct {
	UserID string
	Email  string
	Name   string
}

// Form is the shipping step input.
type Form struct {
	RecipientName string `json:"recipientName"`
	TaxID         string `json:"taxId,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Street        string `json:"street"`
	Number        string `json:"number"`
	Complement    string `json:"complement,omitempty"`
	Neighborhood  string `json:"neighborhood,omitempty"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postalCode"`
}

func (f Form) complete() bool {
	for _, v := range []string{f.RecipientName, f.Street, f.Number, f.City, f.State, f.PostalCode} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Quoter returns shipping options for a destination.
type Quoter interface {
	Quote(ctx context.Context, postalCode string, items []shipping.Item) ([]shipping.Option, error)
}

// Submitter creates the order and its payment intent.
type Submitter interface {
	Create(ctx context.Context, req payment.CreateRequest) (*payment.Result, error)
}

// CartClearer empties the persisted cart.
type CartClearer interface {
	Clear(ctx context.Context, cartID string) error
}

// Confirmation is the outcome shown after a PIX order.
type Confirmation struct {
	OrderNumber  string `json:"orderNumber"`
	PaymentID    string `json:"paymentId,omitempty"`
	QRCode       string `json:"qr_code,omitempty"`
	QRCodeBase64 string `json:"qr_code_base64,omitempty"`
	TicketURL    string `json:"ticket_url,omitempty"`
}

// View is a consistent snapshot of a checkout for rendering.
type View struct {
	Step           Step              `json:"step"`
	Error          string            `json:"error,omitempty"`
	Form           Form              `json:"form"`
	Options        []shipping.Option `json:"options"`
	SelectedOption string            `json:"selectedOption,omitempty"`
	PaymentMethod  string            `json:"paymentMethod,omitempty"`
	Submitting     bool              `json:"submitting"`
	RedirectURL    string            `json:"redirectUrl,omitempty"`
	Confirmation   *Confirmation     `json:"confirmation,omitempty"`
}

// Checkout is one customer's checkout flow. It is safe for concurrent use;
// while a submission is in flight every mutating call returns ErrSubmitting.
type Checkout struct {
	mu sync.Mutex

	session   Session
	cart      *cart.Cart
	quoter    Quoter
	submitter Submitter
	carts     CartClearer
	log       *zap.Logger
	nowFunc   func() time.Time

	step         Step
	form         Form
	options      []shipping.Option
	selected     *shipping.Option
	method       string
	orderNumber  string
	submitting   bool
	err          string
	redirectURL  string
	confirmation *Confirmation
}

// New starts a checkout at the shipping step.
func New(session Session, c *cart.Cart, quoter Quoter, submitter Submitter, carts CartClearer, log *zap.Logger) *Checkout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checkout{
		session:   session,
		cart:      c,
		quoter:    quoter,
		submitter: submitter,
		carts:     carts,
		log:       log,
		nowFunc:   time.Now,
		step:      StepShipping,
	}
}

// View returns the whole state under one lock.
func (c *Checkout) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Step:          c.step,
		Error:         c.err,
		Form:          c.form,
		Options:       append([]shipping.Option{}, c.options...),
		PaymentMethod: c.method,
		Submitting:    c.submitting,
		RedirectURL:   c.redirectURL,
		Confirmation:  c.confirmation,
	}
	if c.selected != nil {
		v.SelectedOption = c.selected.ID
	}
	return v
}

// Step returns the current stage.
func (c *Checkout) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Error returns the message of the last failed action, empty after a success.
func (c *Checkout) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Form returns the shipping form as last entered.
func (c *Checkout) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// Options returns the last quoted shipping options.
func (c *Checkout) Options() []shipping.Option {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]shipping.Option(nil), c.options...)
}

// Selected returns the chosen shipping option, if any.
func (c *Checkout) Selected() (shipping.Option, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return shipping.Option{}, false
	}
	return *c.selected, true
}

// RedirectURL is set after a card submission.
func (c *Checkout) RedirectURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redirectURL
}

// Confirmation is set once the PIX branch reached the confirmation step.
func (c *Checkout) Confirmation() *Confirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmation
}

// SetForm stores the shipping form. Changing the postal code drops the quoted options.
func (c *Checkout) SetForm(f Form) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(StepShipping); err != nil {
		return err
	}
	if f.PostalCode != c.form.PostalCode {
		c.options = nil
		c.selected = nil
	}
	c.form = f
	c.err = ""
	return nil
}

// QuoteShipping fetches options for the form's postal code and pre-selects the first.
func (c *Checkout) QuoteShipping(ctx context.Context) ([]shipping.Option, error) {
	c.mu.Lock()
	if err := c.guard(StepShipping); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	postal := c.form.PostalCode
	items := make([]shipping.Item, 0, len(c.cart.Items))
	for _, it := range c.cart.Items {
		items = append(items, shipping.Item{ID: it.ProductID, Quantity: it.Quantity, Price: it.UnitPrice})
	}
	c.mu.Unlock()

	opts, err := c.quoter.Quote(ctx, postal, items)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return nil, c.fail(err)
	}
	c.options = opts
	c.selected = nil
	if len(opts) > 0 {
		first := opts[0]
		c.selected = &first
	}
	c.err = ""
	return append([]shipping.Option(nil), opts...), nil
}

// SelectShipping picks one of the quoted options.
func (c *Checkout) SelectShipping(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(StepShipping); err != nil {
		return err
	}
	for _, o := range c.options {
		if o.ID == id {
			o := o
			c.selected = &o
			c.err = ""
			return nil
		}
	}
	return c.fail(ErrUnknownOption)
}

// ContinueToPayment advances once the address is complete and an option is selected.
func (c *Checkout) ContinueToPayment() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(StepShipping); err != nil {
		return err
	}
	if !c.form.complete() {
		return c.fail(ErrIncompleteAddress)
	}
	if c.selected == nil {
		return c.fail(ErrNoShippingOption)
	}
	c.step = StepPayment
	c.err = ""
	return nil
}

// Back returns from payment to shipping. A new submission afterwards creates a new order.
func (c *Checkout) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(StepPayment); err != nil {
		return err
	}
	c.step = StepShipping
	c.method = ""
	c.orderNumber = ""
	c.redirectURL = ""
	c.err = ""
	return nil
}

// SelectMethod chooses pix or card. After a failed attempt the order number is
// kept and the service switches the stored order to the new method. Once a card
// preference was issued that order is spoken for, so another method starts a new one.
func (c *Checkout) SelectMethod(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(StepPayment); err != nil {
		return err
	}
	if method != orders.MethodPix && method != orders.MethodCard {
		return c.fail(ErrInvalidMethod)
	}
	if method != c.method && c.redirectURL != "" {
		c.orderNumber = ""
		c.redirectURL = ""
	}
	c.method = method
	c.err = ""
	return nil
}

// Submit creates the order. The order number is fixed on the first attempt so a
// retry after a failure resumes the same order instead of creating another.
func (c *Checkout) Submit(ctx context.Context) (*payment.Result, error) {
	c.mu.Lock()
	if err := c.guard(StepPayment); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.method == "" {
		err := c.fail(ErrInvalidMethod)
		c.mu.Unlock()
		return nil, err
	}
	if len(c.cart.Items) == 0 {
		err := c.fail(ErrEmptyCart)
		c.mu.Unlock()
		return nil, err
	}
	if c.orderNumber == "" {
		c.orderNumber = orders.NewOrderNumber(c.nowFunc())
	}
	req := c.request()
	c.submitting = true
	c.mu.Unlock()

	res, err := c.submitter.Create(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if err != nil {
		c.log.Warn("checkout submission failed",
			zap.String("order_number", req.OrderNumber),
			zap.String("payment_method", req.PaymentMethod),
			zap.Error(err))
		var verr *payment.ValidationError
		if errors.As(err, &verr) {
			return nil, c.fail(err)
		}
		c.err = ErrPaymentUnavailable.Error()
		return nil, err
	}

	c.err = ""
	if res.Type != payment.TypePix {
		c.redirectURL = res.Payload.InitPoint
		return res, nil
	}

	c.confirmation = &Confirmation{
		OrderNumber:  res.Order,
		PaymentID:    res.Payload.PaymentID,
		QRCode:       res.Payload.QRCode,
		QRCodeBase64: res.Payload.QRCodeBase64,
		TicketURL:    res.Payload.TicketURL,
	}
	c.step = StepConfirmation
	c.cart.Clear()
	if c.carts != nil {
		if err := c.carts.Clear(ctx, c.cart.ID); err != nil {
			c.log.Warn("clear cart after pix order",
				zap.String("cart_id", c.cart.ID),
				zap.String("order_number", res.Order),
				zap.Error(err))
		}
	}
	return res, nil
}

func (c *Checkout) request() payment.CreateRequest {
	items := make([]orders.LineItem, 0, len(c.cart.Items))
	for _, it := range c.cart.Items {
		items = append(items, orders.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Slug:      it.Slug,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Images:    it.Images,
		})
	}
	f := c.form
	return payment.CreateRequest{
		OrderNumber:    c.orderNumber,
		UserID:         c.session.UserID,
		CustomerEmail:  c.session.Email,
		CustomerName:   c.session.Name,
		Items:          items,
		ShippingPrice:  c.selected.Price,
		ShippingOption: c.selected.ID,
		ShippingAddress: orders.Address{
			RecipientName: f.RecipientName,
			TaxID:         f.TaxID,
			Phone:         f.Phone,
			Street:        f.Street,
			Number:        f.Number,
			Complement:    f.Complement,
			Neighborhood:  f.Neighborhood,
			City:          f.City,
			State:         f.State,
			PostalCode:    f.PostalCode,
		},
		PaymentMethod: c.method,
		TaxID:         f.TaxID,
	}
}

// guard must be called with mu held.
func (c *Checkout) guard(want Step) error {
	if c.submitting {
		return ErrSubmitting
	}
	if c.step != want {
		return ErrWrongStep
	}
	return nil
}

// fail must be called with mu held.
func (c *Checkout) fail(err error) error {
	c.err = err.Error()
	return err
}
