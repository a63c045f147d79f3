package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with the custom tags and struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(jsonFieldName)

	_ = v.RegisterValidation("cep", validateCEP)
	_ = v.RegisterValidation("taxid", validateTaxID)

	// register struct-level validation for CreatePaymentRequest to ensure
	// a selected shipping option agrees with the charged shipping price.
	v.RegisterStructValidation(createPaymentStructValidation, CreatePaymentRequest{})

	return v
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validateCEP accepts Brazilian postal codes with or without punctuation.
func validateCEP(fl validatorv10.FieldLevel) bool {
	return len(Digits(fl.Field().String())) == 8
}

// validateTaxID accepts CPF (11 digits) or CNPJ (14 digits).
func validateTaxID(fl validatorv10.FieldLevel) bool {
	n := len(Digits(fl.Field().String()))
	return n == 11 || n == 14
}

func createPaymentStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreatePaymentRequest)

	if req.ShippingOption != nil && req.ShippingOption.Price != req.ShippingPrice {
		sl.ReportError(req.ShippingPrice, "shippingPrice", "ShippingPrice", "shipping_price_match_option", "")
	}
}
