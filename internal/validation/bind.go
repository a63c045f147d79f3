package validation

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// tagCodes maps validator tags to the error codes returned to clients.
var tagCodes = map[string]string{
	"required":                    "required",
	"email":                       "invalid_email",
	"cep":                         "invalid_postal_code",
	"taxid":                       "invalid_tax_id",
	"oneof":                       "not_allowed",
	"min":                         "too_small",
	"max":                         "too_large",
	"gt":                          "must_be_positive",
	"gte":                         "must_not_be_negative",
	"shipping_price_match_option": "shipping_price_mismatch",
}

// BindAndValidate binds the JSON body into out and validates it. On failure it
// writes a 400 with an error code and, where known, a field -> code map keyed by
// the JSON path (e.g. "shippingAddress.postalCode"), and returns the error so
// the handler can stop.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		body := gin.H{"error": "invalid_request_body"}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			body["fields"] = map[string]string{te.Field: "invalid_type"}
		}
		c.JSON(http.StatusBadRequest, body)
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["body"] = "invalid"
		return out
	}
	for _, fe := range ve {
		code, ok := tagCodes[fe.Tag()]
		if !ok {
			code = fe.Tag()
		}
		out[fieldPath(fe)] = code
	}
	return out
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validatorv10.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// jsonFieldName makes validator namespaces use JSON names.
func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
