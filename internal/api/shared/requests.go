package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes bounds every decoded request body.
const MaxBodyBytes = 1 << 20

var validate = validator.New()

// ErrInvalidBody is returned when a request body is not a single JSON value
// matching the target type.
var ErrInvalidBody = errors.New("invalid request body")

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// trailing data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON value", ErrInvalidBody)
	}
	return nil
}

// ValidateRequest validates v with its own Validate method when it has one,
// otherwise with struct tags.
func ValidateRequest(v interface{}) error {
	if validator, ok := v.(interface{ Validate() error }); ok {
		return validator.Validate()
	}
	return validate.Struct(v)
}
