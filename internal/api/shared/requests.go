package shared

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxJSONBodyBytes caps JSON request bodies.
const MaxJSONBodyBytes = 1 << 20

// Global validator instance for reuse
var validate = validator.New()

// DecodeJSON decodes the request body into the given struct.
func DecodeJSON(r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, MaxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return err
	}
	return nil
}

// ValidateRequest validates the given struct using the validator package.
func ValidateRequest(v interface{}) error {
	// Check if the object implements the Validate interface
	if validator, ok := v.(interface{ Validate() error }); ok {
		return validator.Validate()
	}

	// Otherwise, use the struct validator
	return validate.Struct(v)
}

// ValidateVar validates a single value against a validator tag.
func ValidateVar(value interface{}, tag string) error {
	return validate.Var(value, tag)
}

// ClientIP returns the address of the caller without its port. Proxy
// headers are resolved by chi's RealIP middleware before this runs.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
