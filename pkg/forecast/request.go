package forecast

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	// MinHorizonDays and MaxHorizonDays bound a forecast request.
	MinHorizonDays = 1
	MaxHorizonDays = 365

	// DefaultHorizonDays is used when a caller omits the horizon.
	DefaultHorizonDays = 30
)

var validate = validator.New()

// Request identifies a forecast by its normalized parameters.
type Request struct {
	HorizonDays int `validate:"min=1,max=365"`
}

// Validate checks the request bounds and returns a *ValidationError on failure.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ValidationError{
			Field:  "days",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinHorizonDays, MaxHorizonDays, r.HorizonDays),
		}
	}
	return &ValidationError{Field: "days", Reason: err.Error()}
}

// normalized renders the parameters in a canonical order. New parameters
// must be appended here so that every distinct request maps to a distinct string.
func (r Request) normalized() string {
	return fmt.Sprintf("horizon_days=%d", r.HorizonDays)
}

// CacheKey returns the request fingerprint: a hex SHA-256 of the normalized
// parameters, prefixed with the key namespace version.
func (r Request) CacheKey() string {
	sum := sha256.Sum256([]byte(r.normalized()))
	return "v1:" + hex.EncodeToString(sum[:])
}
