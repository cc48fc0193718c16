package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable is returned by every forecast call when the model
	// artifact failed to load.
	ErrModelUnavailable = errors.New("model not loaded")

	// ErrBusy is returned when the compute queue cannot accept more work.
	ErrBusy = errors.New("forecast queue is full")

	// ErrNotFound is returned for unknown request ids.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a request parameter outside its allowed range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConnectivityError reports an unreachable backend (cache or store).
type ConnectivityError struct {
	Component string
	Err       error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Component, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ComputationError reports a failure inside model inference.
type ComputationError struct {
	HorizonDays int
	Err         error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("forecast computation for %d days failed: %v", e.HorizonDays, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConnectivity reports whether err is a *ConnectivityError.
func IsConnectivity(err error) bool {
	var c *ConnectivityError
	return errors.As(err, &c)
}
