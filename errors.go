package onvif

import (
	"errors"
	"fmt"
)

var (
	// ErrAddress is wrapped by every AddressError.
	ErrAddress = errors.New("onvif: invalid service address")

	// ErrInconsistent is wrapped by every InconsistencyError.
	ErrInconsistent = errors.New("onvif: inconsistent service directory")

	// ErrMediaUnavailable means the device advertises no media service.
	ErrMediaUnavailable = errors.New("onvif: media service not available")
)

// AddressError is an address that cannot be parsed, or a service address
// outside the base address the device was found at.
type AddressError struct {
	Namespace string
	Address   string
	Base      string
	Err       error
}

func (e *AddressError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("onvif: invalid address %q: %v", e.Address, e.Err)
	case e.Namespace != "":
		return fmt.Sprintf("onvif: service %s address %q is not within base address %q", e.Namespace, e.Address, e.Base)
	default:
		return fmt.Sprintf("onvif: address %q is not within base address %q", e.Address, e.Base)
	}
}

func (e *AddressError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAddress, e.Err}
	}
	return []error{ErrAddress}
}

// InconsistencyError is a device management address in the service
// directory that differs from the one the session was opened on.
type InconsistencyError struct {
	Advertised string
	Expected   string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("onvif: advertised device management address %q, expected %q", e.Advertised, e.Expected)
}

func (e *InconsistencyError) Unwrap() error {
	return ErrInconsistent
}
