package model

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrInvalidParameter = errors.New("") // Base error for invalid parameter
var ErrDataNotFound = errors.New("")     // Base error for data not found

// ErrCertificateRequestInvalid is returned when a CSR is structurally broken.
// It is a caller error, never a server fault.
var ErrCertificateRequestInvalid = fmt.Errorf("%w", ErrInvalidParameter)

// ErrMalformedSignature is returned by the DER/raw signature codec.
var ErrMalformedSignature = fmt.Errorf("%w", ErrInvalidParameter)

// ErrSigningFailed covers every failure of a signer variant: short/long output,
// callback error, remote transport or decode failure.
var ErrSigningFailed = errors.New("")

var ErrConfigurationFetchFailed = errors.New("")
var ErrEnrollmentFailed = errors.New("")

// ErrServiceUnavailable indicates the CA lost its key material after
// construction. It is fatal to the process, not recoverable per request.
var ErrServiceUnavailable = errors.New("")

var ErrCertNotFound = fmt.Errorf("%w", ErrDataNotFound)

func ErrToHttpStatus(err error) int {
	if errors.Is(err, ErrInvalidParameter) {
		return http.StatusBadRequest
	} else if errors.Is(err, ErrDataNotFound) {
		return http.StatusNotFound
	} else if errors.Is(err, ErrServiceUnavailable) {
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}
