package axeapi

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorKind classifies device communication failures.
type ErrorKind int

const (
	// KindUnreachable indicates a timeout, refused connection, or other
	// network-level failure before a valid HTTP exchange completed.
	KindUnreachable ErrorKind = iota
	// KindMalformedResponse indicates a valid HTTP response whose payload
	// could not be parsed or did not carry the expected shape.
	KindMalformedResponse
	// KindHTTP indicates a non-success HTTP status from the device.
	KindHTTP
	// KindValidation indicates a caller-supplied value that failed a
	// local precondition; no network I/O was attempted.
	KindValidation
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "Unreachable"
	case KindMalformedResponse:
		return "Malformed Response"
	case KindHTTP:
		return "HTTP Error"
	case KindValidation:
		return "Validation Error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// DeviceError is an error from a single device interaction.
type DeviceError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int    // HTTP status code (if applicable)
	IP         string // device address for context
	Err        error  // underlying error (if any)
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// classifyNetworkError folds a transport error into the taxonomy. Timeouts,
// refused connections, unreachable hosts and DNS failures all classify as
// Unreachable: from the fleet's point of view the device did not answer.
func classifyNetworkError(err error, ip string) *DeviceError {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return classifyNetworkError(urlErr.Err, ip)
	}

	msg := "device did not respond"
	switch {
	case os.IsTimeout(err):
		msg = "request timed out"
	case errors.Is(err, syscall.ECONNREFUSED):
		msg = "connection refused"
	case errors.Is(err, syscall.EHOSTUNREACH):
		msg = "host unreachable"
	case errors.Is(err, syscall.ENETUNREACH):
		msg = "network unreachable"
	default:
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			msg = fmt.Sprintf("cannot resolve %s", dnsErr.Name)
		}
	}

	return &DeviceError{Kind: KindUnreachable, Message: msg, IP: ip, Err: err}
}

// NewUnreachableError creates an Unreachable error with classification of
// the underlying cause.
func NewUnreachableError(ip string, err error) *DeviceError {
	if classified := classifyNetworkError(err, ip); classified != nil {
		return classified
	}
	return &DeviceError{Kind: KindUnreachable, Message: "device unreachable", IP: ip}
}

// NewMalformedResponseError creates a MalformedResponse error.
func NewMalformedResponseError(ip, message string, err error) *DeviceError {
	return &DeviceError{Kind: KindMalformedResponse, Message: message, IP: ip, Err: err}
}

// NewHTTPError creates an error for a non-success device status code. A
// short prefix of the response body is kept for diagnostics.
func NewHTTPError(ip string, statusCode int, body string) *DeviceError {
	msg := fmt.Sprintf("unexpected status code: %d", statusCode)
	if snippet := strings.TrimSpace(body); snippet != "" {
		if len(snippet) > 120 {
			snippet = snippet[:120]
		}
		msg = fmt.Sprintf("%s: %s", msg, snippet)
	}
	return &DeviceError{
		Kind:       KindHTTP,
		Message:    msg,
		StatusCode: statusCode,
		IP:         ip,
	}
}

// NewValidationError creates a local precondition failure. No request is
// made for these; ip only identifies the target the caller named.
func NewValidationError(ip, message string) *DeviceError {
	return &DeviceError{Kind: KindValidation, Message: message, IP: ip}
}

// IsUnreachable checks whether an error classifies as Unreachable.
func IsUnreachable(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Kind == KindUnreachable
}

// IsMalformedResponse checks whether an error classifies as a malformed or
// unexpected device payload.
func IsMalformedResponse(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Kind == KindMalformedResponse
}

// IsValidation checks whether an error is a caller-input validation error.
func IsValidation(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Kind == KindValidation
}
