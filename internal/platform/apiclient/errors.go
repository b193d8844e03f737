package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks failures where no usable response was obtained:
	// network, DNS, connection reset, or a success response whose JSON body
	// could not be parsed.
	ErrTransport = errors.New("could not reach server")

	// ErrDecode is wrapped in a TransportError when a response declares JSON
	// but the body does not parse.
	ErrDecode = errors.New("malformed JSON response")

	// ErrHTTP matches any HTTPError via errors.Is.
	ErrHTTP = errors.New("http error")

	// ErrInvalidURL is returned before any request is sent.
	ErrInvalidURL = errors.New("invalid request url")

	// ErrNilBody is returned before any request is sent when Options.Body
	// holds a nil pointer.
	ErrNilBody = errors.New("request body is nil")

	// ErrNotJSON is returned by Response.Decode for binary responses.
	ErrNotJSON = errors.New("response is not JSON")
)

// HTTPError is a non-2xx response. Message is the backend's human readable
// message, or "Error <status>" when the body carried none. Callers that need
// to tell failures apart do so by Message; Kind is informational.
type HTTPError struct {
	Status  int
	Message string
	Kind    string
}

func (e *HTTPError) Error() string { return e.Message }

// ErrorKind returns the backend's machine error tag, if any.
func (e *HTTPError) ErrorKind() string { return e.Kind }

// Is makes errors.Is(err, ErrHTTP) true for every HTTPError.
func (e *HTTPError) Is(target error) bool { return target == ErrHTTP }

// TransportError wraps a failure to obtain a response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrTransport, e.Method, e.URL, e.Err)
}

// Unwrap exposes both ErrTransport and the underlying cause.
func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// StatusMessage is the fallback message for a failure without a usable body.
func StatusMessage(status int) string {
	return fmt.Sprintf("Error %d", status)
}
