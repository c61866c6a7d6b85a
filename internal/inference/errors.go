package inference

import (
	"errors"
	"net/http"
)

// dependencyUnavailableError signals a missing runtime (llama.cpp binary,
// server or build tag) so the HTTP layer can answer 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

func (e dependencyUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// upstreamError is a non-2xx answer from a llama.cpp server.
type upstreamError struct {
	status int
	body   string
}

func (e upstreamError) Error() string {
	return "llama server http error: " + http.StatusText(e.status) + ": " + e.body
}

// StatusCode maps upstream failures to 502.
func (e upstreamError) StatusCode() int { return http.StatusBadGateway }
