package svcrouter

import "errors"

// Errors reported by Router.Resolve next to the response sent to the client.
// A service that is not registered is reported as registry.ErrServiceNotFound.
var (
	// ErrMalformedRequest means method and path could not be read from the request.
	// The router never sees such requests; transports answer them on their own.
	ErrMalformedRequest  = errors.New("malformed request")
	ErrUnsupportedMethod = errors.New("method not allowed")
	ErrRouteNotFound     = errors.New("route not found")
	// ErrBackendFailure wraps the error of a failed backend invocation.
	ErrBackendFailure = errors.New("backend invocation failed")
)
