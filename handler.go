package svcrouter

import "context"

// Handler turns a (method, path) pair into a response.
// Authentication or throttling layers wrap a Handler; the router itself does neither.
type Handler interface {
	Route(ctx context.Context, method, path string) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, method, path string) Response

func (f HandlerFunc) Route(ctx context.Context, method, path string) Response {
	return f(ctx, method, path)
}
