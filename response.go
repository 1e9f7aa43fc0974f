package svcrouter

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Request is the part of an inbound request the router looks at.
type Request struct {
	Method string
	// Path without query string.
	Path string
}

// ParseRequestLine parses an HTTP/1.x request line such as "GET /service/service1 HTTP/1.1".
// The protocol version is optional. Query strings are dropped from the path.
// It returns ErrMalformedRequest if method and path cannot be extracted.
func ParseRequestLine(line string) (Request, error) {
	fields := strings.Fields(strings.TrimRight(line, "\r\n"))
	if len(fields) < 2 || len(fields) > 3 {
		return Request{}, fmt.Errorf("%w: %q", ErrMalformedRequest, line)
	}
	if len(fields) == 3 && !strings.HasPrefix(fields[2], "HTTP/") {
		return Request{}, fmt.Errorf("%w: bad protocol %q", ErrMalformedRequest, fields[2])
	}
	u, err := url.ParseRequestURI(fields[1])
	if err != nil || !strings.HasPrefix(u.Path, "/") {
		return Request{}, fmt.Errorf("%w: bad target %q", ErrMalformedRequest, fields[1])
	}
	return Request{Method: fields[0], Path: u.Path}, nil
}

// Response is the result of routing one request.
type Response struct {
	StatusCode int
	Body       string
	// CacheStatus is set for service responses only.
	CacheStatus *CacheStatus
}

func textResponse(statusCode int, body string) Response {
	return Response{StatusCode: statusCode, Body: body}
}

// Bytes returns the HTTP/1.1 wire representation of the response:
// status line, Content-Length header, blank line, body.
func (r Response) Bytes() []byte {
	buf := &bytes.Buffer{}
	r.WriteTo(buf)
	return buf.Bytes()
}

// WriteTo writes the wire representation of the response to w.
func (r Response) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(r.StatusCode))
	if text := http.StatusText(r.StatusCode); text != "" {
		b.WriteString(" ")
		b.WriteString(text)
	}
	b.WriteString("\r\nContent-Length: ")
	b.WriteString(strconv.Itoa(len(r.Body)))
	b.WriteString("\r\n\r\n")
	b.WriteString(r.Body)
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
