package svcrouter

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestResponseBytes(t *testing.T) {
	tests := []struct {
		res  Response
		wire string
	}{
		{Health(), "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK"},
		{textResponse(http.StatusNotFound, "Not Found"), "HTTP/1.1 404 Not Found\r\nContent-Length: 9\r\n\r\nNot Found"},
		{textResponse(http.StatusMethodNotAllowed, "Method Not Allowed"), "HTTP/1.1 405 Method Not Allowed\r\nContent-Length: 18\r\n\r\nMethod Not Allowed"},
		{textResponse(http.StatusOK, ""), "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"},
		// Content-Length counts bytes, not runes
		{textResponse(http.StatusOK, "héllo"), "HTTP/1.1 200 OK\r\nContent-Length: 6\r\n\r\nhéllo"},
	}
	for _, tt := range tests {
		if got := string(tt.res.Bytes()); got != tt.wire {
			t.Fatalf("wire format is %q, expected %q", got, tt.wire)
		}
	}
}

func TestResponseBytesReadableByHTTPClient(t *testing.T) {
	wire := Response{StatusCode: http.StatusOK, Body: "Result from Service 1"}.Bytes()
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(wire)), nil)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK || string(body) != "Result from Service 1" {
		t.Fatalf("parsed %d %q", res.StatusCode, body)
	}
	if res.ContentLength != int64(len(body)) {
		t.Fatalf("content length %d", res.ContentLength)
	}
}

func TestParseRequestLine(t *testing.T) {
	valid := map[string]Request{
		"GET /health HTTP/1.1\r\n":               {Method: "GET", Path: "/health"},
		"GET /service/service1 HTTP/1.0":         {Method: "GET", Path: "/service/service1"},
		"POST /service/x?debug=1 HTTP/1.1\r\n":   {Method: "POST", Path: "/service/x"},
		"GET /":                                  {Method: "GET", Path: "/"},
		"GET http://example.com/health HTTP/1.1": {Method: "GET", Path: "/health"},
	}
	for line, expected := range valid {
		req, err := ParseRequestLine(line)
		if err != nil {
			t.Fatalf("%q: %v", line, err)
		}
		if req != expected {
			t.Fatalf("%q: parsed %+v", line, req)
		}
	}

	for _, line := range []string{"", "\r\n", "GET", "GET /a b HTTP/1.1", "GET /a FTP/1", "GET * HTTP/1.1", "GET relative HTTP/1.1"} {
		if _, err := ParseRequestLine(line); !errors.Is(err, ErrMalformedRequest) {
			t.Fatalf("%q: error %v", line, err)
		}
	}
}

func TestCacheStatusString(t *testing.T) {
	cs := CacheStatus{}
	cs.Forward(CacheStatusFwdUriMiss)
	if s := cs.String(); s != "svcrouter; fwd=uri-miss" {
		t.Fatalf("status is %s", s)
	}
	cs.Stored = true
	cs.Collapsed = true
	if s := cs.String(); s != "svcrouter; fwd=uri-miss; stored; collapsed" {
		t.Fatalf("status is %s", s)
	}
	cs = CacheStatus{}
	cs.Hit()
	if s := cs.String(); s != "svcrouter; hit" {
		t.Fatalf("status is %s", s)
	}
}
