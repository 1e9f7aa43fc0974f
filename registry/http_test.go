package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte("Hello from backend"))
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	call := HTTP("svc", srv.URL, HTTPOptions{Logger: &logger})
	payload, err := call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hello from backend", payload)
}

func TestHTTPNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	_, err := HTTP("svc", srv.URL, HTTPOptions{Logger: &logger})(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestHTTPRejectsOversizedBody(t *testing.T) {
	var size atomic.Int64
	size.Store(maxPayloadBytes)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, size.Load()))
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	call := HTTP("big", srv.URL, HTTPOptions{Logger: &logger})

	payload, err := call(context.Background())
	require.NoError(t, err)
	assert.Len(t, payload, maxPayloadBytes)

	size.Store(maxPayloadBytes + 5)
	payload, err = call(context.Background())
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, payload)
}

func TestHTTPHonoursDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := HTTP("svc", srv.URL, HTTPOptions{Logger: &logger})(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	call := HTTP("svc", srv.URL, HTTPOptions{
		BreakerFailures: 2,
		BreakerOpenFor:  time.Minute,
		Logger:          &logger,
	})

	_, err := call(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	_, err = call(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	// breaker is open now, the backend must not be reached
	_, err = call(context.Background())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
