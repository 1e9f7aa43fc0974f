package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

var (
	// ErrUnexpectedStatus is returned when a backend answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected backend status")
	// ErrBackendUnavailable is returned while the circuit breaker of a backend is open.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrPayloadTooLarge is returned when a backend body exceeds maxPayloadBytes.
	ErrPayloadTooLarge = errors.New("backend payload too large")
)

// maxPayloadBytes bounds how much of a backend body is read into a payload.
const maxPayloadBytes = 10 << 20

// HTTPOptions configures a backend created by HTTP.
type HTTPOptions struct {
	// Client used for backend requests. http.DefaultClient is used if nil.
	Client *http.Client
	// Consecutive failures after which the breaker opens. Zero disables the breaker.
	BreakerFailures uint32
	// How long the breaker stays open before letting a probe request through.
	BreakerOpenFor time.Duration
	// Logger to use. The console logger is used if nil.
	Logger *zerolog.Logger
}

// HTTP returns a call that GETs url and uses the response body as payload.
// Any non-2xx status is a failure.
func HTTP(name, url string, opts HTTPOptions) BackendCall {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	var logger zerolog.Logger
	if opts.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *opts.Logger
	}
	logger = logger.With().Str("backend", name).Str("url", url).Logger()

	fetch := func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		logger.Trace().Msg("Calling backend")
		res, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer res.Body.Close()
		if res.StatusCode < 200 || res.StatusCode > 299 {
			// drain so the connection can be reused
			io.Copy(io.Discard, io.LimitReader(res.Body, maxPayloadBytes))
			return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, res.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(res.Body, maxPayloadBytes+1))
		if err != nil {
			return "", err
		}
		if len(body) > maxPayloadBytes {
			return "", fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, maxPayloadBytes)
		}
		return string(body), nil
	}

	if opts.BreakerFailures == 0 {
		return fetch
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})

	return func(ctx context.Context) (string, error) {
		payload, err := breaker.Execute(func() (interface{}, error) {
			return fetch(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if err != nil {
			return "", err
		}
		return payload.(string), nil
	}
}
