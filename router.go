package svcrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/always-cache/svcrouter/cache"
	"github.com/always-cache/svcrouter/registry"
)

// ServicePrefix is the route prefix of backend services: /service/{id}.
const ServicePrefix = "/service/"

// DefaultInvokeTimeout bounds a backend invocation when Config.InvokeTimeout is zero.
const DefaultInvokeTimeout = 10 * time.Second

type Config struct {
	// Response cache shared by all requests.
	// A memory cache owned by the router is created if nil.
	Cache *cache.ResponseCache
	// Backends that can be routed to. Required.
	Registry *registry.Registry
	// Logger to use. The console logger is used if nil.
	Logger *zerolog.Logger
	// Metrics to update. Metrics on a private registry are used if nil.
	Metrics *Metrics
	// Maximum duration of a single backend invocation.
	// Expiry is treated as an invocation failure.
	InvokeTimeout time.Duration
	// Collapse concurrent cold misses for the same service into one invocation.
	// Without it every concurrent miss invokes the backend.
	CollapseMisses bool
	// Handler for the /static/ prefix. The prefix is not routed if nil.
	Static *StaticHandler
}

// Router dispatches requests to the health probe, the static handler
// or a backend service, going through the response cache for services.
type Router struct {
	cache          *cache.ResponseCache
	registry       *registry.Registry
	log            zerolog.Logger
	metrics        *Metrics
	invokeTimeout  time.Duration
	collapseMisses bool
	inflight       singleflight.Group
	static         *StaticHandler
}

// CreateRouter creates a router from the config.
// The router is safe for concurrent use and must be shared by all request handlers.
func CreateRouter(config Config) *Router {
	if config.Registry == nil {
		panic("svcrouter: Config.Registry is required")
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().Str("component", "router").Logger()

	rt := &Router{
		cache:          config.Cache,
		registry:       config.Registry,
		log:            logger,
		metrics:        config.Metrics,
		invokeTimeout:  config.InvokeTimeout,
		collapseMisses: config.CollapseMisses,
		static:         config.Static,
	}
	if rt.cache == nil {
		rt.cache = cache.New(cache.NewMemCache(), &logger)
	}
	if rt.metrics == nil {
		rt.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if rt.invokeTimeout <= 0 {
		rt.invokeTimeout = DefaultInvokeTimeout
	}
	return rt
}

// Route implements Handler.
func (rt *Router) Route(ctx context.Context, method, path string) Response {
	res, err := rt.Resolve(ctx, method, path)
	if err != nil {
		rt.log.Debug().Err(err).
			Str("method", method).
			Str("path", path).
			Int("status", res.StatusCode).
			Msg("Request not served")
	}
	return res
}

// Resolve routes the request and also returns why it was not served successfully.
// The error is nil exactly when the response status is 200.
func (rt *Router) Resolve(ctx context.Context, method, path string) (Response, error) {
	res, err := rt.resolve(ctx, method, path)
	rt.metrics.response(res.StatusCode)
	return res, err
}

func (rt *Router) resolve(ctx context.Context, method, path string) (Response, error) {
	if method != http.MethodGet {
		return textResponse(http.StatusMethodNotAllowed, "Method Not Allowed"),
			fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	switch {
	case path == HealthPath:
		return Health(), nil
	case strings.HasPrefix(path, ServicePrefix):
		id := strings.TrimPrefix(path, ServicePrefix)
		if id != "" && !strings.Contains(id, "/") {
			return rt.service(ctx, id)
		}
	case rt.static != nil && strings.HasPrefix(path, StaticPrefix):
		return rt.static.Serve(strings.TrimPrefix(path, StaticPrefix))
	}

	return textResponse(http.StatusNotFound, "Not Found"),
		fmt.Errorf("%w: %s", ErrRouteNotFound, path)
}

// service serves a backend service from the cache, invoking it on a miss.
func (rt *Router) service(ctx context.Context, id string) (Response, error) {
	cs := &CacheStatus{}
	logger := rt.log.With().Str("service", id).Logger()

	if payload, ok := rt.cache.Get(ctx, id); ok {
		rt.metrics.cacheLookup(true)
		cs.Hit()
		logger.Trace().Msg("Cache hit")
		return Response{StatusCode: http.StatusOK, Body: payload, CacheStatus: cs}, nil
	}
	rt.metrics.cacheLookup(false)
	cs.Forward(CacheStatusFwdUriMiss)

	call, ok := rt.registry.Lookup(id)
	if !ok {
		logger.Warn().Msg("Service not found")
		return Response{StatusCode: http.StatusNotFound, Body: "Service not found", CacheStatus: cs},
			fmt.Errorf("%w: %s", registry.ErrServiceNotFound, id)
	}

	var payload string
	var err error
	if rt.collapseMisses {
		payload, err = rt.collapsedInvoke(ctx, id, call, cs)
	} else {
		payload, err = rt.invokeAndStore(ctx, id, call)
		cs.Stored = err == nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("Backend invocation failed")
		return rt.failure(err, cs), fmt.Errorf("%w: %s: %w", ErrBackendFailure, id, err)
	}
	return Response{StatusCode: http.StatusOK, Body: payload, CacheStatus: cs}, nil
}

type flightResult struct {
	payload string
	hit     bool
}

// collapsedInvoke lets one caller per id invoke the backend while concurrent callers wait for its result.
func (rt *Router) collapsedInvoke(ctx context.Context, id string, call registry.BackendCall, cs *CacheStatus) (string, error) {
	v, err, shared := rt.inflight.Do(id, func() (interface{}, error) {
		// a flight that started after the previous one stored its result must not invoke again
		if payload, ok := rt.cache.Get(ctx, id); ok {
			return flightResult{payload: payload, hit: true}, nil
		}
		// the flight outlives the caller that started it
		payload, err := rt.invokeAndStore(context.WithoutCancel(ctx), id, call)
		return flightResult{payload: payload}, err
	})
	if err != nil {
		return "", err
	}
	res := v.(flightResult)
	cs.Collapsed = shared
	if res.hit {
		cs.Hit()
	} else {
		cs.Stored = true
	}
	return res.payload, nil
}

// invokeAndStore invokes the backend under the invocation timeout and caches a successful payload.
func (rt *Router) invokeAndStore(ctx context.Context, id string, call registry.BackendCall) (string, error) {
	ictx, cancel := context.WithTimeout(ctx, rt.invokeTimeout)
	defer cancel()

	rt.log.Debug().Str("service", id).Msg("Invoking backend")
	start := time.Now()
	payload, err := safeCall(ictx, call)
	rt.metrics.invocation(id, err, time.Since(start))
	if err != nil {
		return "", err
	}

	rt.cache.Put(context.WithoutCancel(ctx), id, payload)
	return payload, nil
}

// safeCall runs the backend call, turning a panic into an error.
func safeCall(ctx context.Context, call registry.BackendCall) (payload string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend call panicked: %v", r)
		}
	}()
	return call(ctx)
}

// failure maps a backend invocation error to the response sent to the client.
// The error detail is logged, never sent.
func (rt *Router) failure(err error, cs *CacheStatus) Response {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Response{StatusCode: http.StatusGatewayTimeout, Body: "Backend timed out", CacheStatus: cs}
	case errors.Is(err, registry.ErrBackendUnavailable):
		return Response{StatusCode: http.StatusServiceUnavailable, Body: "Backend unavailable", CacheStatus: cs}
	default:
		return Response{StatusCode: http.StatusBadGateway, Body: "Backend invocation failed", CacheStatus: cs}
	}
}
