package cache

import (
	"context"

	"github.com/rs/zerolog"
)

// ResponseCache memoizes the last successful payload of each service.
//
// One instance must be created at startup and shared by every request handler;
// a cache created per request never produces a hit.
// Get and Put never fail: provider errors are logged, a failed Get counts as a miss
// and a failed Put leaves the entry absent.
type ResponseCache struct {
	provider Provider
	log      zerolog.Logger
}

// New creates a response cache on top of the given provider.
// A MemCache is used if provider is nil.
func New(provider Provider, logger *zerolog.Logger) *ResponseCache {
	if provider == nil {
		provider = NewMemCache()
	}
	var l zerolog.Logger
	if logger == nil {
		l = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		l = *logger
	}
	return &ResponseCache{
		provider: provider,
		log:      l.With().Str("component", "cache").Logger(),
	}
}

// Get returns the cached payload for the service id.
func (c *ResponseCache) Get(ctx context.Context, id string) (string, bool) {
	value, ok, err := c.provider.Get(ctx, id)
	if err != nil {
		c.log.Error().Err(err).Str("key", id).Msg("Could not read from cache")
		return "", false
	}
	if !ok {
		return "", false
	}
	return string(value), true
}

// Put stores payload as the response of the service id, overwriting any previous one.
func (c *ResponseCache) Put(ctx context.Context, id, payload string) {
	if err := c.provider.Put(ctx, id, []byte(payload)); err != nil {
		c.log.Error().Err(err).Str("key", id).Msg("Could not write to cache")
		return
	}
	c.log.Trace().Str("key", id).Int("bytes", len(payload)).Msg("Cache write")
}

// Len returns the number of cached services.
func (c *ResponseCache) Len(ctx context.Context) (int, error) {
	n := 0
	err := c.provider.Keys(ctx, func(string) { n++ })
	return n, err
}
