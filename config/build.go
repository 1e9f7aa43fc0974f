package config

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/always-cache/svcrouter/cache"
	"github.com/always-cache/svcrouter/registry"
)

// BuildRegistry registers every configured backend.
// Backend URLs are resolved through lookup once, at construction.
func BuildRegistry(backends []Backend, lookup Lookup, logger *zerolog.Logger) (*registry.Registry, error) {
	reg := registry.New()
	for _, b := range backends {
		url := b.URL
		if b.URLEnv != "" {
			url = lookup.Get(b.URLEnv, b.URL)
		}

		var call registry.BackendCall
		switch b.Kind {
		case KindEcho:
			label := b.Label
			if label == "" {
				label = b.Name
			}
			call = registry.Echo(label, url)
		case KindHTTP:
			call = registry.HTTP(b.Name, url, registry.HTTPOptions{
				Client:          &http.Client{Timeout: b.Timeout.Duration()},
				BreakerFailures: b.Breaker.Failures,
				BreakerOpenFor:  b.Breaker.OpenFor.Duration(),
				Logger:          logger,
			})
		default:
			return nil, fmt.Errorf("backend %s: unsupported kind %q", b.Name, b.Kind)
		}

		if err := reg.Register(b.Name, call); err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		if logger != nil {
			logger.Debug().Str("service", b.Name).Str("kind", b.Kind).Str("url", url).Msg("Registered backend")
		}
	}
	return reg, nil
}

// OpenProvider opens the configured cache provider.
func OpenProvider(c CacheConfig) (cache.Provider, error) {
	switch c.Provider {
	case "", ProviderMemory:
		return cache.NewMemCache(), nil
	case ProviderSQLite:
		filename := c.SQLite.File
		if filename == "" || filename == "memory" {
			filename = "file::memory:?cache=shared"
		}
		return cache.NewSQLiteCache(filename)
	case ProviderRedis:
		return cache.NewRedisCache(c.Redis.URL, c.Redis.KeyPrefix)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %q", c.Provider)
	}
}
